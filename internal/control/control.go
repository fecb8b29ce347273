package control

import (
	"errors"
	"time"

	"offdec/internal/engine"
	"offdec/internal/symtab"
)

// Request is one JSON line sent to the daemon's control socket.
type Request struct {
	Op   string      `json:"op"`
	Path string      `json:"path,omitempty"` // decode: matrix file
	Key  string      `json:"key,omitempty"`  // decode: key for inline rows
	Rows [][]float32 `json:"rows,omitempty"` // decode: inline matrix
}

type Status struct {
	Running     bool         `json:"running"`
	UptimeSec   float64      `json:"uptime_sec"`
	Words       int          `json:"words"`
	Transcripts []Transcript `json:"transcripts"`
}

type SimpleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type Transcript struct {
	Key       string    `json:"key,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// DecodeResponse answers a decode request. Error/Kind are set when the
// request itself failed; per-utterance failures are in Utterances.
type DecodeResponse struct {
	OK         bool              `json:"ok"`
	Error      string            `json:"error,omitempty"`
	Kind       string            `json:"kind,omitempty"`
	Utterances []UtteranceResult `json:"utterances,omitempty"`
}

type UtteranceResult struct {
	Key        string `json:"key"`
	Transcript string `json:"transcript"`
	Error      string `json:"error,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// Error kinds reported to clients.
const (
	KindFormat     = "format"
	KindOutOfRange = "out_of_range"
	KindEngine     = "engine"
	KindInput      = "input"
)

// ErrorKind classifies a decode failure.
func ErrorKind(err error) string {
	var (
		fe *symtab.FormatError
		ee *engine.Error
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fe):
		return KindFormat
	case errors.Is(err, symtab.ErrOutOfRange):
		return KindOutOfRange
	case errors.As(err, &ee):
		return KindEngine
	default:
		return KindInput
	}
}
