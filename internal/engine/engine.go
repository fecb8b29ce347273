// Package engine defines the search engine a decode session drives.
//
// Supported backends:
//   - exec: an external decoder program fed one matrix per decode
package engine

import (
	"errors"
	"fmt"

	"offdec/internal/config"
	"offdec/internal/matrix"
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("engine: closed")

// Engine is a stateful search over a fixed graph and transition model.
type Engine interface {
	// Reset discards any state left from a previous utterance.
	Reset() error
	// Decode runs the search over one utterance's log-likelihoods.
	Decode(m *matrix.Matrix) error
	// BestSequence returns the best index path found by the last Decode.
	BestSequence() ([]int, error)
	// Close releases the graph and transition resources.
	Close() error
}

// Opener opens an engine against its graph, transition table and config.
type Opener func(graph, transitions, decodeConfig string) (Engine, error)

// Error is a failure inside the engine.
type Error struct {
	Op  string // reset, decode, best-sequence, open
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Opener for the configured backend.
func New(cfg *config.EngineConfig) (Opener, error) {
	switch cfg.Backend {
	case "exec", "":
		return execOpener(cfg)
	default:
		return nil, fmt.Errorf("engine: unknown backend %q (supported: exec)", cfg.Backend)
	}
}
