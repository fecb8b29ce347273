// Package session runs decode transactions against one engine and renders
// the engine's best index sequence through a word symbol table.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"offdec/internal/engine"
	"offdec/internal/matrix"
	"offdec/internal/symtab"

	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by Decode after Close.
var ErrClosed = errors.New("session: closed")

// ErrMissingResource is returned by Open when a resource path is empty.
var ErrMissingResource = errors.New("session: missing resource")

// Resources names everything a session is built from.
type Resources struct {
	Graph        string
	Transitions  string
	DecodeConfig string
	Words        string
}

func (r Resources) validate() error {
	for _, f := range []struct{ name, val string }{
		{"graph", r.Graph},
		{"transitions", r.Transitions},
		{"decode_config", r.DecodeConfig},
		{"words", r.Words},
	} {
		if strings.TrimSpace(f.val) == "" {
			return fmt.Errorf("%w: %s", ErrMissingResource, f.name)
		}
	}
	return nil
}

// Session owns one engine and one symbol table. Decode calls are serialized.
type Session struct {
	mu     sync.Mutex
	eng    engine.Engine
	table  *symtab.Table
	closed bool
}

// Open opens the engine and loads the word list. If the word list fails to
// load the engine is closed again and the table error is returned unchanged.
func Open(open engine.Opener, res Resources, logger *logrus.Logger) (*Session, error) {
	if err := res.validate(); err != nil {
		return nil, err
	}
	eng, err := open(res.Graph, res.Transitions, res.DecodeConfig)
	if err != nil {
		return nil, err
	}
	table, err := symtab.Load(res.Words)
	if err != nil {
		if cerr := eng.Close(); cerr != nil && logger != nil {
			logger.Warnf("close engine after failed word list load: %v", cerr)
		}
		return nil, err
	}
	if logger != nil {
		logger.Debugf("loaded %d words from %s", table.Len(), res.Words)
		if mm := table.Mismatches(); len(mm) > 0 {
			logger.WithFields(logrus.Fields{
				"words":      res.Words,
				"mismatches": len(mm),
				"first":      fmt.Sprintf("line %d %q has id %q", mm[0].Index, mm[0].Word, mm[0].ID),
			}).Warn("word list ids do not match line positions; indexing by line position")
		}
	}
	return New(eng, table), nil
}

// New wraps an already open engine and a loaded table.
func New(eng engine.Engine, table *symtab.Table) *Session {
	return &Session{eng: eng, table: table}
}

// Table returns the session's symbol table.
func (s *Session) Table() *symtab.Table { return s.table }

// Decode resets the engine, decodes m, and renders the best sequence as
// space-joined words. An empty sequence yields "".
func (s *Session) Decode(m *matrix.Matrix) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if err := s.eng.Reset(); err != nil {
		return "", engineError("reset", err)
	}
	if err := s.eng.Decode(m); err != nil {
		return "", engineError("decode", err)
	}
	seq, err := s.eng.BestSequence()
	if err != nil {
		return "", engineError("best-sequence", err)
	}
	return Render(s.table, seq)
}

// Render maps every index through table and joins the words with single
// spaces. The first out-of-range index fails the whole render.
func Render(table *symtab.Table, seq []int) (string, error) {
	var b strings.Builder
	for i, idx := range seq {
		w, err := table.Lookup(idx)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	return b.String(), nil
}

// Close releases the engine. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.eng.Close()
}

func engineError(op string, err error) error {
	var ee *engine.Error
	if errors.As(err, &ee) {
		return err
	}
	return &engine.Error{Op: op, Err: err}
}
