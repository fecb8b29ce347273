// Package enginetest provides a scripted engine for tests.
package enginetest

import (
	"sync"

	"offdec/internal/engine"
	"offdec/internal/matrix"
)

// Fake is an engine.Engine that replays queued best sequences and records
// every call it receives.
type Fake struct {
	mu        sync.Mutex
	calls     []string
	sequences [][]int
	best      []int

	// Errors injected per operation; they are returned as-is.
	ResetErr  error
	DecodeErr error
	BestErr   error
	CloseErr  error

	Closed int
}

// New returns a Fake that yields the given sequences, one per Decode.
// Once the queue is empty Decode yields an empty sequence.
func New(sequences ...[]int) *Fake {
	return &Fake{sequences: sequences}
}

// Opener returns an engine.Opener that always hands out f.
func (f *Fake) Opener() engine.Opener {
	return func(graph, transitions, decodeConfig string) (engine.Engine, error) {
		f.record("open")
		return f, nil
	}
}

// Push queues more sequences.
func (f *Fake) Push(sequences ...[]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequences = append(f.sequences, sequences...)
}

// Calls returns the operations seen so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

func (f *Fake) Reset() error {
	f.record("reset")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ResetErr != nil {
		return f.ResetErr
	}
	f.best = nil
	return nil
}

func (f *Fake) Decode(m *matrix.Matrix) error {
	f.record("decode")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DecodeErr != nil {
		return f.DecodeErr
	}
	f.best = nil
	if len(f.sequences) > 0 {
		f.best = f.sequences[0]
		f.sequences = f.sequences[1:]
	}
	return nil
}

func (f *Fake) BestSequence() ([]int, error) {
	f.record("best")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BestErr != nil {
		return nil, f.BestErr
	}
	return append([]int(nil), f.best...), nil
}

func (f *Fake) Close() error {
	f.record("close")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed++
	return f.CloseErr
}
