package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"offdec/internal/engine"
	"offdec/internal/engine/enginetest"
	"offdec/internal/matrix"
	"offdec/internal/session"
	"offdec/internal/symtab"
)

// echoEngine reports the first column of the first row as the best sequence.
type echoEngine struct {
	*enginetest.Fake
	best []int
}

func (e *echoEngine) Decode(m *matrix.Matrix) error {
	e.best = nil
	if m.Rows > 0 {
		for _, v := range m.Row(0) {
			e.best = append(e.best, int(v))
		}
	}
	return nil
}

func (e *echoEngine) BestSequence() ([]int, error) { return e.best, nil }

func resources(t *testing.T) session.Resources {
	t.Helper()
	dir := t.TempDir()
	words := filepath.Join(dir, "words.txt")
	if err := os.WriteFile(words, []byte("<eps> 0\nhello 1\nworld 2\n"), 0o644); err != nil {
		t.Fatalf("write words: %v", err)
	}
	return session.Resources{Graph: "g", Transitions: "t", DecodeConfig: "c", Words: words}
}

func utterance(t *testing.T, key string, seq ...float32) matrix.Utterance {
	t.Helper()
	m, err := matrix.New([][]float32{seq})
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	return matrix.Utterance{Key: key, Matrix: m}
}

func TestRunPreservesOrderAndIsolatesFailures(t *testing.T) {
	res := resources(t)
	var (
		mu      sync.Mutex
		engines []*echoEngine
	)
	open := func() (*session.Session, error) {
		return session.Open(func(graph, transitions, decodeConfig string) (engine.Engine, error) {
			e := &echoEngine{Fake: enginetest.New()}
			mu.Lock()
			engines = append(engines, e)
			mu.Unlock()
			return e, nil
		}, res, nil)
	}
	utts := []matrix.Utterance{
		utterance(t, "a", 1, 2),
		utterance(t, "b", 2),
		utterance(t, "c", 1, 9),
		utterance(t, "d"),
		utterance(t, "e", 2, 1),
	}

	results, err := Run(context.Background(), 3, open, utts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"hello world", "world", "", "", "world hello"}
	for i, r := range results {
		if r.Key != utts[i].Key {
			t.Errorf("results[%d].Key = %q", i, r.Key)
		}
		if i == 2 {
			if !errors.Is(r.Err, symtab.ErrOutOfRange) {
				t.Errorf("results[2].Err = %v, want out of range", r.Err)
			}
			continue
		}
		if r.Err != nil || r.Transcript != want[i] {
			t.Errorf("results[%d] = %q, %v; want %q", i, r.Transcript, r.Err, want[i])
		}
	}
	if len(engines) == 0 || len(engines) > 3 {
		t.Fatalf("opened %d engines, want 1..3", len(engines))
	}
	for _, e := range engines {
		if e.Closed != 1 {
			t.Errorf("engine closed %d times, want 1", e.Closed)
		}
	}
}

func TestRunOpenFailureAborts(t *testing.T) {
	boom := errors.New("no graph")
	open := func() (*session.Session, error) { return nil, boom }
	_, err := Run(context.Background(), 2, open, []matrix.Utterance{utterance(t, "a", 1)})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestRunEmpty(t *testing.T) {
	called := false
	open := func() (*session.Session, error) {
		called = true
		return nil, errors.New("unused")
	}
	results, err := Run(context.Background(), 4, open, nil)
	if err != nil || len(results) != 0 {
		t.Fatalf("Run(nil) = %v, %v", results, err)
	}
	if called {
		t.Fatal("no session should be opened for an empty batch")
	}
}
