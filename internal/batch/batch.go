// Package batch decodes many utterances across independent sessions.
package batch

import (
	"context"

	"offdec/internal/matrix"
	"offdec/internal/session"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one utterance.
type Result struct {
	Key        string
	Transcript string
	Err        error
}

// Run decodes utts with up to jobs workers. Each worker opens its own
// session and closes it when the queue drains. Per-utterance failures land in
// Result.Err; a failure to open a session aborts the run.
func Run(ctx context.Context, jobs int, open func() (*session.Session, error), utts []matrix.Utterance) ([]Result, error) {
	if jobs < 1 {
		jobs = 1
	}
	if jobs > len(utts) {
		jobs = len(utts)
	}
	results := make([]Result, len(utts))
	if len(utts) == 0 {
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	queue := make(chan int)

	g.Go(func() error {
		defer close(queue)
		for i := range utts {
			select {
			case queue <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < jobs; w++ {
		g.Go(func() error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()
			for i := range queue {
				u := utts[i]
				text, err := s.Decode(u.Matrix)
				results[i] = Result{Key: u.Key, Transcript: text, Err: err}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
