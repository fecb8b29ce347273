package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"offdec/internal/config"
	"offdec/internal/matrix"

	"github.com/google/shlex"
)

// execEngine runs an external decoder once per utterance:
//
//	<command...> <graph> <transitions> <decodeConfig> < matrix
//
// The matrix arrives on stdin in Kaldi text form; the program prints the
// best index sequence as whitespace-separated integers on stdout, optionally
// preceded by the utterance key.
type execEngine struct {
	argv    []string
	res     []string
	timeout time.Duration
	env     map[string]string

	mu     sync.Mutex
	best   []int
	closed bool
}

const uttKey = "utt"

// waitDelay bounds how long Decode waits for pipes held open by processes
// the decoder spawned after the decoder itself was killed.
const waitDelay = 500 * time.Millisecond

func execOpener(cfg *config.EngineConfig) (Opener, error) {
	argv, err := ParseCommand(cfg.Command)
	if err != nil {
		return nil, err
	}
	env := make(map[string]string, len(cfg.Env))
	for k, v := range cfg.Env {
		env[k] = v
	}
	timeout := time.Duration(float64(time.Second) * cfg.TimeoutSec)
	return func(graph, transitions, decodeConfig string) (Engine, error) {
		res := []string{graph, transitions, decodeConfig}
		for _, p := range res {
			if _, err := os.Stat(p); err != nil {
				return nil, &Error{Op: "open", Err: err}
			}
		}
		if _, err := exec.LookPath(argv[0]); err != nil {
			return nil, &Error{Op: "open", Err: err}
		}
		return &execEngine{argv: argv, res: res, timeout: timeout, env: env}, nil
	}, nil
}

// ParseCommand splits a configured engine command with shell quoting rules.
// Environment variables in the program path are expanded.
func ParseCommand(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("engine: no engine.command configured")
	}
	argv, err := shlex.Split(raw)
	if err != nil {
		return nil, fmt.Errorf("engine: parse command %q: %w", raw, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("engine: no engine.command configured")
	}
	argv[0] = os.ExpandEnv(argv[0])
	return argv, nil
}

func (e *execEngine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return &Error{Op: "reset", Err: ErrClosed}
	}
	e.best = nil
	return nil
}

func (e *execEngine) Decode(m *matrix.Matrix) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return &Error{Op: "decode", Err: ErrClosed}
	}
	if m == nil {
		return &Error{Op: "decode", Err: errors.New("nil matrix")}
	}

	var stdin bytes.Buffer
	if err := matrix.WriteText(&stdin, uttKey, m); err != nil {
		return &Error{Op: "decode", Err: err}
	}

	ctx := context.Background()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	args := append(append([]string{}, e.argv[1:]...), e.res...)
	cmd := exec.CommandContext(ctx, e.argv[0], args...)
	cmd.Env = os.Environ()
	for k, v := range e.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Stdin = &stdin
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return &Error{Op: "decode", Err: err}
	}
	best, err := parseSequence(stdout.String())
	if err != nil {
		return &Error{Op: "decode", Err: err}
	}
	e.best = best
	return nil
}

func (e *execEngine) BestSequence() ([]int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, &Error{Op: "best-sequence", Err: ErrClosed}
	}
	out := make([]int, len(e.best))
	copy(out, e.best)
	return out, nil
}

func (e *execEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.best = nil
	return nil
}

func parseSequence(out string) ([]int, error) {
	fields := strings.Fields(out)
	if len(fields) > 0 && fields[0] == uttKey {
		fields = fields[1:]
	}
	seq := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("bad index %q in decoder output", f)
		}
		seq = append(seq, v)
	}
	return seq, nil
}
