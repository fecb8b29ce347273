package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"offdec/internal/config"
	"offdec/internal/control"
	"offdec/internal/matrix"
	"offdec/internal/session"

	"github.com/sirupsen/logrus"
)

// Server owns one decode session and serves decode, status and health
// requests on the control socket.
type Server struct {
	cfg       *config.Config
	logger    *logrus.Logger
	sess      *session.Session
	startedAt time.Time

	transcriptsMu sync.Mutex
	transcripts   []control.Transcript

	metrics metrics
	tail    int

	wg sync.WaitGroup
}

// Serve runs the daemon until interrupted.
func Serve(cfg *config.Config, logger *logrus.Logger) error {
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	sess, err := session.OpenConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warnf("close session: %v", err)
		}
	}()
	logger.Infof("session ready: %d words, engine %q", sess.Table().Len(), cfg.Engine.Backend)

	// Write pid file.
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()
	// Ensure socket removed
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debugf("remove stale socket: %v", err)
	}

	srv := newServer(cfg, logger, sess)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("unix", cfg.Paths.SocketPath)
	if err != nil {
		return fmt.Errorf("control listen: %w", err)
	}
	go srv.controlLoop(ctx, ln)

	if cfg.Metrics.Enabled {
		go srv.metricsServe(ctx.Done(), cfg.Metrics.Addr, logger)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case s := <-sigCh:
		logger.Infof("received signal %s, shutting down", s)
		cancel()
	case <-ctx.Done():
	}
	// Let in-flight requests finish before the session closes.
	srv.wg.Wait()
	return nil
}

func newServer(cfg *config.Config, logger *logrus.Logger, sess *session.Session) *Server {
	tail := max(cfg.UI.StatusTail, 0)
	s := &Server{
		cfg:         cfg,
		logger:      logger,
		sess:        sess,
		startedAt:   time.Now(),
		tail:        tail,
		transcripts: make([]control.Transcript, 0, tail),
	}
	s.metrics.reset()
	return s
}

func (s *Server) controlLoop(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Warnf("control connection close: %v", err)
		}
	}()
	// Shutdown unblocks clients that connected but never sent a request.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	if !sc.Scan() {
		return
	}
	var req control.Request
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: false, Message: fmt.Sprintf("bad request: %v", err)})
		return
	}
	switch req.Op {
	case "decode":
		_ = json.NewEncoder(conn).Encode(s.decode(req))
	case "status":
		resp := control.Status{
			Running:     true,
			UptimeSec:   time.Since(s.startedAt).Seconds(),
			Words:       s.sess.Table().Len(),
			Transcripts: s.copyTranscripts(),
		}
		_ = json.NewEncoder(conn).Encode(resp)
	case "health":
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: true, Message: "ok"})
	default:
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: false, Message: fmt.Sprintf("unknown op %q", req.Op)})
	}
}

func (s *Server) decode(req control.Request) control.DecodeResponse {
	utts, err := requestUtterances(req)
	if err != nil {
		s.metrics.incFailed()
		return control.DecodeResponse{OK: false, Error: err.Error(), Kind: control.KindInput}
	}
	resp := control.DecodeResponse{OK: true, Utterances: make([]control.UtteranceResult, 0, len(utts))}
	for _, u := range utts {
		text, err := s.sess.Decode(u.Matrix)
		r := control.UtteranceResult{Key: u.Key, Transcript: text}
		if err != nil {
			r.Error = err.Error()
			r.Kind = control.ErrorKind(err)
			s.metrics.incFailure(r.Kind)
			s.logger.WithField("key", u.Key).Warnf("decode: %v", err)
		} else {
			s.metrics.incDecoded()
			s.logger.WithField("key", u.Key).Infof("decoded: %q", text)
			s.recordTranscript(u.Key, text)
		}
		resp.Utterances = append(resp.Utterances, r)
	}
	return resp
}

func requestUtterances(req control.Request) ([]matrix.Utterance, error) {
	if req.Path != "" {
		utts, err := matrix.ReadFile(req.Path)
		if err != nil {
			return nil, err
		}
		if len(utts) == 0 {
			return nil, fmt.Errorf("%s: no utterances", req.Path)
		}
		return utts, nil
	}
	if req.Rows == nil {
		return nil, errors.New("decode: need path or rows")
	}
	m, err := matrix.New(req.Rows)
	if err != nil {
		return nil, err
	}
	key := req.Key
	if key == "" {
		key = "inline"
	}
	return []matrix.Utterance{{Key: key, Matrix: m}}, nil
}

func (s *Server) recordTranscript(key, text string) {
	if !s.cfg.Transcripts.Enabled {
		return
	}
	entry := control.Transcript{
		Key:       key,
		Text:      text,
		Timestamp: time.Now(),
	}
	s.transcriptsMu.Lock()
	defer s.transcriptsMu.Unlock()
	s.transcripts = append(s.transcripts, entry)
	if len(s.transcripts) > s.tail {
		s.transcripts = s.transcripts[len(s.transcripts)-s.tail:]
	}
	// append to file
	f, err := os.OpenFile(s.cfg.Paths.TranscriptPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err == nil {
		if _, err := fmt.Fprintf(f, "%s\t%s\t%s\n", entry.Timestamp.Format(time.RFC3339), entry.Key, entry.Text); err != nil {
			s.logger.Warnf("write transcript: %v", err)
		}
		_ = f.Close()
	}
}

func (s *Server) copyTranscripts() []control.Transcript {
	s.transcriptsMu.Lock()
	defer s.transcriptsMu.Unlock()
	out := make([]control.Transcript, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}
