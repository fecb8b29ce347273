package run

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"offdec/internal/config"
	"offdec/internal/control"
	"offdec/internal/engine/enginetest"
	"offdec/internal/logging"
	"offdec/internal/session"
)

func testServer(t *testing.T, fake *enginetest.Fake) *Server {
	t.Helper()
	dir := t.TempDir()
	words := filepath.Join(dir, "words.txt")
	if err := os.WriteFile(words, []byte("<eps> 0\nhello 1\nworld 2\n"), 0o644); err != nil {
		t.Fatalf("write words: %v", err)
	}
	sess, err := session.Open(fake.Opener(), session.Resources{
		Graph: "g", Transitions: "t", DecodeConfig: "c", Words: words,
	}, nil)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { sess.Close() })

	cfg, _ := config.Default()
	cfg.Paths.TranscriptPath = filepath.Join(dir, "transcripts.log")
	cfg.UI.StatusTail = 2
	return newServer(cfg, logging.NewTestLogger(), sess)
}

// roundTrip sends req over an in-memory connection and decodes the reply into out.
func roundTrip(t *testing.T, s *Server, req any, out any) {
	t.Helper()
	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		s.handleConn(context.Background(), server)
		close(done)
	}()
	if err := json.NewEncoder(client).Encode(req); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := json.NewDecoder(client).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	client.Close()
	<-done
}

func TestDecodeInlineRows(t *testing.T) {
	s := testServer(t, enginetest.New([]int{1, 2}))
	var resp control.DecodeResponse
	roundTrip(t, s, control.Request{Op: "decode", Key: "u1", Rows: [][]float32{{-1, -2}}}, &resp)

	if !resp.OK || len(resp.Utterances) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if u := resp.Utterances[0]; u.Key != "u1" || u.Transcript != "hello world" || u.Error != "" {
		t.Fatalf("utterance = %+v", u)
	}
	if s.metrics.decoded.Load() != 1 {
		t.Fatalf("decoded = %d", s.metrics.decoded.Load())
	}
	log, _ := os.ReadFile(s.cfg.Paths.TranscriptPath)
	if !strings.Contains(string(log), "u1\thello world") {
		t.Fatalf("transcript log = %q", log)
	}
}

func TestDecodeFileReportsPerUtteranceKinds(t *testing.T) {
	fake := enginetest.New([]int{1}, []int{1, 9}, []int{2})
	s := testServer(t, fake)
	path := filepath.Join(t.TempDir(), "feats.ark")
	ark := "a [ 1 2 ]\nb [ 3 4 ]\nc [ 5 6 ]\n"
	if err := os.WriteFile(path, []byte(ark), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp control.DecodeResponse
	roundTrip(t, s, control.Request{Op: "decode", Path: path}, &resp)
	if !resp.OK || len(resp.Utterances) != 3 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Utterances[0].Transcript != "hello" || resp.Utterances[2].Transcript != "world" {
		t.Fatalf("utterances = %+v", resp.Utterances)
	}
	if resp.Utterances[1].Kind != control.KindOutOfRange {
		t.Fatalf("b kind = %q", resp.Utterances[1].Kind)
	}
	if s.metrics.outOfRange.Load() != 1 || s.metrics.failed.Load() != 1 {
		t.Fatalf("metrics out_of_range=%d failed=%d", s.metrics.outOfRange.Load(), s.metrics.failed.Load())
	}
}

func TestDecodeEngineErrorKind(t *testing.T) {
	fake := enginetest.New()
	fake.DecodeErr = os.ErrDeadlineExceeded
	s := testServer(t, fake)
	var resp control.DecodeResponse
	roundTrip(t, s, control.Request{Op: "decode", Rows: [][]float32{{0}}}, &resp)
	if resp.Utterances[0].Kind != control.KindEngine {
		t.Fatalf("kind = %q", resp.Utterances[0].Kind)
	}
	if s.metrics.engineErrors.Load() != 1 {
		t.Fatalf("engine errors = %d", s.metrics.engineErrors.Load())
	}
}

func TestDecodeBadInput(t *testing.T) {
	s := testServer(t, enginetest.New())
	cases := []control.Request{
		{Op: "decode"},
		{Op: "decode", Rows: [][]float32{{1, 2}, {3}}},
		{Op: "decode", Path: "/nonexistent/feats.ark"},
	}
	for _, req := range cases {
		var resp control.DecodeResponse
		roundTrip(t, s, req, &resp)
		if resp.OK || resp.Kind != control.KindInput {
			t.Fatalf("req %+v: resp = %+v", req, resp)
		}
	}
}

func TestStatusKeepsTail(t *testing.T) {
	s := testServer(t, enginetest.New([]int{1}, []int{2}, []int{1, 2}))
	for i := 0; i < 3; i++ {
		var resp control.DecodeResponse
		roundTrip(t, s, control.Request{Op: "decode", Rows: [][]float32{{0}}}, &resp)
	}
	var st control.Status
	roundTrip(t, s, control.Request{Op: "status"}, &st)
	if !st.Running || st.Words != 3 {
		t.Fatalf("status = %+v", st)
	}
	if len(st.Transcripts) != 2 || st.Transcripts[0].Text != "world" || st.Transcripts[1].Text != "hello world" {
		t.Fatalf("transcripts = %+v", st.Transcripts)
	}
}

func TestHealthAndUnknownOp(t *testing.T) {
	s := testServer(t, enginetest.New())
	var ok control.SimpleResponse
	roundTrip(t, s, control.Request{Op: "health"}, &ok)
	if !ok.OK {
		t.Fatalf("health = %+v", ok)
	}
	var bad control.SimpleResponse
	roundTrip(t, s, control.Request{Op: "reload"}, &bad)
	if bad.OK || !strings.Contains(bad.Message, "reload") {
		t.Fatalf("unknown op = %+v", bad)
	}
}

func TestMetricsHandler(t *testing.T) {
	s := testServer(t, enginetest.New())
	s.metrics.incDecoded()
	s.metrics.incFailure(control.KindOutOfRange)
	rec := httptest.NewRecorder()
	s.metricsHandler(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"offdec_utterances_decoded_total 1",
		"offdec_utterances_failed_total 1",
		"offdec_out_of_range_total 1",
		"offdec_engine_errors_total 0",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestNegativeStatusTailKeepsNothing(t *testing.T) {
	s := testServer(t, enginetest.New([]int{1}))
	cfg := *s.cfg
	cfg.UI.StatusTail = -3
	s = newServer(&cfg, s.logger, s.sess)

	var resp control.DecodeResponse
	roundTrip(t, s, control.Request{Op: "decode", Rows: [][]float32{{0}}}, &resp)
	if !resp.OK || resp.Utterances[0].Transcript != "hello" {
		t.Fatalf("resp = %+v", resp)
	}
	var st control.Status
	roundTrip(t, s, control.Request{Op: "status"}, &st)
	if len(st.Transcripts) != 0 {
		t.Fatalf("transcripts = %+v", st.Transcripts)
	}
}

func TestShutdownClosesIdleConnections(t *testing.T) {
	s := testServer(t, enginetest.New())
	sock := filepath.Join(t.TempDir(), "offdec.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.controlLoop(ctx, ln)

	idle, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial idle: %v", err)
	}
	defer idle.Close()

	// A served request after the idle dial means the idle conn was accepted.
	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := json.NewEncoder(conn).Encode(control.Request{Op: "health"}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var ok control.SimpleResponse
	if err := json.NewDecoder(conn).Decode(&ok); err != nil || !ok.OK {
		t.Fatalf("health = %+v, %v", ok, err)
	}
	conn.Close()

	cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown blocked by an idle client")
	}
}
