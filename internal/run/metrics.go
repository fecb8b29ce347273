package run

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"offdec/internal/control"
)

type metrics struct {
	decoded      atomic.Int64
	failed       atomic.Int64
	outOfRange   atomic.Int64
	engineErrors atomic.Int64
}

func (m *metrics) reset() {
	m.decoded.Store(0)
	m.failed.Store(0)
	m.outOfRange.Store(0)
	m.engineErrors.Store(0)
}

func (m *metrics) incDecoded() { m.decoded.Add(1) }
func (m *metrics) incFailed()  { m.failed.Add(1) }

func (m *metrics) incFailure(kind string) {
	m.failed.Add(1)
	switch kind {
	case control.KindOutOfRange:
		m.outOfRange.Add(1)
	case control.KindEngine:
		m.engineErrors.Add(1)
	}
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "offdec_utterances_decoded_total %d\n", s.metrics.decoded.Load())
	fmt.Fprintf(w, "offdec_utterances_failed_total %d\n", s.metrics.failed.Load())
	fmt.Fprintf(w, "offdec_out_of_range_total %d\n", s.metrics.outOfRange.Load())
	fmt.Fprintf(w, "offdec_engine_errors_total %d\n", s.metrics.engineErrors.Load())
}

func (s *Server) metricsServe(ctxDone <-chan struct{}, addr string, logger interface {
	Infof(string, ...any)
	Warnf(string, ...any)
}) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.metricsHandler)
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		<-ctxDone
		_ = server.Close()
	}()
	logger.Infof("metrics listening on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warnf("metrics server: %v", err)
	}
}
