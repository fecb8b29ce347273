package session

import (
	"os"

	"offdec/internal/config"
	"offdec/internal/engine"

	"github.com/sirupsen/logrus"
)

// ResourcesFrom returns the decoder resources named in cfg, with
// environment variables expanded.
func ResourcesFrom(cfg *config.Config) Resources {
	return Resources{
		Graph:        os.ExpandEnv(cfg.Decoder.Graph),
		Transitions:  os.ExpandEnv(cfg.Decoder.Transitions),
		DecodeConfig: os.ExpandEnv(cfg.Decoder.DecodeConfig),
		Words:        os.ExpandEnv(cfg.Decoder.Words),
	}
}

// OpenConfig opens a session with the configured engine backend.
func OpenConfig(cfg *config.Config, logger *logrus.Logger) (*Session, error) {
	open, err := engine.New(&cfg.Engine)
	if err != nil {
		return nil, err
	}
	return Open(open, ResourcesFrom(cfg), logger)
}
