package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	defaultStatusTail    = 10
	defaultTimeoutSec    = 60
	defaultStateDirLinux = ".local/state/offdec"
	defaultConfigDir     = ".config/offdec"
)

// Config holds user configuration loaded from TOML (or YAML).
type Config struct {
	Decoder DecoderConfig `toml:"decoder" yaml:"decoder"`

	Engine EngineConfig `toml:"engine" yaml:"engine"`

	Batch struct {
		Jobs int `toml:"jobs" yaml:"jobs"`
	} `toml:"batch" yaml:"batch"`

	Logging struct {
		Level  string `toml:"level" yaml:"level"`   // debug, info, warn, error
		Format string `toml:"format" yaml:"format"` // text, json
		Stdout bool   `toml:"stdout" yaml:"stdout"`
	} `toml:"logging" yaml:"logging"`

	Paths struct {
		StateDir       string `toml:"state_dir" yaml:"state_dir"`
		LogPath        string `toml:"log_path" yaml:"log_path"`
		TranscriptPath string `toml:"transcript_path" yaml:"transcript_path"`
		SocketPath     string `toml:"socket_path" yaml:"socket_path"`
		PidPath        string `toml:"pid_path" yaml:"pid_path"`
		ConfigPath     string `toml:"-" yaml:"-"`
	} `toml:"paths" yaml:"paths"`

	UI struct {
		StatusTail int `toml:"status_tail" yaml:"status_tail"`
	} `toml:"ui" yaml:"ui"`

	Metrics struct {
		Enabled bool   `toml:"enabled" yaml:"enabled"`
		Addr    string `toml:"addr" yaml:"addr"`
	} `toml:"metrics" yaml:"metrics"`

	Transcripts struct {
		Enabled bool `toml:"enabled" yaml:"enabled"`
	} `toml:"transcripts" yaml:"transcripts"`
}

// DecoderConfig names the resources a decode session is built from.
type DecoderConfig struct {
	Graph        string `toml:"graph" yaml:"graph"`
	Transitions  string `toml:"transitions" yaml:"transitions"`
	DecodeConfig string `toml:"decode_config" yaml:"decode_config"`
	Words        string `toml:"words" yaml:"words"`
}

// EngineConfig selects and parameterizes the decode engine backend.
type EngineConfig struct {
	Backend    string            `toml:"backend" yaml:"backend"` // exec
	Command    string            `toml:"command" yaml:"command"` // shell-quoted program + args
	TimeoutSec float64           `toml:"timeout_sec" yaml:"timeout_sec"`
	Env        map[string]string `toml:"env" yaml:"env"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "offdec")
	}

	cfg := &Config{}

	modelDir := filepath.Join(stateDir, "model")
	cfg.Decoder.Graph = filepath.Join(modelDir, "graph.fst")
	cfg.Decoder.Transitions = filepath.Join(modelDir, "trans.tab")
	cfg.Decoder.DecodeConfig = filepath.Join(modelDir, "decode.conf")
	cfg.Decoder.Words = filepath.Join(modelDir, "words.txt")

	cfg.Engine.Backend = "exec"
	cfg.Engine.Command = "offdec-engine"
	cfg.Engine.TimeoutSec = defaultTimeoutSec
	cfg.Engine.Env = map[string]string{}

	cfg.Batch.Jobs = 1

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "offdec.log")
	cfg.Paths.TranscriptPath = filepath.Join(stateDir, "transcripts.log")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "offdec.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "offdec.pid")

	cfg.UI.StatusTail = defaultStatusTail

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	cfg.Transcripts.Enabled = true

	return cfg, nil
}

// Load loads config from file, applying defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := unmarshal(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes cfg to path. The encoding follows the file extension.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		out []byte
		err error
	)
	if isYAML(path) {
		out, err = yaml.Marshal(cfg)
	} else {
		out, err = toml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return toml.Unmarshal(data, cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{cfg.Paths.StateDir, filepath.Dir(cfg.Paths.LogPath), filepath.Dir(cfg.Paths.TranscriptPath)} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OFFDEC_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("OFFDEC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OFFDEC_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("OFFDEC_TRANSCRIPTS_ENABLED"); v != "" {
		cfg.Transcripts.Enabled = v != "0" && strings.ToLower(v) != "false"
	}
	if v := os.Getenv("OFFDEC_ENGINE_COMMAND"); v != "" {
		cfg.Engine.Command = v
	}
	if v := os.Getenv("OFFDEC_WORDS"); v != "" {
		cfg.Decoder.Words = v
	}
	if v := os.Getenv("OFFDEC_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Batch.Jobs = n
		}
	}
}
