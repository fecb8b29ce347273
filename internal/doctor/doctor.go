package doctor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"offdec/internal/config"
	"offdec/internal/engine"
	"offdec/internal/session"
	"offdec/internal/symtab"
)

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Run executes doctor checks.
func Run(cfg *config.Config) []Result {
	res := session.ResourcesFrom(cfg)
	return []Result{
		checkFile("config path", cfg.Paths.ConfigPath),
		checkFile("graph", res.Graph),
		checkFile("transitions", res.Transitions),
		checkFile("decode config", res.DecodeConfig),
		checkWords(res.Words),
		checkEngineCommand(&cfg.Engine),
	}
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

// checkWords loads the word list. ID drift passes but is reported.
func checkWords(path string) Result {
	label := "words"
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	table, err := symtab.Load(path)
	if err != nil {
		var fe *symtab.FormatError
		if errors.As(err, &fe) {
			return Result{Name: label, Pass: false, Detail: fmt.Sprintf("line %q: want \"<word> <id>\"", fe.Line)}
		}
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	detail := fmt.Sprintf("%s (%d words)", path, table.Len())
	if mm := table.Mismatches(); len(mm) > 0 {
		detail += fmt.Sprintf("; warning: %d ids differ from line position (first: %q at %d has id %s)",
			len(mm), mm[0].Word, mm[0].Index, mm[0].ID)
	}
	return Result{Name: label, Pass: true, Detail: detail}
}

func checkEngineCommand(cfg *config.EngineConfig) Result {
	label := "engine.command"
	if cfg.Backend != "" && cfg.Backend != "exec" {
		return Result{Name: "engine", Pass: false, Detail: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
	argv, err := engine.ParseCommand(cfg.Command)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	path := argv[0]
	// If contains a path separator, treat as explicit path.
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; set engine.command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	// Else search PATH.
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}
