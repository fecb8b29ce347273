package main

import (
	"fmt"
	"os"

	"offdec/internal/control"
	"offdec/internal/daemon"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "offdec",
		Short: "offdec: offline decoding front end",
		Long: `offdec drives an external search engine over per-utterance log-likelihood
matrices and renders the best index sequence through a word symbol table.

Key commands:
  decode <matrix>...        Decode locally (--jobs N runs N independent sessions)
  lookup <index>...         Resolve indices against the word list
  start|stop|restart        Daemon lifecycle (one session shared over a unix socket)
  send <matrix>             Decode through the running daemon
  status [--json]           Uptime + last transcripts
  doctor                    Check resources, word list and engine command
  health|tail-log           Liveness, log tail

Env overrides: OFFDEC_LOG_LEVEL/FORMAT, OFFDEC_METRICS_ADDR,
               OFFDEC_TRANSCRIPTS_ENABLED, OFFDEC_ENGINE_COMMAND,
               OFFDEC_WORDS, OFFDEC_JOBS`,
		Example: `  offdec decode feats.ark
  offdec decode -j 4 --json a.ark b.ark
  offdec lookup 1 2
  offdec start --metrics-addr 127.0.0.1:9318
  offdec send feats.ark
  offdec doctor`,
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
	}

	root.Version = version
	root.SetVersionTemplate("offdec v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML or YAML). Defaults to ~/.config/offdec/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(control.NewDecodeCmd(cfgPath))
	root.AddCommand(control.NewLookupCmd(cfgPath))
	root.AddCommand(control.NewSendCmd(cfgPath))
	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))

	// Hidden internal serve command used by start.
	root.AddCommand(daemon.NewServeCmd(cfgPath))

	return root.Execute()
}
