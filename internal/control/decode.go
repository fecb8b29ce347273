package control

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"offdec/internal/batch"
	"offdec/internal/config"
	"offdec/internal/logging"
	"offdec/internal/matrix"
	"offdec/internal/session"
	"offdec/internal/symtab"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewDecodeCmd decodes matrix files locally, without the daemon.
func NewDecodeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <matrix-file>...",
		Short: "Decode log-likelihood matrices to transcripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			jobs, _ := cmd.Flags().GetInt("jobs")
			if !cmd.Flags().Changed("jobs") {
				jobs = cfg.Batch.Jobs
			}
			jsonOut, _ := cmd.Flags().GetBool("json")

			var utts []matrix.Utterance
			for _, path := range args {
				u, err := matrix.ReadFile(path)
				if err != nil {
					return err
				}
				utts = append(utts, u...)
			}
			if len(utts) == 0 {
				return fmt.Errorf("no utterances in %v", args)
			}

			open := func() (*session.Session, error) { return session.OpenConfig(cfg, logger) }
			results, err := batch.Run(cmd.Context(), jobs, open, utts)
			if err != nil {
				return err
			}
			return printResults(cmd, logger, results, jsonOut)
		},
	}
	cmd.Flags().IntP("jobs", "j", 1, "parallel sessions (each opens its own engine)")
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func printResults(cmd *cobra.Command, logger *logrus.Logger, results []batch.Result, jsonOut bool) error {
	out := cmd.OutOrStdout()
	failed := 0
	rows := make([]UtteranceResult, 0, len(results))
	for _, r := range results {
		row := UtteranceResult{Key: r.Key, Transcript: r.Transcript}
		if r.Err != nil {
			failed++
			row.Error = r.Err.Error()
			row.Kind = ErrorKind(r.Err)
			logger.WithField("key", r.Key).Errorf("decode: %v", r.Err)
		}
		rows = append(rows, row)
	}
	if jsonOut {
		if err := json.NewEncoder(out).Encode(rows); err != nil {
			return err
		}
	} else {
		for _, r := range rows {
			if r.Error != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", r.Key, r.Error)
				continue
			}
			fmt.Fprintf(out, "%s %s\n", r.Key, r.Transcript)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d utterances failed", failed, len(results))
	}
	return nil
}

// NewSendCmd decodes matrix files through the running daemon.
func NewSendCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "send <matrix-file>",
		Short: "Decode a matrix file with the running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			var resp DecodeResponse
			if err := call(cfg, Request{Op: "decode", Path: path}, &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("decode failed (%s): %s", resp.Kind, resp.Error)
			}
			failed := 0
			for _, u := range resp.Utterances {
				if u.Error != "" {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", u.Key, u.Error)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", u.Key, u.Transcript)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d utterances failed", failed, len(resp.Utterances))
			}
			return nil
		},
	}
}

// NewLookupCmd resolves indices against the configured word list.
func NewLookupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <index>...",
		Short: "Print the words for symbol table indices",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			table, err := symtab.Load(session.ResourcesFrom(cfg).Words)
			if err != nil {
				return err
			}
			for _, a := range args {
				i, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("bad index %q", a)
				}
				w, err := table.Lookup(i)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", i, w)
			}
			return nil
		},
	}
}
