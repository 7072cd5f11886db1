package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ChatWidget/internal/chatbot"
	"ChatWidget/internal/config"
	"ChatWidget/internal/diag"

	"github.com/spf13/cobra"
)

type flags struct {
	configPath      string
	endpoint        string
	timeout         time.Duration
	plain           bool
	debug           bool
	logDir          string
	allowConcurrent bool
	noDiagnostics   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "chatwidget",
		Short:         "Terminal chat widget for a /chatbot backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}

			bot, err := chatbot.NewChatBot(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize chat widget: %w", err)
			}
			defer bot.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return bot.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", config.DefaultPath(), "Path to the TOML config file")
	pf.StringVar(&f.logDir, "log-dir", "", "Directory for logs, traces and metrics")

	rf := root.Flags()
	rf.StringVar(&f.endpoint, "endpoint", "", "Absolute URL of the chat backend")
	rf.DurationVar(&f.timeout, "timeout", 0, "Request timeout (0 waits forever)")
	rf.BoolVar(&f.plain, "plain", false, "Use the line-mode prompt instead of the terminal UI")
	rf.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	rf.BoolVar(&f.allowConcurrent, "allow-concurrent", false, "Allow a new submission while a request is in flight")
	rf.BoolVar(&f.noDiagnostics, "no-diagnostics", false, "Do not record failures in the diagnostics journal")

	root.AddCommand(newDiagCmd(f))
	return root
}

// loadConfig layers explicitly set flags over file and environment values.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}

	if changed("endpoint") {
		cfg.Endpoint.URL = f.endpoint
	}
	if changed("timeout") {
		cfg.Endpoint.RequestTimeout.Duration = f.timeout
	}
	if changed("plain") {
		cfg.Widget.Plain = f.plain
	}
	if changed("debug") {
		cfg.Log.Debug = f.debug
	}
	if changed("log-dir") {
		cfg.Log.Dir = f.logDir
	}
	if changed("allow-concurrent") {
		cfg.Widget.SerializeSubmissions = !f.allowConcurrent
	}
	if changed("no-diagnostics") {
		cfg.Diagnostics.Enabled = !f.noDiagnostics
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newDiagCmd(f *flags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "diag",
		Short: "Show recent failed requests from the diagnostics journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			if !cfg.Diagnostics.Enabled {
				return fmt.Errorf("diagnostics journal is disabled")
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			journal, err := diag.OpenJournal(cfg.JournalPath(), logger)
			if err != nil {
				return err
			}
			defer journal.Close()

			failures, err := journal.Recent(context.Background(), limit)
			if err != nil {
				return err
			}
			return printFailures(cmd.OutOrStdout(), failures)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries to show")
	return cmd
}

func printFailures(out io.Writer, failures []diag.Failure) error {
	if len(failures) == 0 {
		_, err := fmt.Fprintln(out, "No failures recorded.")
		return err
	}
	for _, f := range failures {
		status := "-"
		if f.StatusCode != 0 {
			status = fmt.Sprintf("%d", f.StatusCode)
		}
		if _, err := fmt.Fprintf(out, "%s  %-9s %-4s %s  %s\n  prompt: %d chars, digest %s\n",
			f.Time.Local().Format(time.RFC3339), f.Kind, status, f.SessionID, f.Detail, f.PromptLen, f.PromptDigest); err != nil {
			return err
		}
	}
	return nil
}
