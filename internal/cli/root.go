// Package cli provides the command-line interface for docchat.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/docchat/internal/app"
	"github.com/raphaelgruber/docchat/internal/config"
	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose        bool
	conversationID string

	// Global config and data layer
	cfg         config.Config
	application *app.App
	logCleanup  func() error

	// newApp builds the data layer; tests swap it for one bound to a fake backend.
	newApp = func(cfg config.Config, deps app.Deps) (*app.App, error) {
		return app.New(cfg, deps)
	}
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Chat with your documents",
	Long: `Docchat is a terminal client for a document-chat service.

Organize ingested documents into conversations, toggle which ones the
assistant may cite, and ask questions grounded in them.

Most commands act on one conversation, chosen with --conversation or the
DOCCHAT_CONVERSATION environment variable.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if conversationID == "" {
			conversationID = cfg.DefaultConversation
		}

		var logger *slog.Logger
		logger, logCleanup = setupLogger(cfg)

		out := cmd.ErrOrStderr()
		if notice, ok, err := takeNotice(cfg.StateDir); err != nil {
			logger.Warn("failed to read pending notice", "error", err)
		} else if ok {
			fmt.Fprintln(out, renderNotice(defaultTheme, notice))
		}

		application, err = newApp(cfg, app.Deps{
			Logger:  logger,
			Metrics: metrics.NewCollector(),
			OnSignedOut: func() {
				fmt.Fprintln(out, defaultTheme.warningStyle().Render("Your session has expired. Run 'docchat login' to sign in again."))
			},
		})
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application == nil {
			return
		}
		out := cmd.ErrOrStderr()

		// Reported when the next command starts.
		if notice, ok := application.TakeNotice(); ok {
			if err := saveNotice(cfg.StateDir, notice); err != nil {
				fmt.Fprintln(out, renderNotice(defaultTheme, notice))
			}
		}
		if verbose {
			fmt.Fprint(out, renderMetrics(application.Metrics().Snapshot()))
		}

		application.Close()
		application = nil
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(out, "Warning: failed to close log file: %v\n", err)
			}
			logCleanup = nil
		}
	},
}

// setupLogger logs to the log file only, so log lines do not tear through
// the terminal UI. --verbose adds debug output on stderr.
func setupLogger(cfg config.Config) (*slog.Logger, func() error) {
	if verbose {
		return config.SetupLogger(cfg.LogFile, slog.LevelDebug)
	}
	if cfg.LogFile == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() error { return nil }
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() error { return nil }
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() error { return nil }
	}
	return config.SetupLoggerWithWriters(io.Discard, file, cfg.LogLevel()).With("app", "docchat"), file.Close
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		// PersistentPostRun is skipped when RunE fails.
		rootCmd.PersistentPostRun(rootCmd, nil)
		return presentError(err)
	}
	return nil
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&conversationID, "conversation", "c", "", "conversation id (default $DOCCHAT_CONVERSATION)")

	// Add subcommands
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(chatCmd)
}

// requireConversation returns the conversation selected by flag or environment.
func requireConversation() (string, error) {
	if conversationID == "" {
		return "", fmt.Errorf("no conversation selected: pass --conversation or set DOCCHAT_CONVERSATION")
	}
	application.ConversationStore().Select(conversationID)
	return conversationID, nil
}

// commandContext returns the command's context, which cobra leaves nil
// when Execute is used instead of ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
