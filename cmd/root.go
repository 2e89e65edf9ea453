package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/batu-chat/batu/internal/ai"
	"github.com/batu-chat/batu/internal/chat"
	"github.com/batu-chat/batu/internal/config"
	"github.com/batu-chat/batu/internal/history"
	"github.com/batu-chat/batu/internal/stats"
)

var (
	verbose   bool
	modelFlag string
	dbFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "batu",
	Short: "Chat with OpenRouter models from your terminal",
	Long: `batu streams chat replies from OpenRouter into your terminal and keeps
every conversation in a local database.

Examples:
  batu config set-key
  batu chat
  batu ask "explain goroutines in two sentences"
  batu models --free llama`,
	SilenceUsage:               true,
	SilenceErrors:              true,
	SuggestionsMinimumDistance: 1,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			slog.SetDefault(newLogger("debug"))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model to use instead of the configured one")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Path to the conversation database (default ~/.batu/batu.db)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(statsCmd)
}

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// reportedError marks a failure the command has already printed. main
// exits non-zero without printing it again.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Reported reports whether err was already shown to the user.
func Reported(err error) bool {
	var re *reportedError
	return errors.As(err, &re)
}

// Execute is the entry point called from main.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds a text logger on stderr. Unknown levels mean warn so
// logs stay out of the chat unless asked for.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// app holds the dependencies of one command invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *history.Store
	client  *ai.Client
	session *chat.Session
}

// newApp loads configuration and wires the store, client and session.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}

	logger := slog.Default()
	if !verbose {
		logger = newLogger(cfg.LogLevel)
		slog.SetDefault(logger)
	}

	path := dbFlag
	if path == "" {
		path = config.DBPath()
	}
	store, err := history.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}

	client := ai.NewClient(cfg, nil, logger)
	session := chat.New(chat.Options{
		Streamer: client,
		Store:    store,
		Model:    cfg.Model,
		Record: func(r stats.Record) {
			if err := stats.Save(r); err != nil {
				logger.Warn("failed to save stats", "error", err)
			}
		},
		Logger: logger,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		client:  client,
		session: session,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) requireKey() error {
	if a.cfg.APIKey == "" {
		return ai.ErrNotConfigured
	}
	return nil
}
