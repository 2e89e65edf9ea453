package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/batu-chat/batu/internal/ai"
	"github.com/batu-chat/batu/internal/config"
	"github.com/batu-chat/batu/internal/history"
)

const doctorTimeout = 10 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, API access and local storage",
	Long: `Run a health check on your batu setup. Verifies the API key, that
OpenRouter is reachable, that the configured model exists, and that the
conversation database opens.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yellow := color.New(color.FgYellow)

		cyan.Fprintf(os.Stderr, "\n  batu doctor\n\n")

		pass, fail, warn := 0, 0, 0

		check := func(name string, fn func() (string, error)) {
			detail, err := fn()
			if err != nil {
				if strings.HasPrefix(err.Error(), "warn:") {
					yellow.Fprintf(os.Stderr, "  ⚠ %s\n", name)
					dim.Fprintf(os.Stderr, "    %s\n", strings.TrimPrefix(err.Error(), "warn:"))
					warn++
				} else {
					red.Fprintf(os.Stderr, "  ✗ %s\n", name)
					dim.Fprintf(os.Stderr, "    %s\n", err.Error())
					fail++
				}
				return
			}
			green.Fprintf(os.Stderr, "  ✓ %s", name)
			if detail != "" {
				dim.Fprintf(os.Stderr, " (%s)", detail)
			}
			fmt.Fprintln(os.Stderr)
			pass++
		}

		cfg, cfgErr := config.Load()
		check("Configuration readable", func() (string, error) {
			if cfgErr != nil {
				return "", cfgErr
			}
			return config.Dir(), nil
		})
		if cfgErr != nil {
			return nil
		}
		if modelFlag != "" {
			cfg.Model = modelFlag
		}

		check("API key configured", func() (string, error) {
			if cfg.APIKey == "" {
				return "", fmt.Errorf("run: batu config set-key (or set OPENROUTER_API_KEY)")
			}
			return cfg.MaskedKey(), nil
		})

		client := ai.NewClient(cfg, nil, nil)
		ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
		models, modelsErr := client.Models(ctx)
		cancel()

		check("OpenRouter reachable", func() (string, error) {
			if modelsErr != nil {
				return "", modelsErr
			}
			return fmt.Sprintf("%s, %d models", cfg.BaseURL, len(models)), nil
		})

		check(fmt.Sprintf("Model available (%s)", cfg.Model), func() (string, error) {
			if modelsErr != nil {
				return "", errors.New("warn:skipped, model list unavailable")
			}
			for _, m := range models {
				if m.ID == cfg.Model {
					if m.Free {
						return "free", nil
					}
					return "", nil
				}
			}
			return "", fmt.Errorf("warn:not in the model list; requests will fail with 404 (see: batu models)")
		})

		check("Conversation database", func() (string, error) {
			path := dbFlag
			if path == "" {
				path = config.DBPath()
			}
			store, err := history.Open(path)
			if err != nil {
				return "", err
			}
			defer store.Close()
			convs, err := store.Conversations(cmd.Context())
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s, %d conversations", path, len(convs)), nil
		})

		check("System info", func() (string, error) {
			return fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), nil
		})

		fmt.Fprintln(os.Stderr)
		total := pass + fail + warn
		switch {
		case fail == 0 && warn == 0:
			green.Fprintf(os.Stderr, "  All %d checks passed.\n\n", total)
		case fail == 0:
			yellow.Fprintf(os.Stderr, "  %d passed, %d warnings.\n\n", pass, warn)
		default:
			red.Fprintf(os.Stderr, "  %d passed, %d failed, %d warnings. Fix the failures above.\n\n", pass, fail, warn)
		}
		return nil
	},
}
