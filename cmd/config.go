package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/batu-chat/batu/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage batu configuration",
}

var setKeyCmd = &cobra.Command{
	Use:   "set-key [api-key]",
	Short: "Store your OpenRouter API key (encrypted)",
	Long: `Store your OpenRouter API key in the local vault. When no key is given
on the command line you are prompted for it without echo, which keeps it
out of your shell history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			var err error
			key, err = readSecret("OpenRouter API key: ")
			if err != nil {
				return err
			}
		}
		if err := config.SetAPIKey(key); err != nil {
			return fmt.Errorf("failed to save API key: %w", err)
		}
		fmt.Println("API key saved.")
		return nil
	},
}

var clearKeyCmd = &cobra.Command{
	Use:   "clear-key",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ClearAPIKey(); err != nil {
			return fmt.Errorf("failed to clear API key: %w", err)
		}
		fmt.Println("API key removed.")
		return nil
	},
}

var setModelCmd = &cobra.Command{
	Use:   "set-model <model-id>",
	Short: "Set the default model (default: " + config.DefaultModel + ")",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetModel(args[0]); err != nil {
			return fmt.Errorf("failed to save model: %w", err)
		}
		fmt.Printf("Model set to %s.\n", args[0])
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Printf("Model:      %s\n", cfg.Model)
		fmt.Printf("API Key:    %s\n", cfg.MaskedKey())
		fmt.Printf("Base URL:   %s\n", cfg.BaseURL)
		fmt.Printf("Config Dir: %s\n", config.Dir())
		fmt.Printf("Database:   %s\n", config.DBPath())
		return nil
	},
}

// readSecret prompts on stderr and reads a line without echo when stdin
// is a terminal.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func init() {
	configCmd.AddCommand(setKeyCmd)
	configCmd.AddCommand(clearKeyCmd)
	configCmd.AddCommand(setModelCmd)
	configCmd.AddCommand(showCmd)
}
