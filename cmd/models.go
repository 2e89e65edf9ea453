package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/batu-chat/batu/internal/ai"
	"github.com/batu-chat/batu/internal/ui"
)

const defaultModelLimit = 5

var (
	modelsFree  bool
	modelsLimit int
)

var modelsCmd = &cobra.Command{
	Use:   "models [query...]",
	Short: "Search the OpenRouter model list",
	Long: `List models whose ID contains the query (case-insensitive). Free models
are detected from their pricing or, when pricing is missing, from their
name. Results are shown a page at a time; raise --limit to see more.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sp := ui.NewSpinner("Loading models...")
		sp.Start()
		models, err := a.client.Models(cmd.Context())
		if err != nil {
			sp.Fail("Could not load models")
			return fmt.Errorf("failed to load models: %w", err)
		}
		sp.Success(fmt.Sprintf("%d models", len(models)))

		matches := ai.FilterModels(models, strings.Join(args, " "), modelsFree)
		printModels(matches, modelsLimit)
		return nil
	},
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsFree, "free", false, "Only show free models")
	modelsCmd.Flags().IntVarP(&modelsLimit, "limit", "n", defaultModelLimit, "Number of models to show (0 for all)")
}

func printModels(models []ai.Model, limit int) {
	if len(models) == 0 {
		dim.Println("  No models match.")
		return
	}
	shown := models
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, m := range shown {
		fmt.Printf("  %s", m.ID)
		if m.Free {
			green.Print("  free")
		}
		if m.ContextLength > 0 {
			dim.Printf("  %dk ctx", m.ContextLength/1000)
		}
		fmt.Println()
	}
	if len(shown) < len(models) {
		dim.Printf("  Showing %d of %d. Use --limit or a narrower query for more.\n", len(shown), len(models))
	}
}
