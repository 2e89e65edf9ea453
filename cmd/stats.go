package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/batu-chat/batu/internal/config"
	"github.com/batu-chat/batu/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show streaming statistics",
	Long: `Display a dashboard of your batu usage: reply counts and outcomes,
time to first token, reply duration and most used models.

Data is collected automatically and stored locally in ~/.batu/stats.json.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := stats.Summarize()
		if err != nil {
			return fmt.Errorf("failed to load stats: %w", err)
		}

		yellow := color.New(color.FgYellow)

		cyan.Fprintf(os.Stderr, "\n  batu stats\n\n")

		if summary.TotalStreams == 0 {
			dim.Fprintf(os.Stderr, "  No data yet. Stats are written to %s/stats.json.\n\n", config.Dir())
			return nil
		}

		green.Fprintf(os.Stderr, "  Replies:   ")
		fmt.Fprintf(os.Stderr, "%d total", summary.TotalStreams)
		dim.Fprintf(os.Stderr, "  (%d today, %d this week)\n", summary.TodayCount, summary.ThisWeekCount)

		green.Fprintf(os.Stderr, "  Success:   ")
		if summary.SuccessRate >= 90 {
			fmt.Fprintf(os.Stderr, "%.0f%%", summary.SuccessRate)
		} else {
			yellow.Fprintf(os.Stderr, "%.0f%%", summary.SuccessRate)
		}
		dim.Fprintf(os.Stderr, "  (%d failed, %d cancelled)\n", summary.Failed, summary.Cancelled)

		green.Fprintf(os.Stderr, "  First token: ")
		fmt.Fprintf(os.Stderr, "%dms avg\n", summary.AvgFirstDeltaMs)
		green.Fprintf(os.Stderr, "  Duration:  ")
		fmt.Fprintf(os.Stderr, "%dms avg\n", summary.AvgDurationMs)
		green.Fprintf(os.Stderr, "  Output:    ")
		fmt.Fprintf(os.Stderr, "%d chars\n", summary.TotalChars)

		if len(summary.TopModels) > 0 {
			fmt.Fprintln(os.Stderr)
			cyan.Fprintln(os.Stderr, "  Top Models")
			for i, mc := range summary.TopModels {
				pct := float64(mc.Count) / float64(summary.TotalStreams) * 100
				bar := strings.Repeat("█", int(pct/5))
				dim.Fprintf(os.Stderr, "  %d. ", i+1)
				fmt.Fprintf(os.Stderr, "%-40s %s %d\n", mc.Model, bar, mc.Count)
			}
		}

		fmt.Fprintln(os.Stderr)
		return nil
	},
}
