package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/batu-chat/batu/internal/ai"
	"github.com/batu-chat/batu/internal/chat"
	"github.com/batu-chat/batu/internal/history"
)

var askConversation string

var askCmd = &cobra.Command{
	Use:   "ask <prompt...>",
	Short: "Ask a single question and stream the answer",
	Long: `Ask one question and stream the reply to stdout. The exchange is saved
as a new conversation, or appended to --conversation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireKey(); err != nil {
			return err
		}

		ctx := cmd.Context()
		var conv *history.Conversation
		if askConversation != "" {
			conv, err = resolveConversation(ctx, a.store, askConversation)
		} else {
			conv, err = a.store.NewConversation(ctx, a.session.Model())
		}
		if err != nil {
			return err
		}

		prompt := strings.Join(args, " ")
		res, err := streamReply(ctx, a, func(ctx context.Context) (*chat.Result, error) {
			return a.session.Send(ctx, conv.ID, prompt)
		})
		if err != nil {
			return err
		}
		if res.State == ai.StateFailed {
			// The renderer has already printed the error line.
			return &reportedError{err: res.Err}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "Conversation ID (or prefix) to continue")
}
