package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, show, search and delete conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyListCmd.RunE(cmd, args)
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		convs, err := a.store.Conversations(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
		printConversations(convs, "")
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		conv, err := resolveConversation(ctx, a.store, args[0])
		if err != nil {
			return err
		}
		msgs, err := a.store.Messages(ctx, conv.ID)
		if err != nil {
			return err
		}
		cyan.Printf("  %s\n", conv.Title)
		dim.Printf("  %s · %s\n\n", conv.ID, conv.Model)
		printMessages(msgs)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		conv, err := resolveConversation(ctx, a.store, args[0])
		if err != nil {
			return err
		}
		if err := a.store.DeleteConversation(ctx, conv.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted %q.\n", conv.Title)
		return nil
	},
}

var historySearchCmd = &cobra.Command{
	Use:   "search <conversation-id> [query...]",
	Short: "Find earlier questions in a conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		conv, err := resolveConversation(ctx, a.store, args[0])
		if err != nil {
			return err
		}
		msgs, err := a.store.SearchUserMessages(ctx, conv.ID, strings.Join(args[1:], " "), searchLimit)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("No matching questions.")
			return nil
		}
		for _, m := range msgs {
			dim.Printf("[%s] %s  ", shortID(m.ID), m.CreatedAt.Format("2006-01-02 15:04"))
			fmt.Println(m.Content)
		}
		return nil
	},
}

var historyBranchCmd = &cobra.Command{
	Use:   "branch <conversation-id> <message-id>",
	Short: "Copy a conversation up to a message into a new conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		conv, err := resolveConversation(ctx, a.store, args[0])
		if err != nil {
			return err
		}
		msg, err := resolveMessage(ctx, a.store, conv.ID, args[1])
		if err != nil {
			return err
		}
		branch, err := a.store.BranchFromMessage(ctx, msg.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Created %q (%s).\n", branch.Title, shortID(branch.ID))
		return nil
	},
}

func init() {
	historySearchCmd.Flags().IntVarP(&searchLimit, "limit", "n", similarLimit, "Maximum number of questions to show")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historySearchCmd)
	historyCmd.AddCommand(historyBranchCmd)
}
