package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/batu-chat/batu/internal/ai"
	"github.com/batu-chat/batu/internal/chat"
	"github.com/batu-chat/batu/internal/config"
	"github.com/batu-chat/batu/internal/history"
	"github.com/batu-chat/batu/internal/ui"
)

const (
	similarLimit     = 10
	inputHistoryFile = "input_history"
)

var (
	chatConversation string
	chatNew          bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start a streaming chat. Replies appear as they are generated; press
Ctrl-C to stop a reply early (the partial answer is kept).

The most recent conversation is resumed unless --new or --conversation is
given. Type /help for in-chat commands.`,
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
		conv, err := openConversation(ctx, a, chatConversation, chatNew)
		if err != nil {
			return err
		}

		r := &repl{app: a, conv: conv}
		return r.run(ctx)
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "Conversation ID (or prefix) to resume")
	chatCmd.Flags().BoolVar(&chatNew, "new", false, "Start a new conversation")
}

// openConversation resumes ref, the newest conversation, or a new one.
func openConversation(ctx context.Context, a *app, ref string, fresh bool) (*history.Conversation, error) {
	if ref != "" {
		return resolveConversation(ctx, a.store, ref)
	}
	if !fresh {
		convs, err := a.store.Conversations(ctx)
		if err != nil {
			return nil, err
		}
		if len(convs) > 0 {
			return &convs[0], nil
		}
	}
	return a.store.NewConversation(ctx, a.session.Model())
}

type repl struct {
	app  *app
	conv *history.Conversation
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(os.Stderr)
	cyan.Fprintln(os.Stderr, "  batu chat")
	dim.Fprintf(os.Stderr, "  %s · %s\n", r.conv.Title, r.app.session.Model())
	dim.Fprintf(os.Stderr, "  Type /help for commands, /exit to quit.\n\n")

	lines := ui.NewLineReader(filepath.Join(config.Dir(), inputHistoryFile))
	defer func() {
		if err := lines.Close(); err != nil {
			r.app.logger.Warn("failed to save input history", "error", err)
		}
	}()

	for {
		input, err := lines.Read("  you → ")
		if err != nil {
			fmt.Fprintln(os.Stderr)
			if errors.Is(err, io.EOF) || errors.Is(err, ui.ErrAborted) {
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			quit, err := r.command(ctx, input)
			if err != nil {
				red.Fprintf(os.Stderr, "  %v\n\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		r.send(ctx, func(ctx context.Context) (*chat.Result, error) {
			return r.app.session.Send(ctx, r.conv.ID, input)
		})
	}
}

func (r *repl) send(ctx context.Context, fn func(ctx context.Context) (*chat.Result, error)) {
	fmt.Println()
	res, err := streamReply(ctx, r.app, fn)
	if err != nil {
		red.Fprintf(os.Stderr, "  Error: %v\n", err)
	}
	if res != nil && errors.Is(res.Err, ai.ErrAuthFailed) {
		dim.Fprintln(os.Stderr, "  Check your key: batu config set-key")
	}
	fmt.Println()
}

// command runs an in-chat slash command and reports whether to quit.
func (r *repl) command(ctx context.Context, input string) (bool, error) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	store := r.app.store

	switch name {
	case "/exit", "/quit":
		dim.Fprintf(os.Stderr, "\n  Bye.\n\n")
		return true, nil

	case "/help":
		printChatHelp()

	case "/new":
		conv, err := store.NewConversation(ctx, r.app.session.Model())
		if err != nil {
			return false, err
		}
		r.conv = conv
		dim.Fprintf(os.Stderr, "  Started conversation %s\n\n", shortID(conv.ID))

	case "/list":
		convs, err := store.Conversations(ctx)
		if err != nil {
			return false, err
		}
		printConversations(convs, r.conv.ID)
		fmt.Println()

	case "/open":
		conv, err := resolveConversation(ctx, store, arg)
		if err != nil {
			return false, err
		}
		r.conv = conv
		msgs, err := store.Messages(ctx, conv.ID)
		if err != nil {
			return false, err
		}
		cyan.Fprintf(os.Stderr, "  %s\n", conv.Title)
		printMessages(msgs)
		fmt.Println()

	case "/show":
		msgs, err := store.Messages(ctx, r.conv.ID)
		if err != nil {
			return false, err
		}
		printMessages(msgs)
		fmt.Println()

	case "/branch":
		msg, err := resolveMessage(ctx, store, r.conv.ID, arg)
		if err != nil {
			return false, err
		}
		conv, err := store.BranchFromMessage(ctx, msg.ID)
		if err != nil {
			return false, err
		}
		r.conv = conv
		dim.Fprintf(os.Stderr, "  Switched to %s (%s)\n\n", conv.Title, shortID(conv.ID))

	case "/resend":
		msg, err := resolveMessage(ctx, store, r.conv.ID, arg)
		if err != nil {
			return false, err
		}
		r.send(ctx, func(ctx context.Context) (*chat.Result, error) {
			return r.app.session.Resend(ctx, r.conv.ID, msg.ID)
		})

	case "/model":
		if arg == "" {
			dim.Fprintf(os.Stderr, "  Model: %s\n\n", r.app.session.Model())
			return false, nil
		}
		r.app.session.SetModel(arg)
		dim.Fprintf(os.Stderr, "  Model set to %s for this session.\n\n", arg)

	case "/models":
		models, err := r.app.client.Models(ctx)
		if err != nil {
			return false, err
		}
		printModels(ai.FilterModels(models, arg, false), defaultModelLimit)
		fmt.Println()

	case "/similar":
		msgs, err := store.SearchUserMessages(ctx, r.conv.ID, arg, similarLimit)
		if err != nil {
			return false, err
		}
		if len(msgs) == 0 {
			dim.Println("  No matching questions.")
		}
		for _, m := range msgs {
			dim.Printf("  [%s] ", shortID(m.ID))
			fmt.Println(m.Content)
		}
		fmt.Println()

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

func printChatHelp() {
	help := [][2]string{
		{"/new", "start a new conversation"},
		{"/list", "list conversations"},
		{"/open <id>", "switch to a conversation"},
		{"/show", "show this conversation with message ids"},
		{"/branch <msg-id>", "copy this conversation up to a message into a new one"},
		{"/resend <msg-id>", "send an earlier question again"},
		{"/model [id]", "show or change the model"},
		{"/models [query]", "search the model list"},
		{"/similar [query]", "find earlier questions in this conversation"},
		{"/exit", "quit"},
	}
	for _, h := range help {
		green.Fprintf(os.Stderr, "  %-18s ", h[0])
		dim.Fprintln(os.Stderr, h[1])
	}
	fmt.Fprintln(os.Stderr)
}
