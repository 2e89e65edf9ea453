package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/batu-chat/batu/internal/chat"
	"github.com/batu-chat/batu/internal/history"
	"github.com/batu-chat/batu/internal/ui"
)

var (
	cyan  = color.New(color.FgCyan, color.Bold)
	dim   = color.New(color.FgHiBlack)
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
)

// streamReply runs send while rendering its snapshots on stdout. Ctrl-C
// cancels only this reply.
func streamReply(ctx context.Context, a *app, send func(ctx context.Context) (*chat.Result, error)) (*chat.Result, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	subCtx, unsubscribe := context.WithCancel(context.Background())
	snaps := a.session.Subscribe(subCtx)

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		ui.RenderReply(os.Stdout, snaps, "  ", ui.NewSpinner("Thinking..."))
	}()

	res, err := send(ctx)
	unsubscribe()
	<-rendered
	return res, err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveConversation finds a conversation by full ID or unique prefix.
func resolveConversation(ctx context.Context, store *history.Store, ref string) (*history.Conversation, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("conversation id required")
	}
	convs, err := store.Conversations(ctx)
	if err != nil {
		return nil, err
	}
	var match *history.Conversation
	for i := range convs {
		if convs[i].ID == ref {
			return &convs[i], nil
		}
		if strings.HasPrefix(convs[i].ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("conversation id %q is ambiguous", ref)
			}
			match = &convs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("conversation %q: %w", ref, history.ErrNotFound)
	}
	return match, nil
}

// resolveMessage finds a message of a conversation by full ID or unique
// prefix.
func resolveMessage(ctx context.Context, store *history.Store, conversationID, ref string) (*history.Message, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("message id required")
	}
	msgs, err := store.Messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	var match *history.Message
	for i := range msgs {
		if msgs[i].ID == ref {
			return &msgs[i], nil
		}
		if strings.HasPrefix(msgs[i].ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("message id %q is ambiguous", ref)
			}
			match = &msgs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("message %q: %w", ref, history.ErrNotFound)
	}
	return match, nil
}

// titleColumn is the display width of titles in conversation lists.
const titleColumn = 40

// printConversations lists conversations, marking current.
func printConversations(convs []history.Conversation, current string) {
	if len(convs) == 0 {
		dim.Println("  No conversations yet.")
		return
	}
	for _, c := range convs {
		marker := "  "
		if c.ID == current {
			marker = "* "
		}
		fmt.Print(marker)
		color.New(color.FgCyan).Printf("%s ", shortID(c.ID))
		fmt.Printf("%s ", runewidth.FillRight(runewidth.Truncate(c.Title, titleColumn, "…"), titleColumn))
		dim.Printf("(%s, %s)\n", c.UpdatedAt.Format("2006-01-02 15:04"), c.Model)
	}
}

// printMessages prints a conversation transcript with message IDs.
func printMessages(msgs []history.Message) {
	if len(msgs) == 0 {
		dim.Println("  No messages.")
		return
	}
	for _, m := range msgs {
		dim.Printf("  [%s] ", shortID(m.ID))
		if m.Role == history.RoleUser {
			green.Print("you → ")
		} else {
			cyan.Print("batu → ")
		}
		if strings.HasPrefix(m.Content, chat.ErrorPrefix) {
			red.Println(m.Content)
			continue
		}
		fmt.Println(m.Content)
	}
}
