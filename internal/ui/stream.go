package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/batu-chat/batu/internal/ai"
	"github.com/batu-chat/batu/internal/chat"
)

// Indicator is shown while a reply is connecting. *Spinner implements it.
type Indicator interface {
	Start()
	Stop()
}

// RenderReply follows the snapshots of one Send and writes the reply to w
// as it grows, prefix first. The indicator (nil for none) runs until the
// first text arrives. A failed reply is printed in red, a cancelled one is
// marked as such. RenderReply returns the final content once a terminal
// snapshot arrives or snaps is closed.
func RenderReply(w io.Writer, snaps <-chan chat.Snapshot, prefix string, ind Indicator) string {
	r := &replyRenderer{w: w, prefix: prefix, ind: ind}
	defer r.stopIndicator()

	for snap := range snaps {
		if len(snap.Messages) == 0 {
			continue
		}
		content := snap.Messages[len(snap.Messages)-1].Content

		if snap.State.Terminal() {
			r.finish(snap.State, content)
			return content
		}
		if snap.State == ai.StateConnecting && ind != nil && !r.indicating && r.printed == 0 {
			ind.Start()
			r.indicating = true
		}
		r.write(content)
	}
	// Closed without a terminal snapshot; end the line we were on.
	if r.printed > 0 {
		r.newline()
	}
	return r.content
}

type replyRenderer struct {
	w          io.Writer
	prefix     string
	ind        Indicator
	indicating bool

	content string
	printed int
}

func (r *replyRenderer) stopIndicator() {
	if r.indicating {
		r.ind.Stop()
		r.indicating = false
	}
}

// write prints the part of content not yet on screen.
func (r *replyRenderer) write(content string) {
	if len(content) <= r.printed || !strings.HasPrefix(content, r.content) {
		return
	}
	r.stopIndicator()
	if r.printed == 0 {
		fmt.Fprint(r.w, r.prefix)
	}
	fmt.Fprint(r.w, content[r.printed:])
	r.content = content
	r.printed = len(content)
}

func (r *replyRenderer) finish(state ai.State, content string) {
	r.stopIndicator()
	switch state {
	case ai.StateFailed:
		if r.printed > 0 {
			r.newline()
		}
		color.New(color.FgRed).Fprintln(r.w, r.prefix+content)
		r.content = content
		return
	case ai.StateCancelled:
		r.write(content)
		if r.printed > 0 {
			r.newline()
		}
		color.New(color.Faint).Fprintln(r.w, r.prefix+"[cancelled]")
		return
	}
	r.write(content)
	r.newline()
}

func (r *replyRenderer) newline() {
	if !strings.HasSuffix(r.content, "\n") {
		fmt.Fprintln(r.w)
	}
}
