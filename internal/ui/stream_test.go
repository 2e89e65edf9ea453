package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/batu-chat/batu/internal/ai"
	"github.com/batu-chat/batu/internal/chat"
	"github.com/batu-chat/batu/internal/history"
)

func init() {
	color.NoColor = true
}

type fakeIndicator struct {
	starts, stops int
}

func (f *fakeIndicator) Start() { f.starts++ }
func (f *fakeIndicator) Stop()  { f.stops++ }

func snap(state ai.State, content string) chat.Snapshot {
	return chat.Snapshot{
		ConversationID: "c",
		Messages: []history.Message{
			{ID: "u", Role: history.RoleUser, Content: "question"},
			{ID: "a", Role: history.RoleAssistant, Content: content},
		},
		State:       state,
		StreamingID: "a",
	}
}

func feed(snaps ...chat.Snapshot) <-chan chat.Snapshot {
	ch := make(chan chat.Snapshot, len(snaps))
	for _, s := range snaps {
		ch <- s
	}
	close(ch)
	return ch
}

func TestRenderReply_BasicTokens(t *testing.T) {
	ch := feed(
		snap(ai.StateConnecting, ""),
		snap(ai.StateStreaming, ""),
		snap(ai.StateStreaming, "hello"),
		snap(ai.StateStreaming, "hello world"),
		snap(ai.StateSucceeded, "hello world"),
	)

	var buf bytes.Buffer
	result := RenderReply(&buf, ch, "  ", nil)
	if result != "hello world" {
		t.Errorf("expected 'hello world', got %q", result)
	}
	if buf.String() != "  hello world\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestRenderReply_SkippedSnapshots(t *testing.T) {
	// A slow reader only sees some snapshots; output is still complete.
	ch := feed(
		snap(ai.StateStreaming, "a"),
		snap(ai.StateSucceeded, "abcdef"),
	)

	var buf bytes.Buffer
	RenderReply(&buf, ch, "", nil)
	if buf.String() != "abcdef\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestRenderReply_Indicator(t *testing.T) {
	ind := &fakeIndicator{}
	ch := feed(
		snap(ai.StateConnecting, ""),
		snap(ai.StateStreaming, ""),
		snap(ai.StateStreaming, "x"),
		snap(ai.StateSucceeded, "x"),
	)

	var buf bytes.Buffer
	RenderReply(&buf, ch, "", ind)
	if ind.starts != 1 {
		t.Errorf("expected indicator started once, got %d", ind.starts)
	}
	if ind.stops != 1 {
		t.Errorf("expected indicator stopped once, got %d", ind.stops)
	}
}

func TestRenderReply_IndicatorStoppedOnError(t *testing.T) {
	ind := &fakeIndicator{}
	ch := feed(
		snap(ai.StateConnecting, ""),
		snap(ai.StateFailed, "[error] OpenRouter error (HTTP 401): bad key"),
	)

	var buf bytes.Buffer
	result := RenderReply(&buf, ch, "", ind)
	if ind.stops != 1 {
		t.Errorf("expected indicator stopped, got %d", ind.stops)
	}
	if !strings.Contains(buf.String(), "HTTP 401") {
		t.Errorf("error content not printed: %q", buf.String())
	}
	if result != "[error] OpenRouter error (HTTP 401): bad key" {
		t.Errorf("unexpected result %q", result)
	}
}

func TestRenderReply_ErrorAfterPartial(t *testing.T) {
	ch := feed(
		snap(ai.StateStreaming, "partial"),
		snap(ai.StateFailed, "[error] read stream: reset"),
	)

	var buf bytes.Buffer
	RenderReply(&buf, ch, "", nil)
	if buf.String() != "partial\n[error] read stream: reset\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestRenderReply_Cancelled(t *testing.T) {
	ch := feed(
		snap(ai.StateStreaming, "half"),
		snap(ai.StateCancelled, "half"),
	)

	var buf bytes.Buffer
	result := RenderReply(&buf, ch, "", nil)
	if result != "half" {
		t.Errorf("expected partial content kept, got %q", result)
	}
	if buf.String() != "half\n[cancelled]\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestRenderReply_ClosedChannel(t *testing.T) {
	ch := make(chan chat.Snapshot)
	close(ch)

	var buf bytes.Buffer
	if result := RenderReply(&buf, ch, "", nil); result != "" {
		t.Errorf("expected empty result, got %q", result)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestRenderReply_ClosedMidStream(t *testing.T) {
	ch := feed(snap(ai.StateStreaming, "no newline at end"))

	var buf bytes.Buffer
	RenderReply(&buf, ch, "", nil)
	if !strings.HasSuffix(buf.String(), "end\n") {
		t.Errorf("output should end with newline, got %q", buf.String())
	}
}

func TestRenderReply_PreservesExistingNewline(t *testing.T) {
	ch := feed(snap(ai.StateSucceeded, "ends with newline\n"))

	var buf bytes.Buffer
	RenderReply(&buf, ch, "", nil)
	if buf.String() != "ends with newline\n" {
		t.Errorf("should not double newline, got %q", buf.String())
	}
}

func TestRenderReply_EmptyMessages(t *testing.T) {
	ch := feed(chat.Snapshot{State: ai.StateStreaming}, snap(ai.StateSucceeded, "ok"))

	var buf bytes.Buffer
	if result := RenderReply(&buf, ch, "", nil); result != "ok" {
		t.Errorf("expected 'ok', got %q", result)
	}
}
