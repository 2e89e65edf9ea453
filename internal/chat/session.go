// Package chat owns the in-progress assistant message of a conversation.
//
// A Session turns a prompt into a streamed reply: it persists the user
// message and an empty assistant placeholder, consumes deltas from the
// provider, applies them in arrival order to the placeholder and publishes
// an immutable Snapshot of the conversation after every change.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/batu-chat/batu/internal/ai"
	"github.com/batu-chat/batu/internal/history"
	"github.com/batu-chat/batu/internal/stats"
)

// ErrorPrefix marks placeholder content that replaced a failed reply.
const ErrorPrefix = "[error] "

var (
	// ErrBusy is returned when a reply is already streaming.
	ErrBusy = errors.New("a reply is already streaming")
	// ErrEmptyPrompt is returned for a blank prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrNotUserMessage is returned by Resend for assistant messages or
	// messages of another conversation.
	ErrNotUserMessage = errors.New("not a user message of this conversation")

	errStreamClosed = errors.New("stream closed without a terminal state")
)

// Streamer produces the reply to a prompt. *ai.Client implements it.
type Streamer interface {
	ChatStream(ctx context.Context, model string, history []ai.Message, prompt string) <-chan ai.StreamDelta
}

// Sink receives the assistant reply as it streams.
type Sink interface {
	CreatePlaceholder(ctx context.Context, conversationID string) (string, error)
	Append(ctx context.Context, messageID, text string) error
	Overwrite(ctx context.Context, messageID, content string) error
}

// Store is the persistence a Session needs. *history.Store implements it.
type Store interface {
	Sink
	Messages(ctx context.Context, conversationID string) ([]history.Message, error)
	Message(ctx context.Context, id string) (*history.Message, error)
	AddUserMessage(ctx context.Context, conversationID, content string) (*history.Message, error)
	SetModel(ctx context.Context, conversationID, model string) error
}

// Snapshot is the state of a conversation at one point of a stream.
// Messages is shared between subscribers and must not be modified.
type Snapshot struct {
	ConversationID string
	Messages       []history.Message
	State          ai.State
	// StreamingID is the placeholder receiving deltas; empty once the
	// stream is terminal.
	StreamingID string
}

// Result describes a finished stream.
type Result struct {
	ConversationID string
	MessageID      string
	State          ai.State
	// Content is what was persisted into the placeholder.
	Content    string
	Err        error
	FirstDelta time.Duration
	Duration   time.Duration
	Deltas     int
}

// Options configures a Session.
type Options struct {
	Streamer Streamer
	Store    Store
	Model    string
	// Record receives one stats record per finished stream. Optional.
	Record func(stats.Record)
	Logger *slog.Logger
}

// Session streams replies into a store, one at a time.
type Session struct {
	streamer Streamer
	store    Store
	record   func(stats.Record)
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	model string
	busy  bool

	subMu sync.RWMutex
	subs  map[string]chan Snapshot
}

// New creates a Session.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		streamer: opts.Streamer,
		store:    opts.Store,
		record:   opts.Record,
		logger:   logger.With("component", "chat"),
		now:      time.Now,
		model:    opts.Model,
		subs:     make(map[string]chan Snapshot),
	}
}

// Model returns the model used for the next Send.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel changes the model used for subsequent sends.
func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// Subscribe returns a channel of snapshots. Only the latest snapshot is
// buffered: a slow reader skips intermediate ones but always sees the
// terminal snapshot of a stream unless a newer one replaced it. The
// channel is closed when ctx is done.
func (s *Session) Subscribe(ctx context.Context) <-chan Snapshot {
	id := uuid.NewString()
	ch := make(chan Snapshot, 1)

	s.subMu.Lock()
	s.subs[id] = ch
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		delete(s.subs, id)
		close(ch)
		s.subMu.Unlock()
	}()
	return ch
}

func (s *Session) publish(snap Snapshot) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Replace the stale snapshot.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Resend sends the content of an earlier user message again as a new
// prompt.
func (s *Session) Resend(ctx context.Context, conversationID, messageID string) (*Result, error) {
	m, err := s.store.Message(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.ConversationID != conversationID || m.Role != history.RoleUser {
		return nil, ErrNotUserMessage
	}
	return s.Send(ctx, conversationID, m.Content)
}

// Send persists prompt as a user message and streams the reply into a new
// assistant placeholder. It blocks until the stream is terminal.
//
// The returned error covers setup only. Stream failures are reported in
// Result.Err, and the placeholder is overwritten with ErrorPrefix followed
// by the error message. Cancelling ctx ends the stream in ai.StateCancelled
// with the content received so far persisted.
func (s *Session) Send(ctx context.Context, conversationID, prompt string) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.busy = true
	model := s.model
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	prior, err := s.store.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	user, err := s.store.AddUserMessage(ctx, conversationID, prompt)
	if err != nil {
		return nil, fmt.Errorf("saving prompt: %w", err)
	}
	placeholderID, err := s.store.CreatePlaceholder(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("creating placeholder: %w", err)
	}
	if err := s.store.SetModel(ctx, conversationID, model); err != nil {
		s.logger.Warn("failed to record model", "conversation", conversationID, "error", err)
	}

	base := make([]history.Message, 0, len(prior)+2)
	base = append(base, prior...)
	base = append(base, *user)
	base = append(base, history.Message{
		ID:             placeholderID,
		ConversationID: conversationID,
		Role:           history.RoleAssistant,
		CreatedAt:      s.now(),
	})

	st := &stream{
		session:        s,
		conversationID: conversationID,
		placeholderID:  placeholderID,
		base:           base,
		state:          ai.StateConnecting,
		// Writes after a cancel must still land.
		persistCtx: context.WithoutCancel(ctx),
	}
	st.publish()

	s.logger.Debug("stream started", "conversation", conversationID, "model", model, "context", len(prior))
	start := s.now()
	for delta := range s.streamer.ChatStream(ctx, model, toWire(prior), prompt) {
		st.apply(ctx, delta, start)
	}
	if !st.state.Terminal() {
		st.state, st.err = ai.StateFailed, errStreamClosed
	}

	res := st.finalize(start)
	s.logger.Debug("stream finished", "conversation", conversationID, "state", res.State,
		"deltas", res.Deltas, "elapsed", res.Duration)

	if s.record != nil {
		s.record(stats.Record{
			Timestamp:      start,
			ConversationID: conversationID,
			Model:          model,
			Outcome:        res.State.String(),
			FirstDeltaMs:   res.FirstDelta.Milliseconds(),
			DurationMs:     res.Duration.Milliseconds(),
			Deltas:         res.Deltas,
			Chars:          len(res.Content),
			Error:          errString(res.Err),
		})
	}
	return res, nil
}

// stream is the per-Send state. It is only touched by the goroutine that
// called Send.
type stream struct {
	session        *Session
	conversationID string
	placeholderID  string
	// base is the conversation with an empty placeholder last. Snapshots
	// share its prefix and replace only the last element.
	base       []history.Message
	persistCtx context.Context

	state      ai.State
	err        error
	content    strings.Builder
	deltas     int
	firstDelta time.Duration
}

func (st *stream) apply(ctx context.Context, delta ai.StreamDelta, start time.Time) {
	if delta.Done {
		st.state, st.err = delta.State, delta.Err
		return
	}
	if delta.Token == "" {
		if delta.State == ai.StateStreaming && st.state == ai.StateConnecting {
			st.state = ai.StateStreaming
			st.publish()
		}
		return
	}
	// No deltas are applied once cancellation is observed.
	if ctx.Err() != nil {
		return
	}

	if st.deltas == 0 {
		st.firstDelta = st.session.now().Sub(start)
	}
	st.deltas++
	st.content.WriteString(delta.Token)
	st.state = ai.StateStreaming

	if err := st.session.store.Append(st.persistCtx, st.placeholderID, delta.Token); err != nil {
		st.session.logger.Warn("failed to append delta", "message", st.placeholderID, "error", err)
	}
	st.publish()
}

func (st *stream) finalize(start time.Time) *Result {
	content := st.content.String()
	if st.state == ai.StateFailed {
		content = ErrorPrefix + errString(st.err)
	}
	if err := st.session.store.Overwrite(st.persistCtx, st.placeholderID, content); err != nil {
		st.session.logger.Error("failed to persist reply", "message", st.placeholderID, "error", err)
	}

	st.session.publish(st.snapshot(content, ""))

	return &Result{
		ConversationID: st.conversationID,
		MessageID:      st.placeholderID,
		State:          st.state,
		Content:        content,
		Err:            st.err,
		FirstDelta:     st.firstDelta,
		Duration:       st.session.now().Sub(start),
		Deltas:         st.deltas,
	}
}

func (st *stream) publish() {
	st.session.publish(st.snapshot(st.content.String(), st.placeholderID))
}

// snapshot copies base with the placeholder content set. The slice is
// freshly allocated so earlier snapshots stay unchanged.
func (st *stream) snapshot(content, streamingID string) Snapshot {
	last := len(st.base) - 1
	msgs := append(st.base[:last:last], st.base[last])
	msgs[last].Content = content
	return Snapshot{
		ConversationID: st.conversationID,
		Messages:       msgs,
		State:          st.state,
		StreamingID:    streamingID,
	}
}

func toWire(msgs []history.Message) []ai.Message {
	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
