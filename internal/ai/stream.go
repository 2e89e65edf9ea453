package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"

	lineBufferInitial = 64 * 1024
	lineMax           = 1024 * 1024
)

// State is the lifecycle of one streaming exchange.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// StreamDelta represents a single value on a streaming channel.
type StreamDelta struct {
	// Token is the text fragment. Empty for state-only values.
	Token string
	// State is set on transitions (StateStreaming once the response is
	// accepted) and on the final value.
	State State
	// Done is true on the last value sent before the channel closes.
	Done bool
	// Err is non-nil if the stream ended in StateFailed.
	Err error
}

// EventKind classifies one line of the wire stream.
type EventKind int

const (
	// EventIgnore is a blank line, a non-data line or an event without text.
	EventIgnore EventKind = iota
	// EventMalformed is a data line whose payload is not valid JSON.
	EventMalformed
	// EventDelta carries a text fragment.
	EventDelta
	// EventDone is the end-of-stream sentinel.
	EventDone
)

// Event is the parsed form of one wire line.
type Event struct {
	Kind EventKind
	Text string
}

// ParseLine classifies a raw line from the response body. Text is
// taken from choices[0].delta.content, falling back to message.content.
func ParseLine(line string) Event {
	line = strings.TrimSpace(line)
	if len(line) < len(dataPrefix) || !strings.EqualFold(line[:len(dataPrefix)], dataPrefix) {
		return Event{Kind: EventIgnore}
	}

	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == doneSentinel {
		return Event{Kind: EventDone}
	}

	// Only the top-level object has to decode. Fields are then read one
	// at a time so an unexpected sibling cannot hide the text.
	var chunk map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil || chunk == nil {
		return Event{Kind: EventMalformed}
	}

	text := stringField(objectField(firstElement(chunk["choices"]), "delta"), "content")
	if text == "" {
		text = stringField(chunk["message"], "content")
	}
	if text == "" {
		return Event{Kind: EventIgnore}
	}
	return Event{Kind: EventDelta, Text: text}
}

func objectField(raw json.RawMessage, key string) json.RawMessage {
	var obj map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &obj) != nil {
		return nil
	}
	return obj[key]
}

func stringField(raw json.RawMessage, key string) string {
	var s string
	field := objectField(raw, key)
	if len(field) == 0 || json.Unmarshal(field, &s) != nil {
		return ""
	}
	return s
}

func firstElement(raw json.RawMessage) json.RawMessage {
	var arr []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &arr) != nil || len(arr) == 0 {
		return nil
	}
	return arr[0]
}

// lineReader splits a body into lines of at most lineMax bytes. Longer
// lines are drained and reported as overflowed instead of failing the read.
type lineReader struct {
	r   *bufio.Reader
	buf []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{
		r:   bufio.NewReaderSize(r, lineBufferInitial),
		buf: make([]byte, 0, lineBufferInitial),
	}
}

// next returns the next line without its terminator. It returns io.EOF
// only when no bytes remain.
func (lr *lineReader) next() (line string, overflow bool, err error) {
	lr.buf = lr.buf[:0]
	read := false
	for {
		frag, err := lr.r.ReadSlice('\n')
		read = read || len(frag) > 0
		if !overflow {
			if len(lr.buf)+len(frag) > lineMax {
				overflow = true
				lr.buf = lr.buf[:0]
			} else {
				lr.buf = append(lr.buf, frag...)
			}
		}
		switch {
		case err == nil:
			return strings.TrimRight(string(lr.buf), "\r\n"), overflow, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && read:
			return strings.TrimRight(string(lr.buf), "\r\n"), overflow, nil
		default:
			return "", false, err
		}
	}
}

// Consume reads body one line at a time and sends every text delta on out
// in arrival order. It returns the terminal state: StateSucceeded on the
// sentinel or a clean EOF, StateCancelled when ctx is done (checked before
// each read and each send), StateFailed with the read error otherwise.
// Malformed lines, including lines longer than 1 MiB, are skipped.
func Consume(ctx context.Context, body io.Reader, out chan<- StreamDelta) (State, error) {
	lines := newLineReader(body)

	for {
		if ctx.Err() != nil {
			return StateCancelled, nil
		}

		line, overflow, err := lines.next()
		if err != nil {
			if ctx.Err() != nil {
				return StateCancelled, nil
			}
			if errors.Is(err, io.EOF) {
				return StateSucceeded, nil
			}
			return StateFailed, fmt.Errorf("read stream: %w", err)
		}
		if overflow {
			continue
		}

		ev := ParseLine(line)
		switch ev.Kind {
		case EventDone:
			return StateSucceeded, nil
		case EventDelta:
			if ctx.Err() != nil {
				return StateCancelled, nil
			}
			select {
			case out <- StreamDelta{Token: ev.Text}:
			case <-ctx.Done():
				return StateCancelled, nil
			}
		}
	}
}
