package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batu-chat/batu/internal/history"
)

func setupStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "batu.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestResolveConversation(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	conv, err := store.NewConversation(ctx, "openrouter/auto")
	require.NoError(t, err)

	got, err := resolveConversation(ctx, store, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	got, err = resolveConversation(ctx, store, "  "+shortID(conv.ID)+" ")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = resolveConversation(ctx, store, "zzzz")
	assert.ErrorIs(t, err, history.ErrNotFound)

	_, err = resolveConversation(ctx, store, "")
	assert.Error(t, err)
}

func TestResolveConversationAmbiguous(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	a, err := store.NewConversation(ctx, "m")
	require.NoError(t, err)
	b, err := store.NewConversation(ctx, "m")
	require.NoError(t, err)

	prefix := commonPrefix(a.ID, b.ID)
	if prefix == "" {
		t.Skip("generated IDs share no prefix")
	}
	_, err = resolveConversation(ctx, store, prefix)
	assert.ErrorContains(t, err, "ambiguous")
}

func TestResolveMessage(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	conv, err := store.NewConversation(ctx, "m")
	require.NoError(t, err)
	msg, err := store.AddUserMessage(ctx, conv.ID, "hello")
	require.NoError(t, err)

	got, err := resolveMessage(ctx, store, conv.ID, shortID(msg.ID))
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	other, err := store.NewConversation(ctx, "m")
	require.NoError(t, err)
	_, err = resolveMessage(ctx, store, other.ID, msg.ID)
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcdefgh", shortID("abcdefghijk"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" INFO ", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelWarn},
		{"loud", slog.LevelWarn},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := newLogger(tt.level)
			assert.True(t, logger.Enabled(ctx, tt.want))
			if tt.want > slog.LevelDebug {
				assert.False(t, logger.Enabled(ctx, tt.want-1))
			}
		})
	}
}

func commonPrefix(a, b string) string {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return a[:n]
}
