// Package history persists conversations and their messages in SQLite.
// Message order is the insertion order, fixed by an autoincrement seq column.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	// DefaultTitle is used until a conversation receives its first user
	// message.
	DefaultTitle  = "New chat"
	titleMaxRunes = 50
	branchPrefix  = "Branch: "
)

// Message roles stored in the messages table.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotFound is returned when a conversation or message does not exist.
var ErrNotFound = errors.New("not found")

// Conversation is a titled, ordered thread of messages.
type Conversation struct {
	ID        string
	Title     string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one entry in a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// Store is a SQLite-backed conversation store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path. Parent directories
// are created and the schema is applied.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "history")

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serialises writers and keeps the pragmas below
	// in effect for every statement.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("history store opened", "path", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			model      TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_updated
			ON conversations(updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, seq);
	`)
	return err
}

// NewConversation creates an empty conversation.
func (s *Store) NewConversation(ctx context.Context, model string) (*Conversation, error) {
	now := s.now()
	c := &Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, model, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Model, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}
	s.logger.Debug("conversation created", "id", c.ID)
	return c, nil
}

// Conversation returns the conversation with the given ID.
func (s *Store) Conversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, model, created_at, updated_at FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return c, err
}

// Conversations lists all conversations, most recently updated first.
func (s *Store) Conversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, model, created_at, updated_at FROM conversations
		 ORDER BY updated_at DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Messages returns the messages of a conversation in display order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages
		 WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Message returns a single message.
func (s *Store) Message(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return m, err
}

// AddUserMessage appends a user message. The first user message of a
// conversation that still has the default title also sets its title.
func (s *Store) AddUserMessage(ctx context.Context, conversationID, content string) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var title string
	err = tx.QueryRowContext(ctx, `SELECT title FROM conversations WHERE id = ?`, conversationID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var prior int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND role = ?`,
		conversationID, RoleUser).Scan(&prior); err != nil {
		return nil, err
	}

	m, err := insertMessage(ctx, tx, conversationID, RoleUser, content, s.now())
	if err != nil {
		return nil, err
	}

	if prior == 0 && title == DefaultTitle {
		title = Title(content)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, m.CreatedAt.UnixNano(), conversationID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

// CreatePlaceholder inserts an empty assistant message and returns its ID.
func (s *Store) CreatePlaceholder(ctx context.Context, conversationID string) (string, error) {
	m, err := insertMessage(ctx, s.db, conversationID, RoleAssistant, "", s.now())
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// Append concatenates text onto the content of message id.
func (s *Store) Append(ctx context.Context, id, text string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET content = content || ? WHERE id = ?`, text, id)
	if err != nil {
		return fmt.Errorf("appending to message: %w", err)
	}
	return requireRow(res, id)
}

// Overwrite replaces the content of message id and marks its
// conversation as updated.
func (s *Store) Overwrite(ctx context.Context, id, content string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE messages SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return fmt.Errorf("overwriting message: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ?
		 WHERE id = (SELECT conversation_id FROM messages WHERE id = ?)`,
		s.now().UnixNano(), id); err != nil {
		return err
	}
	return tx.Commit()
}

// BranchFromMessage creates a new conversation holding copies of every
// message up to and including id, in order.
func (s *Store) BranchFromMessage(ctx context.Context, id string) (*Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var srcID string
	var pivot int64
	err = tx.QueryRowContext(ctx, `SELECT conversation_id, seq FROM messages WHERE id = ?`, id).Scan(&srcID, &pivot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	src, err := scanConversation(tx.QueryRowContext(ctx,
		`SELECT id, title, model, created_at, updated_at FROM conversations WHERE id = ?`, srcID))
	if err != nil {
		return nil, err
	}

	now := s.now()
	branch := &Conversation{
		ID:        uuid.NewString(),
		Title:     branchPrefix + src.Title,
		Model:     src.Model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, title, model, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		branch.ID, branch.Title, branch.Model, now.UnixNano(), now.UnixNano()); err != nil {
		return nil, fmt.Errorf("inserting branch: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages
		 WHERE conversation_id = ? AND seq <= ? ORDER BY seq`, srcID, pivot)
	if err != nil {
		return nil, err
	}
	msgs, err := scanMessages(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, m := range msgs {
		if _, err := insertMessage(ctx, tx, branch.ID, m.Role, m.Content, m.CreatedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.logger.Debug("conversation branched", "from", srcID, "to", branch.ID, "messages", len(msgs))
	return branch, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return requireRow(res, id)
}

// SetModel records the model last used in a conversation.
func (s *Store) SetModel(ctx context.Context, conversationID, model string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET model = ? WHERE id = ?`, model, conversationID)
	if err != nil {
		return fmt.Errorf("setting model: %w", err)
	}
	return requireRow(res, conversationID)
}

// SearchUserMessages returns up to limit user messages of a conversation
// containing query (case-insensitive), newest first. A blank query
// matches every user message.
func (s *Store) SearchUserMessages(ctx context.Context, conversationID, query string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages
		 WHERE conversation_id = ? AND role = ? ORDER BY seq DESC`, conversationID, RoleUser)
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	defer rows.Close()

	all, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// SQLite's lower() only folds ASCII, so matching happens here.
	q := strings.ToLower(strings.TrimSpace(query))
	var out []Message
	for _, m := range all {
		if limit > 0 && len(out) >= limit {
			break
		}
		if q == "" || strings.Contains(strings.ToLower(m.Content), q) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Title derives a conversation title from a user message: newlines are
// flattened and the result is capped at 50 runes.
func Title(content string) string {
	t := strings.ReplaceAll(content, "\r", "")
	t = strings.ReplaceAll(t, "\n", " ")
	t = strings.TrimSpace(t)
	if t == "" {
		return DefaultTitle
	}
	runes := []rune(t)
	if len(runes) > titleMaxRunes {
		t = string(runes[:titleMaxRunes-3]) + "..."
	}
	return t
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, conversationID, role, content string, at time.Time) (*Message, error) {
	m := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      at,
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, m.Content, at.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
		}
		return nil, fmt.Errorf("inserting message: %w", err)
	}
	return m, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*Conversation, error) {
	var c Conversation
	var created, updated int64
	if err := row.Scan(&c.ID, &c.Title, &c.Model, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(0, created)
	c.UpdatedAt = time.Unix(0, updated)
	return &c, nil
}

func scanMessage(row scanner) (*Message, error) {
	var m Message
	var created int64
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &created); err != nil {
		return nil, err
	}
	m.CreatedAt = time.Unix(0, created)
	return &m, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
