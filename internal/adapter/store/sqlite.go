package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"agentdesk/internal/domain"
)

var (
	_ domain.ConversationStore = (*SQLiteStore)(nil)
	_ domain.CommerceStore     = (*SQLiteStore)(nil)
)

// SQLiteStore implements the conversation and commerce stores on SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// Open opens (or creates) a SQLite database at dbPath and runs the schema
// migrations.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	return &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrations run in order; user_version records how many have been applied.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		email      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id),
		title      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);
	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		agent_type      TEXT NOT NULL DEFAULT '',
		reasoning       TEXT NOT NULL DEFAULT '',
		tokens_used     INTEGER NOT NULL DEFAULT 0,
		timestamp       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL REFERENCES users(id),
		order_number       TEXT NOT NULL UNIQUE,
		status             TEXT NOT NULL,
		total              TEXT NOT NULL,
		items              TEXT NOT NULL DEFAULT '[]',
		tracking_number    TEXT,
		estimated_delivery TEXT,
		created_at         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);
	CREATE TABLE IF NOT EXISTS payments (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL REFERENCES users(id),
		order_id    TEXT NOT NULL REFERENCES orders(id),
		amount      TEXT NOT NULL,
		status      TEXT NOT NULL,
		method      TEXT NOT NULL,
		invoice_url TEXT,
		created_at  TEXT NOT NULL,
		refunded_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(order_id);
	CREATE TABLE IF NOT EXISTS faqs (
		id       TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer   TEXT NOT NULL,
		category TEXT NOT NULL
	)`,
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// newID returns a ULID that sorts after every id this store handed out before.
func (s *SQLiteStore) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

// timeLayout keeps a fixed fraction width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func toNullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func toNullTime(p *time.Time) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*p), Valid: true}
}

func storeErr(op string, err error) error {
	return domain.NewSubSystemError("store", op, domain.ErrStore, err.Error())
}

// --- Conversations ---

// CreateConversation implements domain.ConversationStore. Unknown users are
// created on the fly.
func (s *SQLiteStore) CreateConversation(ctx context.Context, userID, title string) (*domain.Conversation, error) {
	now := s.now()
	conv := &domain.Conversation{
		ID:        s.newID(now),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("SQLiteStore.CreateConversation", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO users (id, created_at) VALUES (?, ?)", userID, formatTime(now),
	); err != nil {
		return nil, storeErr("SQLiteStore.CreateConversation", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		conv.ID, conv.UserID, conv.Title, formatTime(now), formatTime(now),
	); err != nil {
		return nil, storeErr("SQLiteStore.CreateConversation", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("SQLiteStore.CreateConversation", err)
	}
	return conv, nil
}

// GetConversation implements domain.ConversationStore. Messages are not loaded.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ?", id,
	)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewSubSystemError("conversation", "SQLiteStore.GetConversation", domain.ErrConversationNotFound, id)
	}
	if err != nil {
		return nil, storeErr("SQLiteStore.GetConversation", err)
	}
	return conv, nil
}

// ListConversations implements domain.ConversationStore, most recently
// updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE user_id = ? ORDER BY updated_at DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, storeErr("SQLiteStore.ListConversations", err)
	}
	defer rows.Close()

	convs := []domain.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, storeErr("SQLiteStore.ListConversations", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("SQLiteStore.ListConversations", err)
	}
	return convs, nil
}

// DeleteConversation implements domain.ConversationStore. The conversation's
// messages are removed in the same transaction.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("SQLiteStore.DeleteConversation", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return storeErr("SQLiteStore.DeleteConversation", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return storeErr("SQLiteStore.DeleteConversation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewSubSystemError("conversation", "SQLiteStore.DeleteConversation", domain.ErrConversationNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("SQLiteStore.DeleteConversation", err)
	}
	return nil
}

// TouchConversation implements domain.ConversationStore.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?", formatTime(s.now()), id,
	)
	if err != nil {
		return storeErr("SQLiteStore.TouchConversation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewSubSystemError("conversation", "SQLiteStore.TouchConversation", domain.ErrConversationNotFound, id)
	}
	return nil
}

// --- Messages ---

const messageColumns = "id, conversation_id, role, content, agent_type, reasoning, tokens_used, timestamp"

// RecentMessages implements domain.ConversationStore, most recent first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.StoredMessage, error) {
	if limit <= 0 {
		return []domain.StoredMessage{}, nil
	}
	return s.queryMessages(ctx, "SQLiteStore.RecentMessages",
		"SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?",
		conversationID, limit,
	)
}

// Messages implements domain.ConversationStore, oldest first.
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string) ([]domain.StoredMessage, error) {
	return s.queryMessages(ctx, "SQLiteStore.Messages",
		"SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC, id ASC",
		conversationID,
	)
}

// AppendMessage implements domain.ConversationStore. ID and Timestamp are
// assigned when empty.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg domain.StoredMessage) (*domain.StoredMessage, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if msg.ID == "" {
		msg.ID = s.newID(msg.Timestamp)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages ("+messageColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.AgentType, msg.Reasoning,
		msg.TokensUsed, formatTime(msg.Timestamp),
	)
	if err != nil {
		return nil, storeErr("SQLiteStore.AppendMessage", err)
	}
	return &msg, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, op, query string, args ...any) ([]domain.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	msgs := []domain.StoredMessage{}
	for rows.Next() {
		var m domain.StoredMessage
		var ts string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.AgentType,
			&m.Reasoning, &m.TokensUsed, &ts); err != nil {
			return nil, storeErr(op, err)
		}
		m.Timestamp = parseTime(ts)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return msgs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*domain.Conversation, error) {
	var c domain.Conversation
	var createdStr, updatedStr string
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &createdStr, &updatedStr); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdStr)
	c.UpdatedAt = parseTime(updatedStr)
	return &c, nil
}

// --- Commerce ---

const orderColumns = "id, user_id, order_number, status, total, items, tracking_number, estimated_delivery, created_at"

// OrderByNumber implements domain.CommerceStore.
func (s *SQLiteStore) OrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE order_number = ?", orderNumber)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewSubSystemError("order", "SQLiteStore.OrderByNumber", domain.ErrNotFound, orderNumber)
	}
	if err != nil {
		return nil, storeErr("SQLiteStore.OrderByNumber", err)
	}
	return order, nil
}

// OrdersByUser implements domain.CommerceStore, newest first.
func (s *SQLiteStore) OrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY created_at DESC, order_number DESC", userID,
	)
	if err != nil {
		return nil, storeErr("SQLiteStore.OrdersByUser", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, storeErr("SQLiteStore.OrdersByUser", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("SQLiteStore.OrdersByUser", err)
	}
	return orders, nil
}

// PaymentByOrder implements domain.CommerceStore.
func (s *SQLiteStore) PaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, order_id, amount, status, method, invoice_url, created_at, refunded_at
		 FROM payments WHERE order_id = ? ORDER BY created_at LIMIT 1`, orderID,
	)
	var p domain.Payment
	var invoiceURL, refundedAt sql.NullString
	var createdStr string
	err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.Amount, &p.Status, &p.Method, &invoiceURL, &createdStr, &refundedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewSubSystemError("payment", "SQLiteStore.PaymentByOrder", domain.ErrNotFound, orderID)
	}
	if err != nil {
		return nil, storeErr("SQLiteStore.PaymentByOrder", err)
	}
	p.InvoiceURL = nullString(invoiceURL)
	p.CreatedAt = parseTime(createdStr)
	p.RefundedAt = nullTime(refundedAt)
	return &p, nil
}

// likeEscaper escapes LIKE wildcards so the query matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchFAQs implements domain.CommerceStore: a case-insensitive substring
// match on question or answer.
func (s *SQLiteStore) SearchFAQs(ctx context.Context, query string) ([]domain.FAQ, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, category FROM faqs
		 WHERE question LIKE ? ESCAPE '\' OR answer LIKE ? ESCAPE '\'
		 ORDER BY id`, pattern, pattern,
	)
	if err != nil {
		return nil, storeErr("SQLiteStore.SearchFAQs", err)
	}
	defer rows.Close()

	faqs := []domain.FAQ{}
	for rows.Next() {
		var f domain.FAQ
		if err := rows.Scan(&f.ID, &f.Question, &f.Answer, &f.Category); err != nil {
			return nil, storeErr("SQLiteStore.SearchFAQs", err)
		}
		faqs = append(faqs, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("SQLiteStore.SearchFAQs", err)
	}
	return faqs, nil
}

func scanOrder(row scanner) (*domain.Order, error) {
	var o domain.Order
	var itemsStr, createdStr string
	var tracking, eta sql.NullString
	if err := row.Scan(&o.ID, &o.UserID, &o.OrderNumber, &o.Status, &o.Total, &itemsStr,
		&tracking, &eta, &createdStr); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(itemsStr), &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	o.TrackingNumber = nullString(tracking)
	o.EstimatedDelivery = nullTime(eta)
	o.CreatedAt = parseTime(createdStr)
	return &o, nil
}
