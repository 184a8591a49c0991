// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/clstr-network/clstr/lib/clock"
	"github.com/clstr-network/clstr/lib/ref"
	"github.com/clstr-network/clstr/lib/sqlitepool"
)

// storeSchema holds the message log. The pair columns store the two
// participant IDs in canonical order (ref.OrderPair) so history and
// aggregation queries are direction-independent. Timestamps are Unix
// nanoseconds; created_at is strictly monotonic within a pair (see
// Append), which makes it a loss-free pagination cursor.
const storeSchema = `
CREATE TABLE IF NOT EXISTS messages (
    id           TEXT PRIMARY KEY,
    sender_id    TEXT NOT NULL,
    receiver_id  TEXT NOT NULL,
    low_user_id  TEXT NOT NULL,
    high_user_id TEXT NOT NULL,
    content      TEXT NOT NULL,
    domain       TEXT NOT NULL,
    is_read      INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_pair_created
    ON messages (low_user_id, high_user_id, created_at);

CREATE INDEX IF NOT EXISTS messages_receiver_unread
    ON messages (receiver_id, is_read, sender_id);
`

// messageColumns is the SELECT list every query shares, in the order
// scanMessage expects.
const messageColumns = "id, sender_id, receiver_id, content, domain, is_read, created_at, updated_at"

// StoreConfig holds the parameters for opening a Store.
type StoreConfig struct {
	// Pool is the service's SQLite connection pool. Required.
	Pool *sqlitepool.Pool

	// Clock provides message timestamps. Required.
	Clock clock.Clock

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Store persists the message log.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// OpenStore validates the configuration, installs the message
// schema, and returns a ready Store.
func OpenStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("messaging: Pool is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("messaging: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("messaging: Logger is required")
	}

	conn, err := cfg.Pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging: installing schema: %w", err)
	}
	defer cfg.Pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, storeSchema, nil); err != nil {
		return nil, fmt.Errorf("messaging: installing schema: %w", err)
	}

	return &Store{pool: cfg.Pool, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Append inserts a message with read=false and returns the stored
// record. The caller has already validated content and domain; the
// store only enforces its own invariants.
//
// Within a pair, created_at is assigned strictly greater than every
// earlier message's, even when the wall clock has not advanced (or
// stepped backward). History pagination cuts strictly below the
// cursor, so two messages sharing a timestamp could otherwise
// straddle a page boundary and one would be lost.
func (s *Store) Append(ctx context.Context, sender, receiver ref.UserID, content string, domain ref.Domain) (msg Message, err error) {
	if sender.IsZero() || receiver.IsZero() {
		return Message{}, fmt.Errorf("messaging: append requires sender and receiver")
	}
	if content == "" {
		return Message{}, fmt.Errorf("messaging: append requires content")
	}
	if domain.IsZero() {
		return Message{}, fmt.Errorf("messaging: append requires a domain")
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("messaging: append: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Message{}, fmt.Errorf("messaging: append: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	low, high := ref.OrderPair(sender, receiver)

	var latest int64
	err = sqlitex.Execute(conn,
		"SELECT COALESCE(MAX(created_at), 0) FROM messages WHERE low_user_id = ? AND high_user_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{low.String(), high.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				latest = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return Message{}, fmt.Errorf("messaging: append: reading pair high-water mark: %w", err)
	}

	stamp := s.clock.Now().UnixNano()
	if stamp <= latest {
		stamp = latest + 1
	}

	msg = Message{
		ID:        ref.NewMessageID(),
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Domain:    domain,
		CreatedAt: time.Unix(0, stamp).UTC(),
		UpdatedAt: time.Unix(0, stamp).UTC(),
	}
	err = sqlitex.Execute(conn,
		"INSERT INTO messages (id, sender_id, receiver_id, low_user_id, high_user_id, content, domain, is_read, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{
				msg.ID.String(),
				sender.String(),
				receiver.String(),
				low.String(),
				high.String(),
				content,
				domain.String(),
				stamp,
				stamp,
			},
		})
	if err != nil {
		return Message{}, fmt.Errorf("messaging: append: %w", err)
	}
	return msg, nil
}

// MarkConversationRead flips read to true on every unread message
// from partner to viewer and returns how many flipped. Idempotent:
// the predicate only matches unread rows, so a second call finds
// nothing and the flag never reverses.
func (s *Store) MarkConversationRead(ctx context.Context, viewer, partner ref.UserID) (int, error) {
	if viewer.IsZero() || partner.IsZero() {
		return 0, fmt.Errorf("messaging: mark read requires viewer and partner")
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("messaging: mark read: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"UPDATE messages SET is_read = 1, updated_at = ? WHERE receiver_id = ? AND sender_id = ? AND is_read = 0",
		&sqlitex.ExecOptions{
			Args: []any{s.clock.Now().UnixNano(), viewer.String(), partner.String()},
		})
	if err != nil {
		return 0, fmt.Errorf("messaging: mark read: %w", err)
	}
	return conn.Changes(), nil
}

// History returns one page of the pair's messages. Internally the
// query walks newest-first (so the latest page needs no cursor) and
// over-fetches by one row to learn whether older messages remain; the
// returned page is chronological for rendering.
func (s *Store) History(ctx context.Context, viewer, partner ref.UserID, page HistoryPage) (HistoryResult, error) {
	if viewer.IsZero() || partner.IsZero() {
		return HistoryResult{}, fmt.Errorf("messaging: history requires viewer and partner")
	}

	limit := page.Limit
	if limit <= 0 {
		limit = historyDefaultLimit
	}
	if limit > historyMaxLimit {
		limit = historyMaxLimit
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return HistoryResult{}, fmt.Errorf("messaging: history: %w", err)
	}
	defer s.pool.Put(conn)

	low, high := ref.OrderPair(viewer, partner)
	query := "SELECT " + messageColumns + " FROM messages WHERE low_user_id = ? AND high_user_id = ?"
	args := []any{low.String(), high.String()}
	if !page.Before.IsZero() {
		query += " AND created_at < ?"
		args = append(args, page.Before.UnixNano())
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit+1)

	var fetched []Message
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			msg, err := scanMessage(stmt)
			if err != nil {
				return err
			}
			fetched = append(fetched, msg)
			return nil
		},
	})
	if err != nil {
		return HistoryResult{}, fmt.Errorf("messaging: history: %w", err)
	}

	var result HistoryResult
	if len(fetched) > limit {
		result.HasMore = true
		fetched = fetched[:limit]
	}
	// Newest-first to chronological.
	for i, j := 0, len(fetched)-1; i < j; i, j = i+1, j-1 {
		fetched[i], fetched[j] = fetched[j], fetched[i]
	}
	result.Messages = fetched
	if len(fetched) > 0 {
		result.NextCursor = fetched[0].CreatedAt
	}
	return result, nil
}

// Conversations computes the viewer's conversation list in one pass
// over the message log: for every distinct partner, the most recent
// message either way and the viewer's unread count from that partner,
// ordered most recent first. PartnerName is left empty; the service
// layer fills it from the directory.
func (s *Store) Conversations(ctx context.Context, viewer ref.UserID) ([]Conversation, error) {
	if viewer.IsZero() {
		return nil, fmt.Errorf("messaging: conversations requires a viewer")
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging: conversations: %w", err)
	}
	defer s.pool.Put(conn)

	// With a lone MAX aggregate, SQLite takes the bare columns from
	// the row that supplied the maximum, which is exactly the most
	// recent message of each group.
	query := `
SELECT
    CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS partner_id,
    ` + messageColumns + `,
    MAX(created_at) AS last_at,
    SUM(CASE WHEN receiver_id = ? AND is_read = 0 THEN 1 ELSE 0 END) AS unread
FROM messages
WHERE sender_id = ? OR receiver_id = ?
GROUP BY partner_id
ORDER BY last_at DESC`

	var conversations []Conversation
	viewerID := viewer.String()
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{viewerID, viewerID, viewerID, viewerID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			partner, err := ref.ParseUserID(stmt.ColumnText(0))
			if err != nil {
				return fmt.Errorf("stored partner ID: %w", err)
			}
			msg, err := scanMessageAt(stmt, 1)
			if err != nil {
				return err
			}
			conversations = append(conversations, Conversation{
				Partner:     partner,
				LastMessage: msg,
				Unread:      stmt.ColumnInt(10),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: conversations: %w", err)
	}
	return conversations, nil
}

// UnreadTotal counts the viewer's unread messages across all
// partners. Same predicate and same rows as the per-conversation
// counts, so the two can never disagree.
func (s *Store) UnreadTotal(ctx context.Context, viewer ref.UserID) (int, error) {
	if viewer.IsZero() {
		return 0, fmt.Errorf("messaging: unread total requires a viewer")
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("messaging: unread total: %w", err)
	}
	defer s.pool.Put(conn)

	total := 0
	err = sqlitex.Execute(conn,
		"SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0",
		&sqlitex.ExecOptions{
			Args: []any{viewer.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				total = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("messaging: unread total: %w", err)
	}
	return total, nil
}

// scanMessage reads one row in messageColumns order.
func scanMessage(stmt *sqlite.Stmt) (Message, error) {
	return scanMessageAt(stmt, 0)
}

// scanMessageAt reads messageColumns starting at column offset.
func scanMessageAt(stmt *sqlite.Stmt, offset int) (Message, error) {
	var msg Message

	id, err := ref.ParseMessageID(stmt.ColumnText(offset))
	if err != nil {
		return msg, fmt.Errorf("stored message ID: %w", err)
	}
	sender, err := ref.ParseUserID(stmt.ColumnText(offset + 1))
	if err != nil {
		return msg, fmt.Errorf("stored sender: %w", err)
	}
	receiver, err := ref.ParseUserID(stmt.ColumnText(offset + 2))
	if err != nil {
		return msg, fmt.Errorf("stored receiver: %w", err)
	}
	domain, err := ref.ParseDomain(stmt.ColumnText(offset + 4))
	if err != nil {
		return msg, fmt.Errorf("stored domain: %w", err)
	}

	msg.ID = id
	msg.Sender = sender
	msg.Receiver = receiver
	msg.Content = stmt.ColumnText(offset + 3)
	msg.Domain = domain
	msg.Read = stmt.ColumnInt(offset+5) != 0
	msg.CreatedAt = time.Unix(0, stmt.ColumnInt64(offset+6)).UTC()
	msg.UpdatedAt = time.Unix(0, stmt.ColumnInt64(offset+7)).UTC()
	return msg, nil
}
