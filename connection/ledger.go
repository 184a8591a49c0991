// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/clstr-network/clstr/lib/clock"
	"github.com/clstr-network/clstr/lib/ref"
	"github.com/clstr-network/clstr/lib/sqlitepool"
)

// schema holds the ledger's table. The pair columns store the two
// user IDs in canonical order (ref.OrderPair) so that one row serves
// both directions and the UNIQUE constraint is direction-independent.
// Requester and receiver preserve the original direction separately.
//
// Timestamps are Unix nanoseconds.
const schema = `
CREATE TABLE IF NOT EXISTS connections (
    id           TEXT PRIMARY KEY,
    low_user_id  TEXT NOT NULL,
    high_user_id TEXT NOT NULL,
    requester_id TEXT NOT NULL,
    receiver_id  TEXT NOT NULL,
    status       TEXT NOT NULL,
    note         TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL,
    UNIQUE (low_user_id, high_user_id)
);

CREATE INDEX IF NOT EXISTS connections_receiver
    ON connections (receiver_id, status);

CREATE INDEX IF NOT EXISTS connections_requester
    ON connections (requester_id, status);
`

// connectionColumns is the SELECT list every query shares, in the
// order scanConnection expects.
const connectionColumns = "id, requester_id, receiver_id, status, note, created_at, updated_at"

// Config holds the parameters for opening a Ledger.
type Config struct {
	// Pool is the service's SQLite connection pool. Required.
	Pool *sqlitepool.Pool

	// Clock provides record timestamps. Required.
	Clock clock.Clock

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Ledger reads and writes connection records. All lifecycle writes
// run in IMMEDIATE transactions: the write lock is taken before the
// state check, so a concurrent duplicate request or a respond racing
// a cancel serialize into a deterministic winner and a clean domain
// error for the loser.
type Ledger struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open validates the configuration, installs the ledger schema, and
// returns a ready Ledger.
func Open(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("connection: Pool is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("connection: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("connection: Logger is required")
	}

	conn, err := cfg.Pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("connection: installing schema: %w", err)
	}
	defer cfg.Pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return nil, fmt.Errorf("connection: installing schema: %w", err)
	}

	return &Ledger{pool: cfg.Pool, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Request opens a pending connection request from actor to target,
// carrying an optional short note for the receiver. A rejected
// tombstone for the pair is replaced by the fresh request; any live
// record (pending, accepted, or blocked) fails with ErrDuplicate
// regardless of direction.
func (l *Ledger) Request(ctx context.Context, actor, target ref.UserID, note string) (record *Connection, err error) {
	if actor.IsZero() || target.IsZero() {
		return nil, fmt.Errorf("connection: request requires two user IDs")
	}
	if actor == target {
		return nil, ErrSelfConnection
	}

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("connection: request: %w", err)
	}
	defer l.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("connection: request: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	existing, err := l.pairRecord(conn, actor, target)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status.Active() {
			return nil, ErrDuplicate
		}
		// A declined request does not gate a new one. Replace the
		// tombstone so the pair keeps a single record.
		if err := l.deleteRecord(conn, existing.ID); err != nil {
			return nil, err
		}
	}

	now := l.clock.Now()
	record = &Connection{
		ID:        ref.NewConnectionID(),
		Requester: actor,
		Receiver:  target,
		Status:    StatusPending,
		Note:      strings.TrimSpace(note),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.insertRecord(conn, record); err != nil {
		return nil, err
	}

	l.logger.Info("connection requested",
		"connection_id", record.ID,
		"requester", actor,
		"receiver", target,
	)
	return record, nil
}

// Respond resolves a pending request. Only the receiver may respond;
// the requester and everyone else get ErrNotAuthorized before any
// state is disclosed. Accept moves the record to accepted; decline
// moves it to rejected, leaving a tombstone that a fresh request may
// replace.
func (l *Ledger) Respond(ctx context.Context, actor ref.UserID, id ref.ConnectionID, accept bool) (record *Connection, err error) {
	if actor.IsZero() || id.IsZero() {
		return nil, fmt.Errorf("connection: respond requires an actor and a connection ID")
	}

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("connection: respond: %w", err)
	}
	defer l.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("connection: respond: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	record, err = l.record(conn, id)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Receiver != actor {
		return nil, ErrNotAuthorized
	}
	if record.Status != StatusPending {
		return nil, &InvalidStateError{Operation: "respond to", Status: record.Status}
	}

	record.Status = StatusAccepted
	if !accept {
		record.Status = StatusRejected
	}
	record.UpdatedAt = l.clock.Now()
	if err := l.updateStatus(conn, record); err != nil {
		return nil, err
	}

	l.logger.Info("connection responded",
		"connection_id", record.ID,
		"receiver", actor,
		"status", record.Status,
	)
	return record, nil
}

// Cancel withdraws a pending request. Only the requester may cancel.
// The record is deleted, so the pair can be requested again later by
// either side.
func (l *Ledger) Cancel(ctx context.Context, actor ref.UserID, id ref.ConnectionID) (err error) {
	if actor.IsZero() || id.IsZero() {
		return fmt.Errorf("connection: cancel requires an actor and a connection ID")
	}

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("connection: cancel: %w", err)
	}
	defer l.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("connection: cancel: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	record, err := l.record(conn, id)
	if err != nil {
		return err
	}
	if record == nil || record.Requester != actor {
		return ErrNotAuthorized
	}
	if record.Status != StatusPending {
		return &InvalidStateError{Operation: "cancel", Status: record.Status}
	}
	if err := l.deleteRecord(conn, id); err != nil {
		return err
	}

	l.logger.Info("connection cancelled", "connection_id", id, "requester", actor)
	return nil
}

// Remove dissolves an accepted connection. Either participant may
// remove. The record is deleted, so the pair can reconnect later.
func (l *Ledger) Remove(ctx context.Context, actor ref.UserID, id ref.ConnectionID) (err error) {
	if actor.IsZero() || id.IsZero() {
		return fmt.Errorf("connection: remove requires an actor and a connection ID")
	}

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("connection: remove: %w", err)
	}
	defer l.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("connection: remove: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	record, err := l.record(conn, id)
	if err != nil {
		return err
	}
	if record == nil || !record.Involves(actor) {
		return ErrNotAuthorized
	}
	if record.Status != StatusAccepted {
		return &InvalidStateError{Operation: "remove", Status: record.Status}
	}
	if err := l.deleteRecord(conn, id); err != nil {
		return err
	}

	l.logger.Info("connection removed", "connection_id", id, "actor", actor)
	return nil
}

// Block moves a live record to the terminal blocked state. Either
// participant may block, from pending or accepted. Blocking an
// already-blocked record is a no-op success, whichever side blocked
// first. A rejected tombstone is not a live relationship and cannot
// be blocked.
func (l *Ledger) Block(ctx context.Context, actor ref.UserID, id ref.ConnectionID) (record *Connection, err error) {
	if actor.IsZero() || id.IsZero() {
		return nil, fmt.Errorf("connection: block requires an actor and a connection ID")
	}

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("connection: block: %w", err)
	}
	defer l.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("connection: block: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	record, err = l.record(conn, id)
	if err != nil {
		return nil, err
	}
	if record == nil || !record.Involves(actor) {
		return nil, ErrNotAuthorized
	}
	switch record.Status {
	case StatusBlocked:
		// Already terminal; repeat blocks change nothing.
		return record, nil
	case StatusRejected:
		return nil, &InvalidStateError{Operation: "block", Status: record.Status}
	}

	record.Status = StatusBlocked
	record.UpdatedAt = l.clock.Now()
	if err := l.updateStatus(conn, record); err != nil {
		return nil, err
	}

	l.logger.Info("connection blocked", "connection_id", record.ID, "actor", actor)
	return record, nil
}

// Get returns one record by ID, or nil when absent. Unlike the
// status queries, Get returns rejected tombstones; it serves the
// lifecycle operations, not relationship rendering.
func (l *Ledger) Get(ctx context.Context, id ref.ConnectionID) (*Connection, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("connection: get requires a connection ID")
	}

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("connection: get: %w", err)
	}
	defer l.pool.Put(conn)

	return l.record(conn, id)
}

// Between returns the pair's record, or nil when none exists. The
// record may be a rejected tombstone; callers that only care about
// the live relationship use StatusBetween.
func (l *Ledger) Between(ctx context.Context, a, b ref.UserID) (*Connection, error) {
	if a.IsZero() || b.IsZero() {
		return nil, fmt.Errorf("connection: between requires two user IDs")
	}
	if a == b {
		return nil, nil
	}

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("connection: between: %w", err)
	}
	defer l.pool.Put(conn)

	return l.pairRecord(conn, a, b)
}

// StatusBetween returns the live relationship between a pair.
// StatusNone when no record exists, and also for a rejected
// tombstone: a declined request reads as no relationship, so the
// requester cannot probe for the receiver's decision. The answer is
// direction-independent by construction.
func (l *Ledger) StatusBetween(ctx context.Context, a, b ref.UserID) (Status, error) {
	record, err := l.Between(ctx, a, b)
	if err != nil {
		return StatusNone, err
	}
	if record == nil || record.Status == StatusRejected {
		return StatusNone, nil
	}
	return record.Status, nil
}

// StatusesForMany answers StatusBetween for the viewer against every
// user in others with a single query. The result is keyed by the
// other user's ID; pairs with no live record (none, and rejected
// tombstones) are absent from the map. Zero and viewer-equal entries
// in others are skipped.
func (l *Ledger) StatusesForMany(ctx context.Context, viewer ref.UserID, others []ref.UserID) (map[ref.UserID]Connection, error) {
	if viewer.IsZero() {
		return nil, fmt.Errorf("connection: statuses requires a viewer")
	}

	distinct := make([]ref.UserID, 0, len(others))
	seen := make(map[ref.UserID]struct{}, len(others))
	for _, other := range others {
		if other.IsZero() || other == viewer {
			continue
		}
		if _, duplicate := seen[other]; duplicate {
			continue
		}
		seen[other] = struct{}{}
		distinct = append(distinct, other)
	}

	result := make(map[ref.UserID]Connection, len(distinct))
	if len(distinct) == 0 {
		return result, nil
	}

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("connection: statuses: %w", err)
	}
	defer l.pool.Put(conn)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(distinct)), ", ")
	query := "SELECT " + connectionColumns + " FROM connections" +
		" WHERE status != ? AND ((requester_id = ? AND receiver_id IN (" + placeholders + "))" +
		" OR (receiver_id = ? AND requester_id IN (" + placeholders + ")))"

	args := make([]any, 0, 2*len(distinct)+3)
	args = append(args, string(StatusRejected), viewer.String())
	for _, other := range distinct {
		args = append(args, other.String())
	}
	args = append(args, viewer.String())
	for _, other := range distinct {
		args = append(args, other.String())
	}

	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, err := scanConnection(stmt)
			if err != nil {
				return err
			}
			result[record.Peer(viewer)] = record
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connection: statuses: %w", err)
	}
	return result, nil
}

// PendingFor lists the open requests addressed to the viewer, newest
// first. This is where a receiver obtains the connection ID that
// Respond needs.
func (l *Ledger) PendingFor(ctx context.Context, viewer ref.UserID) ([]Connection, error) {
	if viewer.IsZero() {
		return nil, fmt.Errorf("connection: pending requires a viewer")
	}
	return l.listFor(ctx,
		"SELECT "+connectionColumns+" FROM connections WHERE receiver_id = ? AND status = ? ORDER BY created_at DESC",
		[]any{viewer.String(), string(StatusPending)})
}

// AcceptedFor lists the viewer's established connections, most
// recently updated first.
func (l *Ledger) AcceptedFor(ctx context.Context, viewer ref.UserID) ([]Connection, error) {
	if viewer.IsZero() {
		return nil, fmt.Errorf("connection: accepted requires a viewer")
	}
	return l.listFor(ctx,
		"SELECT "+connectionColumns+" FROM connections WHERE (requester_id = ? OR receiver_id = ?) AND status = ? ORDER BY updated_at DESC",
		[]any{viewer.String(), viewer.String(), string(StatusAccepted)})
}

func (l *Ledger) listFor(ctx context.Context, query string, args []any) ([]Connection, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("connection: list: %w", err)
	}
	defer l.pool.Put(conn)

	var records []Connection
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, err := scanConnection(stmt)
			if err != nil {
				return err
			}
			records = append(records, record)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connection: list: %w", err)
	}
	return records, nil
}

// record fetches one record by ID. Returns nil when absent.
func (l *Ledger) record(conn *sqlite.Conn, id ref.ConnectionID) (*Connection, error) {
	var found *Connection
	err := sqlitex.Execute(conn,
		"SELECT "+connectionColumns+" FROM connections WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{id.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record, err := scanConnection(stmt)
				if err != nil {
					return err
				}
				found = &record
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("connection: fetching record: %w", err)
	}
	return found, nil
}

// pairRecord fetches the record for an unordered pair. Returns nil
// when absent.
func (l *Ledger) pairRecord(conn *sqlite.Conn, a, b ref.UserID) (*Connection, error) {
	low, high := ref.OrderPair(a, b)
	var found *Connection
	err := sqlitex.Execute(conn,
		"SELECT "+connectionColumns+" FROM connections WHERE low_user_id = ? AND high_user_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{low.String(), high.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record, err := scanConnection(stmt)
				if err != nil {
					return err
				}
				found = &record
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("connection: fetching pair record: %w", err)
	}
	return found, nil
}

func (l *Ledger) insertRecord(conn *sqlite.Conn, record *Connection) error {
	low, high := ref.OrderPair(record.Requester, record.Receiver)
	err := sqlitex.Execute(conn,
		"INSERT INTO connections (id, low_user_id, high_user_id, requester_id, receiver_id, status, note, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{
				record.ID.String(),
				low.String(),
				high.String(),
				record.Requester.String(),
				record.Receiver.String(),
				string(record.Status),
				record.Note,
				record.CreatedAt.UnixNano(),
				record.UpdatedAt.UnixNano(),
			},
		})
	if err != nil {
		return fmt.Errorf("connection: inserting record: %w", err)
	}
	return nil
}

func (l *Ledger) updateStatus(conn *sqlite.Conn, record *Connection) error {
	err := sqlitex.Execute(conn,
		"UPDATE connections SET status = ?, updated_at = ? WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{string(record.Status), record.UpdatedAt.UnixNano(), record.ID.String()},
		})
	if err != nil {
		return fmt.Errorf("connection: updating record: %w", err)
	}
	return nil
}

func (l *Ledger) deleteRecord(conn *sqlite.Conn, id ref.ConnectionID) error {
	err := sqlitex.Execute(conn,
		"DELETE FROM connections WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{id.String()}})
	if err != nil {
		return fmt.Errorf("connection: deleting record: %w", err)
	}
	return nil
}

// scanConnection reads one row in connectionColumns order and
// reconstructs the typed record.
func scanConnection(stmt *sqlite.Stmt) (Connection, error) {
	var record Connection

	id, err := ref.ParseConnectionID(stmt.ColumnText(0))
	if err != nil {
		return record, fmt.Errorf("connection: stored record ID: %w", err)
	}
	requester, err := ref.ParseUserID(stmt.ColumnText(1))
	if err != nil {
		return record, fmt.Errorf("connection: stored requester: %w", err)
	}
	receiver, err := ref.ParseUserID(stmt.ColumnText(2))
	if err != nil {
		return record, fmt.Errorf("connection: stored receiver: %w", err)
	}
	status, err := ParseStatus(stmt.ColumnText(3))
	if err != nil {
		return record, fmt.Errorf("connection: stored status: %w", err)
	}

	record.ID = id
	record.Requester = requester
	record.Receiver = receiver
	record.Status = status
	record.Note = stmt.ColumnText(4)
	record.CreatedAt = time.Unix(0, stmt.ColumnInt64(5)).UTC()
	record.UpdatedAt = time.Unix(0, stmt.ColumnInt64(6)).UTC()
	return record, nil
}
