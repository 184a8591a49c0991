// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/clstr-network/clstr/lib/ref"
	"github.com/clstr-network/clstr/lib/sqlitepool"
)

// storeSchema is the profile projection the resolver reads. The
// domain column stores the empty string for pre-onboarding accounts.
const storeSchema = `
CREATE TABLE IF NOT EXISTS identities (
    user_id      TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    domain       TEXT NOT NULL,
    role         TEXT NOT NULL
);
`

// StoreConfig holds the parameters for opening a Store.
type StoreConfig struct {
	// Pool is the service's SQLite connection pool. Required.
	Pool *sqlitepool.Pool

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Store is the SQLite-backed resolver. Besides resolving, it
// provisions entries (Put), which the service uses at startup to
// apply the operator's seed file.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

var _ Resolver = (*Store)(nil)

// OpenStore validates the configuration, installs the schema, and
// returns a ready Store.
func OpenStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("directory: Pool is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("directory: Logger is required")
	}

	conn, err := cfg.Pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("directory: installing schema: %w", err)
	}
	defer cfg.Pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, storeSchema, nil); err != nil {
		return nil, fmt.Errorf("directory: installing schema: %w", err)
	}

	return &Store{pool: cfg.Pool, logger: cfg.Logger}, nil
}

// Put inserts or replaces an entry.
func (s *Store) Put(ctx context.Context, identity Identity) error {
	if identity.ID.IsZero() {
		return fmt.Errorf("directory: identity ID is required")
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("directory: put: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO identities (user_id, display_name, domain, role) VALUES (?, ?, ?, ?)"+
			" ON CONFLICT (user_id) DO UPDATE SET display_name = excluded.display_name, domain = excluded.domain, role = excluded.role",
		&sqlitex.ExecOptions{
			Args: []any{
				identity.ID.String(),
				identity.DisplayName,
				identity.Domain.String(),
				identity.Role.String(),
			},
		})
	if err != nil {
		return fmt.Errorf("directory: put %s: %w", identity.ID, err)
	}
	return nil
}

// Provision applies a batch of entries in one transaction. Used with
// ReadSeedFile at service start; reprovisioning an existing user
// replaces the entry.
func (s *Store) Provision(ctx context.Context, identities []Identity) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("directory: provision: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("directory: provision: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for _, identity := range identities {
		if identity.ID.IsZero() {
			return fmt.Errorf("directory: provision: identity ID is required")
		}
		err := sqlitex.Execute(conn,
			"INSERT INTO identities (user_id, display_name, domain, role) VALUES (?, ?, ?, ?)"+
				" ON CONFLICT (user_id) DO UPDATE SET display_name = excluded.display_name, domain = excluded.domain, role = excluded.role",
			&sqlitex.ExecOptions{
				Args: []any{
					identity.ID.String(),
					identity.DisplayName,
					identity.Domain.String(),
					identity.Role.String(),
				},
			})
		if err != nil {
			return fmt.Errorf("directory: provision %s: %w", identity.ID, err)
		}
	}

	s.logger.Info("directory provisioned", "identities", len(identities))
	return nil
}

// Lookup implements Resolver.
func (s *Store) Lookup(ctx context.Context, user ref.UserID) (Identity, error) {
	if user.IsZero() {
		return Identity{}, ErrUnknownUser
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("directory: lookup: %w", err)
	}
	defer s.pool.Put(conn)

	var identity Identity
	found := false
	err = sqlitex.Execute(conn,
		"SELECT user_id, display_name, domain, role FROM identities WHERE user_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{user.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				scanned, err := scanIdentity(stmt)
				if err != nil {
					return err
				}
				identity = scanned
				found = true
				return nil
			},
		})
	if err != nil {
		return Identity{}, fmt.Errorf("directory: lookup %s: %w", user, err)
	}
	if !found {
		return Identity{}, fmt.Errorf("directory: lookup %s: %w", user, ErrUnknownUser)
	}
	return identity, nil
}

// Domain implements Resolver.
func (s *Store) Domain(ctx context.Context, user ref.UserID) (ref.Domain, error) {
	if user.IsZero() {
		return ref.Domain{}, ErrUnknownUser
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return ref.Domain{}, fmt.Errorf("directory: domain: %w", err)
	}
	defer s.pool.Put(conn)

	var raw string
	found := false
	err = sqlitex.Execute(conn,
		"SELECT domain FROM identities WHERE user_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{user.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				raw = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return ref.Domain{}, fmt.Errorf("directory: domain %s: %w", user, err)
	}
	if !found {
		return ref.Domain{}, fmt.Errorf("directory: domain %s: %w", user, ErrUnknownUser)
	}
	if raw == "" {
		return ref.Domain{}, fmt.Errorf("directory: domain %s: %w", user, ErrNoDomain)
	}

	domain, err := ref.ParseDomain(raw)
	if err != nil {
		return ref.Domain{}, fmt.Errorf("directory: stored domain for %s: %w", user, err)
	}
	return domain, nil
}

func scanIdentity(stmt *sqlite.Stmt) (Identity, error) {
	var identity Identity

	id, err := ref.ParseUserID(stmt.ColumnText(0))
	if err != nil {
		return identity, fmt.Errorf("directory: stored user ID: %w", err)
	}
	identity.ID = id
	identity.DisplayName = stmt.ColumnText(1)

	if raw := stmt.ColumnText(2); raw != "" {
		domain, err := ref.ParseDomain(raw)
		if err != nil {
			return identity, fmt.Errorf("directory: stored domain: %w", err)
		}
		identity.Domain = domain
	}
	if raw := stmt.ColumnText(3); raw != "" {
		role, err := ref.ParseRole(raw)
		if err != nil {
			return identity, fmt.Errorf("directory: stored role: %w", err)
		}
		identity.Role = role
	}
	return identity, nil
}
