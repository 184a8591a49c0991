// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Package eligibility decides whether one user may message another.
// The rule is the platform's core invariant: messaging requires an
// accepted connection, unless the sender's role bypasses the gate.
//
// The engine decides the gate only. Domain isolation is checked by
// the messaging service on every send, after this gate, and applies
// to privileged senders too.
package eligibility

import (
	"context"
	"errors"
	"fmt"

	"github.com/clstr-network/clstr/connection"
	"github.com/clstr-network/clstr/directory"
	"github.com/clstr-network/clstr/lib/ref"
	"github.com/clstr-network/clstr/policy"
)

// ErrSelfMessaging reports an eligibility check of a user against
// themselves. Self-messaging is rejected before any ledger state is
// consulted.
var ErrSelfMessaging = errors.New("eligibility: cannot message yourself")

// StatusSource answers the live connection status between two users.
// *connection.Ledger implements it.
type StatusSource interface {
	StatusBetween(ctx context.Context, a, b ref.UserID) (connection.Status, error)
}

// Decision is the outcome of a gate check. Status always carries the
// live ledger state, whether or not the check passed, so callers can
// render "request pending" against "not connected".
type Decision struct {
	// Allowed reports whether viewer may message partner.
	Allowed bool

	// Status is the pair's connection status at check time.
	Status connection.Status

	// Bypass reports that Allowed came from the viewer's role rather
	// than an accepted connection.
	Bypass bool
}

// Config holds the engine's collaborators. All are required.
type Config struct {
	Connections StatusSource
	Directory   directory.Resolver
	Policy      policy.Oracle
}

// Engine evaluates the connection gate. Decisions are computed fresh
// on every call; nothing is cached across ledger writes.
type Engine struct {
	connections StatusSource
	directory   directory.Resolver
	policy      policy.Oracle
}

// New validates the configuration and returns an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Connections == nil {
		return nil, fmt.Errorf("eligibility: Connections is required")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("eligibility: Directory is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("eligibility: Policy is required")
	}
	return &Engine{
		connections: cfg.Connections,
		directory:   cfg.Directory,
		policy:      cfg.Policy,
	}, nil
}

// Check decides whether viewer may message partner.
//
// viewer == partner fails with ErrSelfMessaging. A privileged viewer
// is allowed regardless of ledger state, with Bypass set and the
// actual status still reported. Everyone else is allowed only when
// the pair's status is accepted.
//
// A viewer with no directory entry simply has no role: the gate
// applies in full. Whether the viewer exists is the caller's concern,
// checked when the caller's identity is resolved.
func (e *Engine) Check(ctx context.Context, viewer, partner ref.UserID) (Decision, error) {
	if viewer.IsZero() || partner.IsZero() {
		return Decision{}, fmt.Errorf("eligibility: check requires two user IDs")
	}
	if viewer == partner {
		return Decision{}, ErrSelfMessaging
	}

	status, err := e.connections.StatusBetween(ctx, viewer, partner)
	if err != nil {
		return Decision{}, fmt.Errorf("eligibility: connection status: %w", err)
	}
	decision := Decision{
		Allowed: status == connection.StatusAccepted,
		Status:  status,
	}

	if !decision.Allowed {
		identity, err := e.directory.Lookup(ctx, viewer)
		switch {
		case errors.Is(err, directory.ErrUnknownUser):
			// No entry, no role, no bypass.
		case err != nil:
			return Decision{}, fmt.Errorf("eligibility: viewer identity: %w", err)
		case e.policy.CanBypassGate(identity.Role):
			decision.Allowed = true
			decision.Bypass = true
		}
	}

	return decision, nil
}
