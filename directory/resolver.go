// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory resolves user IDs to campus identities. The
// messaging service trusts this resolver, never the caller, for
// display names, roles, and above all domains: the domain isolation
// check reads both sides from here at send time.
//
// Two resolvers ship: Store, backed by the platform's profile table
// in SQLite and provisioned from an operator seed file, and Static,
// an in-memory fixture for tests.
package directory

import (
	"context"
	"errors"

	"github.com/clstr-network/clstr/lib/ref"
)

// ErrUnknownUser reports a user ID with no directory entry.
var ErrUnknownUser = errors.New("directory: unknown user")

// ErrNoDomain reports an identity that exists but has not completed
// campus onboarding, so it has no domain yet. Such accounts cannot
// send or receive messages.
var ErrNoDomain = errors.New("directory: identity has no domain")

// Identity is one directory entry.
type Identity struct {
	ID          ref.UserID `json:"id"           cbor:"id"`
	DisplayName string     `json:"display_name" cbor:"display_name"`

	// Domain is the identity's campus. Zero for accounts that have
	// not finished onboarding.
	Domain ref.Domain `json:"domain,omitempty" cbor:"domain,omitempty"`

	// Role is the identity's platform role ("student", "admin", ...).
	// Zero when the platform has not assigned one; a zero role never
	// carries privileges.
	Role ref.Role `json:"role,omitempty" cbor:"role,omitempty"`
}

// Resolver looks up identities. Implementations must be safe for
// concurrent use.
type Resolver interface {
	// Lookup returns the full identity, or ErrUnknownUser.
	Lookup(ctx context.Context, user ref.UserID) (Identity, error)

	// Domain returns the identity's campus. ErrUnknownUser when the
	// user has no entry, ErrNoDomain when the entry has no domain.
	Domain(ctx context.Context, user ref.UserID) (ref.Domain, error)
}
