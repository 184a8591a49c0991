// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/clstr-network/clstr/lib/ref"
)

// Static is an in-memory Resolver for tests and local tooling.
type Static struct {
	mu         sync.RWMutex
	identities map[ref.UserID]Identity
}

var _ Resolver = (*Static)(nil)

// NewStatic builds a Static resolver holding the given identities.
func NewStatic(identities ...Identity) *Static {
	static := &Static{identities: make(map[ref.UserID]Identity, len(identities))}
	for _, identity := range identities {
		static.identities[identity.ID] = identity
	}
	return static
}

// Add inserts or replaces an entry.
func (s *Static) Add(identity Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[identity.ID] = identity
}

// Lookup implements Resolver.
func (s *Static) Lookup(ctx context.Context, user ref.UserID) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[user]
	if !ok {
		return Identity{}, fmt.Errorf("directory: lookup %s: %w", user, ErrUnknownUser)
	}
	return identity, nil
}

// Domain implements Resolver.
func (s *Static) Domain(ctx context.Context, user ref.UserID) (ref.Domain, error) {
	identity, err := s.Lookup(ctx, user)
	if err != nil {
		return ref.Domain{}, err
	}
	if identity.Domain.IsZero() {
		return ref.Domain{}, fmt.Errorf("directory: domain %s: %w", user, ErrNoDomain)
	}
	return identity.Domain, nil
}
