// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"

	"github.com/google/uuid"
)

// ConnectionID is a validated connection-record identifier. Connection
// IDs are UUIDs minted by the ledger when a request is created and
// stay stable across the record's lifecycle (pending, accepted,
// blocked).
//
// ConnectionID is an immutable value type. The zero value is not
// valid; use IsZero to check.
type ConnectionID struct {
	id string
}

// NewConnectionID mints a fresh random connection ID.
func NewConnectionID() ConnectionID {
	return ConnectionID{id: uuid.NewString()}
}

// ParseConnectionID validates and canonicalizes a raw connection ID.
func ParseConnectionID(raw string) (ConnectionID, error) {
	if raw == "" {
		return ConnectionID{}, fmt.Errorf("empty connection ID")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return ConnectionID{}, fmt.Errorf("invalid connection ID %q: %w", raw, err)
	}
	return ConnectionID{id: parsed.String()}, nil
}

// MustParseConnectionID is like ParseConnectionID but panics on error.
// Use in tests where the input is known-valid.
func MustParseConnectionID(raw string) ConnectionID {
	c, err := ParseConnectionID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseConnectionID(%q): %v", raw, err))
	}
	return c
}

// String returns the canonical lowercase UUID string.
func (c ConnectionID) String() string { return c.id }

// IsZero reports whether the ConnectionID is the zero value.
func (c ConnectionID) IsZero() bool { return c.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (c ConnectionID) MarshalText() ([]byte, error) {
	if c.id == "" {
		return nil, nil
	}
	return []byte(c.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (c *ConnectionID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*c = ConnectionID{}
		return nil
	}
	parsed, err := ParseConnectionID(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
