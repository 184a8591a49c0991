// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"

	"github.com/google/uuid"
)

// MessageID is a validated direct-message identifier. Message IDs are
// UUIDs minted by the message store at append time and serve as the
// idempotency key for realtime consumers: delivery is at-least-once,
// so a consumer that sees the same MessageID twice must treat the
// second occurrence as a duplicate.
//
// MessageID is an immutable value type. The zero value is not valid;
// use IsZero to check.
type MessageID struct {
	id string
}

// NewMessageID mints a fresh random message ID.
func NewMessageID() MessageID {
	return MessageID{id: uuid.NewString()}
}

// ParseMessageID validates and canonicalizes a raw message ID string.
func ParseMessageID(raw string) (MessageID, error) {
	if raw == "" {
		return MessageID{}, fmt.Errorf("empty message ID")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return MessageID{}, fmt.Errorf("invalid message ID %q: %w", raw, err)
	}
	return MessageID{id: parsed.String()}, nil
}

// MustParseMessageID is like ParseMessageID but panics on error. Use
// in tests where the input is known-valid.
func MustParseMessageID(raw string) MessageID {
	m, err := ParseMessageID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseMessageID(%q): %v", raw, err))
	}
	return m
}

// String returns the canonical lowercase UUID string.
func (m MessageID) String() string { return m.id }

// IsZero reports whether the MessageID is the zero value.
func (m MessageID) IsZero() bool { return m.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (m MessageID) MarshalText() ([]byte, error) {
	if m.id == "" {
		return nil, nil
	}
	return []byte(m.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (m *MessageID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*m = MessageID{}
		return nil
	}
	parsed, err := ParseMessageID(string(data))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
