// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"fmt"
	"time"

	"github.com/clstr-network/clstr/lib/ref"
)

// Status is the lifecycle state of a connection record.
type Status string

const (
	// StatusNone is the absence of any record for a pair. Never
	// stored; returned by queries when no record exists.
	StatusNone Status = "none"

	// StatusPending is an open request awaiting the receiver.
	StatusPending Status = "pending"

	// StatusAccepted is an established connection. Only accepted
	// pairs may exchange messages (absent a policy bypass).
	StatusAccepted Status = "accepted"

	// StatusRejected is a declined request. The record remains as a
	// tombstone: it does not gate a fresh request, which replaces it.
	StatusRejected Status = "rejected"

	// StatusBlocked is terminal. A blocked pair accepts no further
	// lifecycle operations and never messages.
	StatusBlocked Status = "blocked"
)

// ParseStatus validates a stored status string.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusAccepted, StatusRejected, StatusBlocked:
		return Status(raw), nil
	}
	return StatusNone, fmt.Errorf("unknown connection status %q", raw)
}

// Active reports whether the status gates new requests for the pair.
// Everything but a rejected tombstone (and none) does.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusBlocked
}

// Connection is one ledger record. Requester and Receiver preserve
// the direction of the original request.
type Connection struct {
	ID        ref.ConnectionID `cbor:"id" json:"id"`
	Requester ref.UserID       `cbor:"requester" json:"requester"`
	Receiver  ref.UserID       `cbor:"receiver" json:"receiver"`
	Status    Status           `cbor:"status" json:"status"`

	// Note is the requester's short introduction, attached at request
	// time. May be empty.
	Note string `cbor:"note,omitempty" json:"note,omitempty"`

	CreatedAt time.Time `cbor:"created_at" json:"created_at"`
	UpdatedAt time.Time `cbor:"updated_at" json:"updated_at"`
}

// Involves reports whether user is one of the record's two sides.
func (c *Connection) Involves(user ref.UserID) bool {
	return c.Requester == user || c.Receiver == user
}

// Peer returns the other side of the record relative to user. Panics
// if user is not a participant; callers check Involves first.
func (c *Connection) Peer(user ref.UserID) ref.UserID {
	switch user {
	case c.Requester:
		return c.Receiver
	case c.Receiver:
		return c.Requester
	}
	panic(fmt.Sprintf("connection: %s is not a participant of %s", user, c.ID))
}
