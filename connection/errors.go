// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"errors"
	"fmt"
)

// ErrSelfConnection is returned when a user addresses a request or a
// block to themselves.
var ErrSelfConnection = errors.New("connection: cannot target yourself")

// ErrDuplicate is returned by Request when the pair already has a
// live record. A pending request, an accepted connection, and a block
// all produce the same error: the caller learns only that no new
// request can be opened, not which state stands in the way.
var ErrDuplicate = errors.New("connection: a connection for this pair already exists")

// ErrNotAuthorized is returned when the acting user may not perform
// the operation on the record: responding to a request they did not
// receive, cancelling a request they did not send, or touching a
// record they are not part of. A well-formed ID that matches no
// record produces the same error, so callers cannot probe for the
// existence of other people's records.
var ErrNotAuthorized = errors.New("connection: not authorized for this record")

// InvalidStateError is returned when the record exists and the actor
// is a legitimate participant, but the record's current status does
// not admit the operation (responding to an already-accepted request,
// removing a pending one).
type InvalidStateError struct {
	// Operation is the ledger operation that was attempted.
	Operation string

	// Status is the record's status at the time of the attempt.
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("connection: cannot %s a record in status %q", e.Operation, e.Status)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var invalidState *InvalidStateError
	return errors.As(err, &invalidState)
}
