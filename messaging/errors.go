// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"

	"github.com/clstr-network/clstr/connection"
	"github.com/clstr-network/clstr/lib/ref"
)

// ErrEmptyMessage reports message content that is empty after
// trimming. The UI disables send on empty input, so hitting this
// indicates a stale or bypassing client.
var ErrEmptyMessage = errors.New("messaging: message content is empty")

// ErrUnauthenticated reports an operation whose caller does not
// resolve to a directory identity.
var ErrUnauthenticated = errors.New("messaging: caller identity unknown")

// NotConnectedError reports a send blocked by the connection gate.
// Status carries the pair's live connection state so clients render
// "request pending" and "blocked" distinctly from plain "not
// connected".
type NotConnectedError struct {
	Status connection.Status
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("messaging: not connected (connection status %s)", e.Status)
}

// MissingDomainError reports a party that does not resolve to a
// campus domain: either no directory entry at all, or an account that
// has not finished onboarding.
type MissingDomainError struct {
	User ref.UserID
}

func (e *MissingDomainError) Error() string {
	return fmt.Sprintf("messaging: no campus domain for %s", e.User)
}

// DomainMismatchError reports a send between different campuses.
// Unreachable through normal clients (partner discovery is already
// campus-scoped) and therefore logged as a bypass attempt when it
// fires.
type DomainMismatchError struct {
	SenderDomain   ref.Domain
	ReceiverDomain ref.Domain
}

func (e *DomainMismatchError) Error() string {
	return fmt.Sprintf("messaging: cannot message across campuses (%s to %s)", e.SenderDomain, e.ReceiverDomain)
}

// OperationFailedError wraps a transient infrastructure failure
// (storage, directory) behind the operation name. Reads that fail
// this way are safe to retry; a failed send must be re-issued
// deliberately because the caller cannot know whether the append
// landed.
type OperationFailedError struct {
	Op  string
	Err error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("messaging: %s failed: %v", e.Op, e.Err)
}

func (e *OperationFailedError) Unwrap() error {
	return e.Err
}
