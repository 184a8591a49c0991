// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging implements the direct-message core: the
// append-only per-pair message log, the read-state flag, history
// pagination, and the conversation roll-up with unread counts.
//
// The package provides two layers. [Store] is the SQLite persistence:
// append, read-flag flips, cursor pagination, and the one-pass
// conversation aggregation. [Service] is the public operation surface
// the socket service exposes: it resolves the caller's identity,
// runs the eligibility gate and the domain isolation check on every
// send, and publishes realtime events after writes.
//
// A send passes four checks, in a fixed order: the caller must
// resolve in the directory (UnauthenticatedError otherwise), the
// trimmed content must be non-empty (EmptyMessageError), the
// eligibility gate must pass (SelfMessagingError, NotConnectedError),
// and both parties must resolve to the same campus domain
// (MissingDomainError, DomainMismatchError). The gate runs before the
// domain check, so an unconnected cross-campus pair reports
// NotConnectedError. The sender's domain is copied onto the stored
// row for audit.
//
// Conversation summaries and unread counts are pure projections over
// the message log, recomputed per call. There is no counter table to
// drift: the unread total always equals the sum of per-conversation
// unread counts because both are the same predicate over the same
// rows.
//
// Transient storage failures surface as [*OperationFailedError]
// wrapping the cause. Reads are safe to retry; a failed send must be
// re-issued deliberately by the caller, never replayed automatically.
package messaging
