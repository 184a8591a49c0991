// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Package connection implements the connection ledger: the lifecycle
// of the relationship between two users, from request through
// acceptance, rejection, removal, or block.
//
// The ledger stores at most one record per unordered user pair. A
// record moves through a small state machine:
//
//	pending  → accepted   (receiver accepts)
//	pending  → rejected   (receiver declines; the record remains as a
//	                       tombstone until a fresh request replaces it)
//	pending  → (deleted)  (requester cancels)
//	accepted → (deleted)  (either side removes the connection)
//	pending|accepted → blocked   (either side; terminal)
//
// Status queries report only live relationships: a rejected tombstone
// answers StatusNone, so a declined requester sees "no relationship"
// rather than the receiver's decision.
//
// Every write re-checks the current state inside a single immediate
// transaction, so concurrent requests, responses, and blocks
// serialize cleanly. Messaging eligibility is decided elsewhere (the
// eligibility package) by reading this ledger.
package connection
