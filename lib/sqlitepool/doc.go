// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool wraps zombiezen.com/go/sqlite's connection pool
// with the pragmas every store in the messaging service relies on:
// WAL journaling for concurrent readers, NORMAL synchronous mode, and
// a busy timeout so a briefly contended writer waits instead of
// failing.
//
// The service opens one pool over its database file and hands it to
// each store; stores borrow a connection with Take, run their
// statements, and return it with Put. Connections are prepared
// lazily; the OnConnect hook covers per-connection setup beyond the
// standard pragmas (custom functions, extra pragmas).
package sqlitepool
