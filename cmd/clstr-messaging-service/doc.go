// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Clstr-messaging-service is the standalone daemon that owns campus
// direct messaging: the connection ledger, the message log, and live
// delivery to connected viewers. It serves queries and mutations over
// a Unix socket using CBOR, one request per connection, plus a
// streaming "watch" action that pushes new messages and read receipts
// as they happen.
//
// # Startup
//
// The service reads a YAML config file naming its socket path, SQLite
// database, privileged-role policy file, and an optional identity seed
// file. It opens the database (creating the schema on first run),
// provisions seeded identities, and starts listening on the socket.
//
// # Caller identity
//
// Every request carries an "as" field naming the acting user. The
// platform's API tier terminates real authentication and injects the
// verified user ID; the socket's filesystem permissions decide who may
// connect and assert identities. The service resolves "as" against the
// identity directory and rejects unknown callers.
//
// # Socket API
//
// The "action" field routes the request: connection-request,
// connection-respond, connection-block, message-send, message-history,
// conversations, and so on. Errors carry a stable machine-readable
// code alongside the human message. The streaming "watch" action
// sends the viewer's conversation list as a snapshot, then live
// message and read-receipt frames with periodic heartbeats.
package main
