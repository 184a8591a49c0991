// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the Unix-socket transport shared by the
// messaging daemon and its clients.
//
// The protocol is CBOR over a Unix domain socket. Plain actions are
// one request-response cycle per connection: the client writes a
// single CBOR map carrying an "action" field plus action-specific
// fields, and the server replies with a {ok, error, data} envelope.
// Streaming actions keep the connection open after the request; the
// handler writes CBOR frames until either side disconnects.
//
//   - SocketServer: action dispatch, per-request size limits and
//     deadlines, stale socket removal, graceful shutdown draining
//     in-flight handlers.
//   - Client: one-shot Call and long-lived Stream dials for tools and
//     tests.
//
// Services compose these in their own main() function rather than
// subclassing a framework. The package provides building blocks, not
// a runtime.
//
// # Caller identity
//
// Requests carry the acting user in an "as" field. The platform's API
// tier terminates real authentication and injects the verified user
// ID before a request ever reaches this socket; filesystem
// permissions on the socket path decide who may connect. Handlers
// resolve "as" against the directory and reject IDs it does not know,
// so an asserted identity is never trusted past that lookup.
package service
