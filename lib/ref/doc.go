// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable identifier values for
// the messaging service. Users, messages, and connection records are
// identified by UUIDs; campuses by their domain tag; accounts by a
// role token. Each kind gets its own value type so that a user ID can
// never be passed where a message ID is expected.
//
// All constructors validate their inputs and return errors for invalid
// values. Once constructed, a ref is immutable. The zero value of
// every type means "absent"; use IsZero to check.
//
// The canonical serialization form is the plain string: UUIDs in
// lowercase hex-and-dash form, domains and roles as their lowercase
// tag. JSON and CBOR marshaling use this form via
// encoding.TextMarshaler.
package ref
