// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec centralizes the CBOR configuration for the messaging
// socket protocol. All wire traffic (requests, response envelopes,
// and watch-stream frames) goes through this package so that every
// encoder and decoder in the codebase agrees on one configuration.
//
// Encoding is deterministic (RFC 8949 Core Deterministic Encoding):
// the same request always produces the same bytes, which keeps
// captured traffic diffable and test fixtures stable. Identifier
// types from lib/ref serialize as plain CBOR text strings via their
// TextMarshaler implementations.
package codec
