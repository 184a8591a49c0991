// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"

	"github.com/google/uuid"
)

// UserID is a validated platform account identifier. Account IDs are
// UUIDs assigned by the identity provider at signup; this type accepts
// any RFC 4122 textual form and canonicalizes it to lowercase
// hex-and-dash (e.g. "7c9e6679-7425-40de-944b-e07fc1f90ae7").
//
// UserID is an immutable value type. The zero value is not valid;
// use IsZero to check.
type UserID struct {
	id string
}

// ParseUserID validates and canonicalizes a raw account ID string.
// Returns an error if the string is empty or not a well-formed UUID.
func ParseUserID(raw string) (UserID, error) {
	if raw == "" {
		return UserID{}, fmt.Errorf("empty user ID")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return UserID{}, fmt.Errorf("invalid user ID %q: %w", raw, err)
	}
	return UserID{id: parsed.String()}, nil
}

// MustParseUserID is like ParseUserID but panics on error. Use in
// tests and static initialization where the input is known-valid.
func MustParseUserID(raw string) UserID {
	u, err := ParseUserID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseUserID(%q): %v", raw, err))
	}
	return u
}

// String returns the canonical lowercase UUID string.
func (u UserID) String() string { return u.id }

// IsZero reports whether the UserID is the zero value (uninitialized).
func (u UserID) IsZero() bool { return u.id == "" }

// Less reports whether u orders before other in the canonical string
// ordering. Used to derive the unordered-pair key for connection
// records, where the pair (a, b) and (b, a) must map to the same key.
func (u UserID) Less(other UserID) bool { return u.id < other.id }

// MarshalText implements encoding.TextMarshaler for JSON, CBOR, and
// other text-based serialization formats.
func (u UserID) MarshalText() ([]byte, error) {
	if u.id == "" {
		return nil, nil
	}
	return []byte(u.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Validates the
// UUID format. An empty input produces the zero value (unset ID).
func (u *UserID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*u = UserID{}
		return nil
	}
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// OrderPair returns the two user IDs in canonical order (low, high).
// Connection records store every pair this way so that one row serves
// both directions and the uniqueness rule is direction-independent.
func OrderPair(a, b UserID) (low, high UserID) {
	if b.Less(a) {
		return b, a
	}
	return a, b
}
