// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// Role is a validated account role token (e.g. "student", "alumni",
// "faculty", "club_admin"). The messaging service treats roles as
// opaque: which roles may bypass the connection gate is decided by the
// policy oracle, not by this type. New roles can appear without a code
// change here.
//
// The accepted grammar is a lowercase token: a leading letter followed
// by letters, digits, '_' or '-'. Input is lowercased before
// validation.
//
// Role is an immutable value type. The zero value means "no role";
// use IsZero to check.
type Role struct {
	name string
}

// ParseRole validates and canonicalizes a raw role token.
func ParseRole(raw string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return Role{}, fmt.Errorf("empty role")
	}
	if name[0] < 'a' || name[0] > 'z' {
		return Role{}, fmt.Errorf("role %q must start with a letter", name)
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return Role{}, fmt.Errorf("role %q: invalid character %q at position %d", name, c, i)
		}
	}
	return Role{name: name}, nil
}

// MustParseRole is like ParseRole but panics on error. Use in tests
// and static initialization where the input is known-valid.
func MustParseRole(raw string) Role {
	r, err := ParseRole(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRole(%q): %v", raw, err))
	}
	return r
}

// String returns the canonical lowercase role token.
func (r Role) String() string { return r.name }

// IsZero reports whether the Role is the zero value (no role set).
func (r Role) IsZero() bool { return r.name == "" }

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if r.name == "" {
		return nil, nil
	}
	return []byte(r.name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value (no role).
func (r *Role) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = Role{}
		return nil
	}
	parsed, err := ParseRole(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
