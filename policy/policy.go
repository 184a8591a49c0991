// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy answers whether a platform role may bypass the
// connection gate. Moderation staff message students they are not
// connected to; everyone else goes through the gate.
//
// The privileged role list comes from the platform's policy file
// (LoadFile) or is built in code (Roles). Policy never affects domain
// isolation: no role messages across campuses.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clstr-network/clstr/lib/ref"
)

// Oracle decides gate bypass for a role. Implementations must be safe
// for concurrent use.
type Oracle interface {
	CanBypassGate(role ref.Role) bool
}

// RoleSet is an Oracle over an explicit list of privileged roles. The
// zero value privileges nobody.
type RoleSet struct {
	privileged map[ref.Role]struct{}
}

var _ Oracle = RoleSet{}

// Roles builds a RoleSet from role name literals. Panics on a
// malformed name; use LoadFile for operator-supplied input.
func Roles(names ...string) RoleSet {
	set := RoleSet{privileged: make(map[ref.Role]struct{}, len(names))}
	for _, name := range names {
		set.privileged[ref.MustParseRole(name)] = struct{}{}
	}
	return set
}

// CanBypassGate implements Oracle. A zero role is never privileged.
func (s RoleSet) CanBypassGate(role ref.Role) bool {
	if role.IsZero() {
		return false
	}
	_, ok := s.privileged[role]
	return ok
}

// file is the on-disk policy shape:
//
//	privileged_roles:
//	  - admin
//	  - moderator
type file struct {
	PrivilegedRoles []string `yaml:"privileged_roles"`
}

// LoadFile loads a RoleSet from a YAML policy file. Role names are
// case-normalized; a malformed name is an error, not a silent skip.
func LoadFile(path string) (RoleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RoleSet{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	var parsed file
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return RoleSet{}, fmt.Errorf("failed to parse policy file: %w", err)
	}

	set := RoleSet{privileged: make(map[ref.Role]struct{}, len(parsed.PrivilegedRoles))}
	for i, name := range parsed.PrivilegedRoles {
		role, err := ref.ParseRole(name)
		if err != nil {
			return RoleSet{}, fmt.Errorf("policy file %s: privileged_roles[%d]: %w", path, i, err)
		}
		set.privileged[role] = struct{}{}
	}
	return set, nil
}
