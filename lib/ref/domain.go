// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// maxDomainLength is the maximum allowed length for a campus domain
// tag, matching the DNS hostname limit.
const maxDomainLength = 253

// Domain is a validated campus domain tag (e.g. "mit.edu"). Every
// account belongs to exactly one campus, identified by the domain of
// its verified school email address. Messaging never crosses domains.
//
// The accepted grammar is a lowercase DNS hostname: dot-separated
// labels of a-z, 0-9, and interior hyphens. Input is lowercased
// before validation, so "MIT.edu" and "mit.edu" produce the same
// value.
//
// Domain is an immutable value type. The zero value is not valid;
// use IsZero to check.
type Domain struct {
	tag string
}

// ParseDomain validates and canonicalizes a raw campus domain string.
func ParseDomain(raw string) (Domain, error) {
	tag := strings.ToLower(strings.TrimSpace(raw))
	if tag == "" {
		return Domain{}, fmt.Errorf("empty campus domain")
	}
	if len(tag) > maxDomainLength {
		return Domain{}, fmt.Errorf("campus domain %q is %d characters, maximum is %d", tag, len(tag), maxDomainLength)
	}
	for _, label := range strings.Split(tag, ".") {
		if err := validateDomainLabel(tag, label); err != nil {
			return Domain{}, err
		}
	}
	return Domain{tag: tag}, nil
}

// MustParseDomain is like ParseDomain but panics on error. Use in
// tests and static initialization where the input is known-valid.
func MustParseDomain(raw string) Domain {
	d, err := ParseDomain(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseDomain(%q): %v", raw, err))
	}
	return d
}

// validateDomainLabel checks one dot-separated label of a domain tag.
func validateDomainLabel(tag, label string) error {
	if label == "" {
		return fmt.Errorf("campus domain %q contains an empty label", tag)
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-':
			if i == 0 || i == len(label)-1 {
				return fmt.Errorf("campus domain %q: label %q starts or ends with '-'", tag, label)
			}
		default:
			return fmt.Errorf("campus domain %q: invalid character %q in label %q", tag, c, label)
		}
	}
	return nil
}

// String returns the canonical lowercase domain tag.
func (d Domain) String() string { return d.tag }

// IsZero reports whether the Domain is the zero value (uninitialized).
func (d Domain) IsZero() bool { return d.tag == "" }

// MarshalText implements encoding.TextMarshaler.
func (d Domain) MarshalText() ([]byte, error) {
	if d.tag == "" {
		return nil, nil
	}
	return []byte(d.tag), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value (account not yet assigned to a campus).
func (d *Domain) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*d = Domain{}
		return nil
	}
	parsed, err := ParseDomain(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
