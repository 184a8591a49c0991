// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// ParseSeed strips JSONC comments and trailing commas from data, then
// unmarshals the result into a list of identities. Seed files are
// authored by operators, so // line comments, /* block comments */,
// and trailing commas are allowed.
//
// Every entry must carry a valid user ID; domain and role may be
// absent for pre-onboarding accounts.
func ParseSeed(data []byte) ([]Identity, error) {
	stripped := jsonc.ToJSON(data)

	var identities []Identity
	if err := json.Unmarshal(stripped, &identities); err != nil {
		return nil, fmt.Errorf("parsing identity seed: %w", err)
	}

	for i, identity := range identities {
		if identity.ID.IsZero() {
			return nil, fmt.Errorf("parsing identity seed: entry %d has no id", i)
		}
	}
	return identities, nil
}

// ReadSeedFile reads a JSONC identity seed file from disk and parses
// it.
func ReadSeedFile(path string) ([]Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	identities, err := ParseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return identities, nil
}
