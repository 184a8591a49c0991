// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build version information for Clstr
// binaries.
//
// Release builds inject the semantic version via -ldflags:
//
//	go build -ldflags "-X github.com/clstr-network/clstr/lib/version.Version=1.4.0"
//
// The VCS revision is read from the build info the Go toolchain
// stamps into the binary; it needs no flag.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the semantic version. Set via -ldflags for releases;
// the default marks a local development build.
var Version = "0.1.0-dev"

// Info returns the one-line version string for --version output.
func Info() string {
	return fmt.Sprintf("%s (%s)", Version, revision())
}

// revision reports the VCS revision the binary was built from, with a
// -dirty suffix for builds from a modified tree.
func revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	commit := "unknown"
	dirty := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			commit = setting.Value
			if len(commit) > 12 {
				commit = commit[:12]
			}
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if dirty {
		commit += "-dirty"
	}
	return commit
}
