// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared helpers for package tests:
// timeout-guarded channel operations, unique test identifiers, and
// short-path socket directories.
package testutil

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// failer is the subset of testing.TB the helpers need. Declared as an
// interface so the helpers work with *testing.T and *testing.B alike.
type failer interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout, or fails the
// test. Use it instead of a bare channel receive so a broken fan-out
// fails the test with a message rather than hanging the suite.
//
//	event := testutil.RequireReceive(t, sub.Events(), 5*time.Second, "waiting for message event")
func RequireReceive[T any](t failer, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", formatMessage(msgAndArgs))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
	}
	panic("unreachable")
}

// RequireNoReceive asserts that ch stays silent for the given window.
// Use it to check that an unsubscribed or filtered viewer receives
// nothing. Keep the window short; this helper always waits it out.
func RequireNoReceive[T any](t failer, ch <-chan T, window time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %v: %s", v, formatMessage(msgAndArgs))
	case <-time.After(window):
	}
}

// RequireClosed waits for ch to be closed (or receive a value) within
// timeout, or fails the test.
func RequireClosed(t failer, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for channel close: %s", timeout, formatMessage(msgAndArgs))
	}
}

// formatMessage renders the optional trailing message arguments:
// either a plain string, or a format string followed by args.
func formatMessage(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return "(no message)"
	}
	if format, ok := msgAndArgs[0].(string); ok {
		if len(msgAndArgs) == 1 {
			return format
		}
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprintf("%v", msgAndArgs)
}

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with a process-wide increasing N. Use
// it for message bodies and display names that must stay
// distinguishable when tests share a database.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}

// SocketDir creates a short-pathed temporary directory for Unix
// domain sockets. Socket paths are limited to 108 bytes (sun_path),
// which deeply nested t.TempDir() locations can exceed; this creates
// the directory directly under /tmp and removes it on cleanup.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "clstr-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}
