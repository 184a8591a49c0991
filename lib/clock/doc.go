// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects Real(); tests inject Fake() and drive it with Advance.
//
// Components that read the current time or run periodic work take a
// Clock in their Config rather than calling the time package
// directly. That makes message timestamps, heartbeat schedules, and
// ordering-sensitive tests fully deterministic:
//
//	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
//	store := OpenStore(StoreConfig{Clock: fake, ...})
//	// every append gets a timestamp the test chose
//	fake.Advance(time.Second)
//
// For goroutines that register timers asynchronously, WaitForTimers
// removes the race between registration and the test's Advance call.
package clock
