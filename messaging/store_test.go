// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clstr-network/clstr/lib/clock"
	"github.com/clstr-network/clstr/lib/ref"
	"github.com/clstr-network/clstr/lib/sqlitepool"
)

var (
	maya  = ref.MustParseUserID("00000000-0000-4000-8000-0000000000a1")
	noah  = ref.MustParseUserID("00000000-0000-4000-8000-0000000000a2")
	liam  = ref.MustParseUserID("00000000-0000-4000-8000-0000000000a3")
	priya = ref.MustParseUserID("00000000-0000-4000-8000-0000000000a4")

	stanford = ref.MustParseDomain("stanford.edu")
	berkeley = ref.MustParseDomain("berkeley.edu")
)

func newTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path: filepath.Join(t.TempDir(), "messages.db"),
	})
	if err != nil {
		t.Fatalf("opening pool: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("closing pool: %v", err)
		}
	})

	fake := clock.Fake(time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC))
	store, err := OpenStore(context.Background(), StoreConfig{
		Pool:   pool,
		Clock:  fake,
		Logger: slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	return store, fake
}

// send appends a message and fails the test on error.
func send(t *testing.T, store *Store, sender, receiver ref.UserID, content string) Message {
	t.Helper()
	msg, err := store.Append(context.Background(), sender, receiver, content, stanford)
	if err != nil {
		t.Fatalf("append %s -> %s: %v", sender, receiver, err)
	}
	return msg
}

func TestOpenStoreValidation(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path: filepath.Join(t.TempDir(), "messages.db"),
	})
	if err != nil {
		t.Fatalf("opening pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	fake := clock.Fake(time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.DiscardHandler)

	tests := []struct {
		name string
		cfg  StoreConfig
		want string
	}{
		{"missing pool", StoreConfig{Clock: fake, Logger: logger}, "Pool is required"},
		{"missing clock", StoreConfig{Pool: pool, Logger: logger}, "Clock is required"},
		{"missing logger", StoreConfig{Pool: pool, Clock: fake}, "Logger is required"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := OpenStore(context.Background(), test.cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not mention %q", err, test.want)
			}
		})
	}
}

func TestAppendStoresMessage(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	msg, err := store.Append(ctx, maya, noah, "see you at the library?", stanford)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID.IsZero() {
		t.Error("message has no ID")
	}
	if msg.Sender != maya || msg.Receiver != noah {
		t.Errorf("participants = %s -> %s, want %s -> %s", msg.Sender, msg.Receiver, maya, noah)
	}
	if msg.Content != "see you at the library?" {
		t.Errorf("content = %q", msg.Content)
	}
	if msg.Domain != stanford {
		t.Errorf("domain = %s, want %s", msg.Domain, stanford)
	}
	if msg.Read {
		t.Error("new message is already read")
	}
	if !msg.UpdatedAt.Equal(msg.CreatedAt) {
		t.Errorf("updated at %v differs from created at %v", msg.UpdatedAt, msg.CreatedAt)
	}

	page, err := store.History(ctx, noah, maya, HistoryPage{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("history has %d messages, want 1", len(page.Messages))
	}
	if page.Messages[0] != msg {
		t.Errorf("stored message %+v differs from returned %+v", page.Messages[0], msg)
	}
}

// A frozen clock hands every append the same wall time. Timestamps
// must still come out strictly increasing within the pair, or two
// messages would share a pagination cursor and one could vanish
// between pages.
func TestAppendTimestampsAreMonotonicPerPair(t *testing.T) {
	store, _ := newTestStore(t)

	first := send(t, store, maya, noah, "one")
	second := send(t, store, noah, maya, "two")
	third := send(t, store, maya, noah, "three")

	if !second.CreatedAt.After(first.CreatedAt) {
		t.Errorf("second %v not after first %v", second.CreatedAt, first.CreatedAt)
	}
	if !third.CreatedAt.After(second.CreatedAt) {
		t.Errorf("third %v not after second %v", third.CreatedAt, second.CreatedAt)
	}
}

func TestAppendValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, ref.UserID{}, noah, "hi", stanford); err == nil {
		t.Error("append with zero sender succeeded")
	}
	if _, err := store.Append(ctx, maya, noah, "", stanford); err == nil {
		t.Error("append with empty content succeeded")
	}
	if _, err := store.Append(ctx, maya, noah, "hi", ref.Domain{}); err == nil {
		t.Error("append with zero domain succeeded")
	}
}

func TestMarkConversationRead(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	send(t, store, maya, noah, "one")
	send(t, store, maya, noah, "two")
	sent := send(t, store, noah, maya, "reply")

	fake.Advance(time.Minute)

	count, err := store.MarkConversationRead(ctx, noah, maya)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if count != 2 {
		t.Errorf("marked %d messages, want 2", count)
	}

	page, err := store.History(ctx, noah, maya, HistoryPage{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, msg := range page.Messages {
		switch msg.Receiver {
		case noah:
			if !msg.Read {
				t.Errorf("message %s to noah still unread", msg.ID)
			}
			if !msg.UpdatedAt.After(msg.CreatedAt) {
				t.Errorf("message %s updated at not advanced by read", msg.ID)
			}
		case maya:
			if msg.Read {
				t.Errorf("message %s to maya marked read by noah", msg.ID)
			}
		}
	}
	if updated := page.Messages[2]; updated.ID != sent.ID || updated.Read {
		t.Errorf("noah's own message changed: %+v", updated)
	}

	// Second pass finds nothing left to flip.
	count, err = store.MarkConversationRead(ctx, noah, maya)
	if err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if count != 0 {
		t.Errorf("second mark read flipped %d messages, want 0", count)
	}
}

func TestHistoryPagination(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var all []Message
	for i := 0; i < 7; i++ {
		content := "message " + string(rune('a'+i))
		if i%2 == 0 {
			all = append(all, send(t, store, maya, noah, content))
		} else {
			all = append(all, send(t, store, noah, maya, content))
		}
	}

	// Walk the full conversation three messages at a time. The pages
	// concatenate to the complete log with no gaps or duplicates.
	var walked []Message
	page := HistoryPage{Limit: 3}
	for {
		result, err := store.History(ctx, maya, noah, page)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		// Older pages are prepended: each page is chronological and
		// strictly precedes the one fetched before it.
		walked = append(append([]Message(nil), result.Messages...), walked...)
		if !result.HasMore {
			break
		}
		if result.NextCursor.IsZero() {
			t.Fatal("HasMore set with zero cursor")
		}
		page.Before = result.NextCursor
	}

	if len(walked) != len(all) {
		t.Fatalf("walked %d messages, want %d", len(walked), len(all))
	}
	for i := range all {
		if walked[i] != all[i] {
			t.Errorf("message %d = %+v, want %+v", i, walked[i], all[i])
		}
	}
}

func TestHistoryLatestPageFirst(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var all []Message
	for i := 0; i < 5; i++ {
		all = append(all, send(t, store, maya, noah, "m"))
	}

	result, err := store.History(ctx, maya, noah, HistoryPage{Limit: 2})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("page has %d messages, want 2", len(result.Messages))
	}
	if result.Messages[0] != all[3] || result.Messages[1] != all[4] {
		t.Error("first page is not the two most recent messages in order")
	}
	if !result.HasMore {
		t.Error("HasMore false with three older messages remaining")
	}
	if !result.NextCursor.Equal(all[3].CreatedAt) {
		t.Errorf("cursor %v, want oldest returned %v", result.NextCursor, all[3].CreatedAt)
	}
}

func TestHistoryLimitBounds(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < historyDefaultLimit+10; i++ {
		send(t, store, maya, noah, "m")
	}

	result, err := store.History(ctx, maya, noah, HistoryPage{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(result.Messages) != historyDefaultLimit {
		t.Errorf("zero limit returned %d messages, want default %d", len(result.Messages), historyDefaultLimit)
	}

	result, err = store.History(ctx, maya, noah, HistoryPage{Limit: historyMaxLimit + 500})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(result.Messages) != historyDefaultLimit+10 {
		t.Errorf("oversized limit returned %d messages, want all %d", len(result.Messages), historyDefaultLimit+10)
	}
}

func TestHistoryEmptyConversation(t *testing.T) {
	store, _ := newTestStore(t)

	result, err := store.History(context.Background(), maya, liam, HistoryPage{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(result.Messages) != 0 || result.HasMore || !result.NextCursor.IsZero() {
		t.Errorf("empty conversation returned %+v", result)
	}
}

func TestConversations(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	send(t, store, maya, noah, "hey noah")
	send(t, store, noah, maya, "hey maya")
	fake.Advance(time.Minute)
	send(t, store, liam, maya, "lab report?")
	send(t, store, liam, maya, "it's due friday")
	fake.Advance(time.Minute)
	latest := send(t, store, maya, priya, "lunch?")

	// Unrelated traffic never leaks into maya's list.
	send(t, store, noah, liam, "not maya's conversation")

	conversations, err := store.Conversations(ctx, maya)
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(conversations) != 3 {
		t.Fatalf("got %d conversations, want 3", len(conversations))
	}

	if conversations[0].Partner != priya || conversations[1].Partner != liam || conversations[2].Partner != noah {
		t.Errorf("order = %s, %s, %s; want priya, liam, noah",
			conversations[0].Partner, conversations[1].Partner, conversations[2].Partner)
	}
	if conversations[0].LastMessage != latest {
		t.Errorf("priya last message = %+v, want %+v", conversations[0].LastMessage, latest)
	}
	if conversations[0].Unread != 0 {
		t.Errorf("priya unread = %d, want 0 (maya sent the only message)", conversations[0].Unread)
	}
	if conversations[1].Unread != 2 {
		t.Errorf("liam unread = %d, want 2", conversations[1].Unread)
	}
	if got := conversations[1].LastMessage.Content; got != "it's due friday" {
		t.Errorf("liam last message = %q", got)
	}
	if conversations[2].Unread != 1 {
		t.Errorf("noah unread = %d, want 1", conversations[2].Unread)
	}
	for _, conversation := range conversations {
		if conversation.PartnerName != "" {
			t.Errorf("store filled PartnerName %q, enrichment belongs to the service", conversation.PartnerName)
		}
	}
}

func TestConversationsEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	conversations, err := store.Conversations(context.Background(), maya)
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(conversations) != 0 {
		t.Errorf("got %d conversations, want none", len(conversations))
	}
}

// The badge count and the per-conversation counts are projections of
// the same rows, so they must always agree.
func TestUnreadTotalMatchesConversationSum(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	send(t, store, noah, maya, "one")
	send(t, store, noah, maya, "two")
	send(t, store, liam, maya, "three")
	send(t, store, maya, priya, "sent, not unread for maya")
	send(t, store, priya, maya, "four")

	check := func() {
		t.Helper()
		total, err := store.UnreadTotal(ctx, maya)
		if err != nil {
			t.Fatalf("unread total: %v", err)
		}
		conversations, err := store.Conversations(ctx, maya)
		if err != nil {
			t.Fatalf("conversations: %v", err)
		}
		sum := 0
		for _, conversation := range conversations {
			sum += conversation.Unread
		}
		if total != sum {
			t.Errorf("unread total %d differs from conversation sum %d", total, sum)
		}
	}

	check()
	total, err := store.UnreadTotal(ctx, maya)
	if err != nil {
		t.Fatalf("unread total: %v", err)
	}
	if total != 4 {
		t.Errorf("unread total = %d, want 4", total)
	}

	if _, err := store.MarkConversationRead(ctx, maya, noah); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	check()
	total, err = store.UnreadTotal(ctx, maya)
	if err != nil {
		t.Fatalf("unread total: %v", err)
	}
	if total != 2 {
		t.Errorf("unread total after reading noah = %d, want 2", total)
	}
}
