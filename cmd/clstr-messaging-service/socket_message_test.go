// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/clstr-network/clstr/messaging"
)

func TestMessageSendAndHistory(t *testing.T) {
	env := newTestServer(t)
	defer env.cleanup()
	ctx := context.Background()

	env.connect(t, maya, noah)

	var sent messaging.Enriched
	err := env.as(maya).Call(ctx, "message-send", map[string]any{
		"to":      noah.String(),
		"content": "lunch at the quad?",
	}, &sent)
	if err != nil {
		t.Fatalf("message-send: %v", err)
	}
	if sent.Sender != maya || sent.Receiver != noah {
		t.Errorf("parties = %s -> %s, want %s -> %s", sent.Sender, sent.Receiver, maya, noah)
	}
	if sent.Content != "lunch at the quad?" {
		t.Errorf("content = %q", sent.Content)
	}
	if sent.SenderName != "Maya Lin" || sent.ReceiverName != "Noah Reyes" {
		t.Errorf("names = %q / %q", sent.SenderName, sent.ReceiverName)
	}
	if sent.Read {
		t.Error("new message must start unread")
	}
	if sent.Domain != stanford {
		t.Errorf("domain = %s, want %s", sent.Domain, stanford)
	}
	if !sent.CreatedAt.Equal(testClockEpoch) {
		t.Errorf("created_at = %v, want %v", sent.CreatedAt, testClockEpoch)
	}

	// The receiver reads the same message back.
	var history messaging.HistoryResult
	err = env.as(noah).Call(ctx, "message-history", map[string]any{
		"with": maya.String(),
	}, &history)
	if err != nil {
		t.Fatalf("message-history: %v", err)
	}
	if len(history.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(history.Messages))
	}
	if history.Messages[0].ID != sent.ID {
		t.Errorf("history message ID = %s, want %s", history.Messages[0].ID, sent.ID)
	}
	if history.HasMore {
		t.Error("has_more = true for a single-message conversation")
	}

	var unread struct {
		Unread int `cbor:"unread"`
	}
	if err := env.as(noah).Call(ctx, "unread-total", nil, &unread); err != nil {
		t.Fatalf("unread-total: %v", err)
	}
	if unread.Unread != 1 {
		t.Errorf("unread = %d, want 1", unread.Unread)
	}
}

func TestMessageSendRequiresConnection(t *testing.T) {
	env := newTestServer(t)
	defer env.cleanup()
	ctx := context.Background()

	// No record at all.
	err := env.as(maya).Call(ctx, "message-send", map[string]any{
		"to":      noah.String(),
		"content": "hello?",
	}, nil)
	serviceErr := requireCode(t, err, "NOT_CONNECTED")
	if !strings.Contains(serviceErr.Message, "none") {
		t.Errorf("message %q should carry the pair's status", serviceErr.Message)
	}

	// A pending request is still not a connection, and the error says
	// so: clients render "request pending" from it.
	err = env.as(maya).Call(ctx, "connection-request", map[string]any{
		"user": noah.String(),
	}, nil)
	if err != nil {
		t.Fatalf("connection-request: %v", err)
	}
	err = env.as(maya).Call(ctx, "message-send", map[string]any{
		"to":      noah.String(),
		"content": "hello??",
	}, nil)
	serviceErr = requireCode(t, err, "NOT_CONNECTED")
	if !strings.Contains(serviceErr.Message, "pending") {
		t.Errorf("message %q should carry the pending status", serviceErr.Message)
	}
}

func TestMessageSendValidation(t *testing.T) {
	env := newTestServer(t)
	defer env.cleanup()
	ctx := context.Background()

	env.connect(t, maya, noah)

	t.Run("self", func(t *testing.T) {
		err := env.as(maya).Call(ctx, "message-send", map[string]any{
			"to":      maya.String(),
			"content": "note to self",
		}, nil)
		requireCode(t, err, "SELF_MESSAGING")
	})

	t.Run("empty content", func(t *testing.T) {
		err := env.as(maya).Call(ctx, "message-send", map[string]any{
			"to":      noah.String(),
			"content": "   \n\t ",
		}, nil)
		requireCode(t, err, "EMPTY_MESSAGE")
	})

	t.Run("malformed receiver", func(t *testing.T) {
		err := env.as(maya).Call(ctx, "message-send", map[string]any{
			"to":      "not-a-uuid",
			"content": "hi",
		}, nil)
		requireCode(t, err, "INVALID_IDENTIFIER")
	})
}

func TestMessageSendDomainIsolation(t *testing.T) {
	env := newTestServer(t)
	defer env.cleanup()
	ctx := context.Background()

	// dean's admin role bypasses the connection gate, so these sends
	// reach the domain checks without any ledger records.
	t.Run("cross-campus", func(t *testing.T) {
		err := env.as(dean).Call(ctx, "message-send", map[string]any{
			"to":      priya.String(),
			"content": "welcome",
		}, nil)
		requireCode(t, err, "DOMAIN_MISMATCH")
	})

	t.Run("receiver without domain", func(t *testing.T) {
		err := env.as(dean).Call(ctx, "message-send", map[string]any{
			"to":      intake.String(),
			"content": "finish onboarding first",
		}, nil)
		requireCode(t, err, "MISSING_DOMAIN")
	})

	t.Run("bypass within campus", func(t *testing.T) {
		var sent messaging.Enriched
		err := env.as(dean).Call(ctx, "message-send", map[string]any{
			"to":      maya.String(),
			"content": "your transcript is ready",
		}, &sent)
		if err != nil {
			t.Fatalf("admin send without connection: %v", err)
		}
		if sent.Domain != stanford {
			t.Errorf("domain = %s, want %s", sent.Domain, stanford)
		}
	})
}

func TestMessageMarkRead(t *testing.T) {
	env := newTestServer(t)
	defer env.cleanup()
	ctx := context.Background()

	env.connect(t, maya, noah)

	for _, content := range []string{"first", "second"} {
		err := env.as(maya).Call(ctx, "message-send", map[string]any{
			"to":      noah.String(),
			"content": content,
		}, nil)
		if err != nil {
			t.Fatalf("message-send: %v", err)
		}
	}

	var marked struct {
		Marked int `cbor:"marked"`
	}
	err := env.as(noah).Call(ctx, "message-mark-read", map[string]any{
		"with": maya.String(),
	}, &marked)
	if err != nil {
		t.Fatalf("message-mark-read: %v", err)
	}
	if marked.Marked != 2 {
		t.Errorf("marked = %d, want 2", marked.Marked)
	}

	var unread struct {
		Unread int `cbor:"unread"`
	}
	if err := env.as(noah).Call(ctx, "unread-total", nil, &unread); err != nil {
		t.Fatalf("unread-total: %v", err)
	}
	if unread.Unread != 0 {
		t.Errorf("unread after mark-read = %d, want 0", unread.Unread)
	}

	// Marking an already-read conversation is a quiet no-op.
	err = env.as(noah).Call(ctx, "message-mark-read", map[string]any{
		"with": maya.String(),
	}, &marked)
	if err != nil {
		t.Fatalf("repeat message-mark-read: %v", err)
	}
	if marked.Marked != 0 {
		t.Errorf("repeat marked = %d, want 0", marked.Marked)
	}
}

func TestConversationsList(t *testing.T) {
	env := newTestServer(t)
	defer env.cleanup()
	ctx := context.Background()

	env.connect(t, maya, noah)
	env.connect(t, maya, liam)

	err := env.as(noah).Call(ctx, "message-send", map[string]any{
		"to":      maya.String(),
		"content": "problem set 3?",
	}, nil)
	if err != nil {
		t.Fatalf("message-send: %v", err)
	}
	env.clock.Advance(time.Minute)
	err = env.as(liam).Call(ctx, "message-send", map[string]any{
		"to":      maya.String(),
		"content": "dorm meeting at 8",
	}, nil)
	if err != nil {
		t.Fatalf("message-send: %v", err)
	}

	var conversations []messaging.Conversation
	if err := env.as(maya).Call(ctx, "conversations", nil, &conversations); err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(conversations) != 2 {
		t.Fatalf("got %d conversations, want 2", len(conversations))
	}

	// Most recent first, names resolved, one unread in each.
	if conversations[0].Partner != liam || conversations[1].Partner != noah {
		t.Errorf("order = [%s, %s], want [%s, %s]",
			conversations[0].Partner, conversations[1].Partner, liam, noah)
	}
	if conversations[0].PartnerName != "Liam Park" {
		t.Errorf("partner_name = %q, want Liam Park", conversations[0].PartnerName)
	}
	if conversations[0].LastMessage.Content != "dorm meeting at 8" {
		t.Errorf("last_message = %q", conversations[0].LastMessage.Content)
	}
	for i, conv := range conversations {
		if conv.Unread != 1 {
			t.Errorf("conversation %d unread = %d, want 1", i, conv.Unread)
		}
	}
}

func TestMessageHistoryPaging(t *testing.T) {
	env := newTestServer(t)
	defer env.cleanup()
	ctx := context.Background()

	env.connect(t, maya, noah)

	contents := []string{"one", "two", "three", "four", "five"}
	for _, content := range contents {
		err := env.as(maya).Call(ctx, "message-send", map[string]any{
			"to":      noah.String(),
			"content": content,
		}, nil)
		if err != nil {
			t.Fatalf("message-send %q: %v", content, err)
		}
		env.clock.Advance(time.Second)
	}

	// Latest page of two, chronological within the page.
	var page messaging.HistoryResult
	err := env.as(noah).Call(ctx, "message-history", map[string]any{
		"with":  maya.String(),
		"limit": 2,
	}, &page)
	if err != nil {
		t.Fatalf("message-history: %v", err)
	}
	if got := pageContents(page); got != "four,five" {
		t.Errorf("latest page = %s, want four,five", got)
	}
	if !page.HasMore {
		t.Error("has_more = false with three older messages remaining")
	}

	// Walk backward with the cursor.
	err = env.as(noah).Call(ctx, "message-history", map[string]any{
		"with":   maya.String(),
		"limit":  2,
		"before": page.NextCursor.UTC().Format(time.RFC3339Nano),
	}, &page)
	if err != nil {
		t.Fatalf("message-history page 2: %v", err)
	}
	if got := pageContents(page); got != "two,three" {
		t.Errorf("second page = %s, want two,three", got)
	}
	if !page.HasMore {
		t.Error("has_more = false with one older message remaining")
	}

	err = env.as(noah).Call(ctx, "message-history", map[string]any{
		"with":   maya.String(),
		"limit":  2,
		"before": page.NextCursor.UTC().Format(time.RFC3339Nano),
	}, &page)
	if err != nil {
		t.Fatalf("message-history page 3: %v", err)
	}
	if got := pageContents(page); got != "one" {
		t.Errorf("final page = %s, want one", got)
	}
	if page.HasMore {
		t.Error("has_more = true on the final page")
	}
}

func TestMessageHistoryBadCursor(t *testing.T) {
	env := newTestServer(t)
	defer env.cleanup()

	err := env.as(maya).Call(context.Background(), "message-history", map[string]any{
		"with":   noah.String(),
		"before": "yesterday-ish",
	}, nil)
	serviceErr := requireServiceError(t, err)
	if serviceErr.Code != "" {
		t.Errorf("cursor parse failures carry no wire code, got %q", serviceErr.Code)
	}
	if !strings.Contains(serviceErr.Message, "before") {
		t.Errorf("message %q should name the bad field", serviceErr.Message)
	}
}

// pageContents joins a history page's message bodies for compact
// order assertions.
func pageContents(page messaging.HistoryResult) string {
	contents := make([]string, len(page.Messages))
	for i, msg := range page.Messages {
		contents[i] = msg.Content
	}
	return strings.Join(contents, ",")
}
