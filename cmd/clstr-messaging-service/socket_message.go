// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/clstr-network/clstr/lib/codec"
	"github.com/clstr-network/clstr/lib/ref"
	"github.com/clstr-network/clstr/messaging"
)

// Message responses use the messaging package's types directly
// (Enriched, HistoryResult, Conversation). Same rule as the
// connection handlers: no shadow schema.

// messageSendRequest is the request payload for the "message-send"
// action.
type messageSendRequest struct {
	As      ref.UserID `cbor:"as"`
	To      string     `cbor:"to"`
	Content string     `cbor:"content"`
}

func (ms *MessagingService) handleMessageSend(ctx context.Context, raw []byte) (any, error) {
	caller, err := ms.requireCaller(ctx, raw)
	if err != nil {
		return nil, err
	}
	var request messageSendRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	receiver, err := parseUserField("to", request.To)
	if err != nil {
		return nil, err
	}
	sent, err := ms.service.Send(ctx, caller, receiver, request.Content)
	if err != nil {
		return nil, wireError(err)
	}
	return sent, nil
}

// messageHistoryRequest is the request payload for the
// "message-history" action. Before is an RFC 3339 timestamp with
// nanoseconds, as rendered in the previous page's next_cursor; empty
// requests the latest page.
type messageHistoryRequest struct {
	As     ref.UserID `cbor:"as"`
	With   string     `cbor:"with"`
	Limit  int        `cbor:"limit"`
	Before string     `cbor:"before"`
}

func (ms *MessagingService) handleMessageHistory(ctx context.Context, raw []byte) (any, error) {
	caller, err := ms.requireCaller(ctx, raw)
	if err != nil {
		return nil, err
	}
	var request messageHistoryRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	partner, err := parseUserField("with", request.With)
	if err != nil {
		return nil, err
	}
	page := messaging.HistoryPage{Limit: request.Limit}
	if request.Before != "" {
		before, err := time.Parse(time.RFC3339Nano, request.Before)
		if err != nil {
			return nil, fmt.Errorf("field %q: parsing cursor: %w", "before", err)
		}
		page.Before = before
	}
	result, err := ms.service.History(ctx, caller, partner, page)
	if err != nil {
		return nil, wireError(err)
	}
	return result, nil
}

// messageMarkReadRequest is the request payload for the
// "message-mark-read" action.
type messageMarkReadRequest struct {
	As   ref.UserID `cbor:"as"`
	With string     `cbor:"with"`
}

// markReadResponse reports how many messages flipped to read. Zero is
// a successful no-op, not an error.
type markReadResponse struct {
	Marked int `cbor:"marked"`
}

func (ms *MessagingService) handleMessageMarkRead(ctx context.Context, raw []byte) (any, error) {
	caller, err := ms.requireCaller(ctx, raw)
	if err != nil {
		return nil, err
	}
	var request messageMarkReadRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	partner, err := parseUserField("with", request.With)
	if err != nil {
		return nil, err
	}
	marked, err := ms.service.MarkRead(ctx, caller, partner)
	if err != nil {
		return nil, wireError(err)
	}
	return markReadResponse{Marked: marked}, nil
}

func (ms *MessagingService) handleConversations(ctx context.Context, raw []byte) (any, error) {
	caller, err := ms.requireCaller(ctx, raw)
	if err != nil {
		return nil, err
	}
	conversations, err := ms.service.Conversations(ctx, caller)
	if err != nil {
		return nil, wireError(err)
	}
	return conversations, nil
}

// unreadTotalResponse is the response to the "unread-total" action:
// the viewer's badge count across all conversations.
type unreadTotalResponse struct {
	Unread int `cbor:"unread"`
}

func (ms *MessagingService) handleUnreadTotal(ctx context.Context, raw []byte) (any, error) {
	caller, err := ms.requireCaller(ctx, raw)
	if err != nil {
		return nil, err
	}
	unread, err := ms.service.UnreadTotal(ctx, caller)
	if err != nil {
		return nil, wireError(err)
	}
	return unreadTotalResponse{Unread: unread}, nil
}
