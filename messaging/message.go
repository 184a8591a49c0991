// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"time"

	"github.com/clstr-network/clstr/lib/ref"
)

// Message is one stored direct message. Immutable after append except
// the Read flag, which flips false to true exactly once (touching
// UpdatedAt) when the receiver marks the conversation read.
type Message struct {
	ID       ref.MessageID `cbor:"id" json:"id"`
	Sender   ref.UserID    `cbor:"sender" json:"sender"`
	Receiver ref.UserID    `cbor:"receiver" json:"receiver"`
	Content  string        `cbor:"content" json:"content"`
	Read     bool          `cbor:"read" json:"read"`

	// Domain is the sender's campus, copied onto the row at write
	// time. Both parties are on this domain; the copy is an audit
	// trail, not a lookup source.
	Domain ref.Domain `cbor:"domain" json:"domain"`

	CreatedAt time.Time `cbor:"created_at" json:"created_at"`
	UpdatedAt time.Time `cbor:"updated_at" json:"updated_at"`
}

// Enriched is a message together with the display names clients
// render. Send returns it, and realtime events carry it, so
// consumers never chase identity lookups per event.
type Enriched struct {
	Message
	SenderName   string `cbor:"sender_name" json:"sender_name"`
	ReceiverName string `cbor:"receiver_name" json:"receiver_name"`
}

// Conversation is one row of the viewer's conversation list: the
// partner, the most recent message either way, and how many of the
// partner's messages the viewer has not read. Derived per call from
// the message log, never stored.
type Conversation struct {
	Partner     ref.UserID `cbor:"partner" json:"partner"`
	PartnerName string     `cbor:"partner_name" json:"partner_name"`
	LastMessage Message    `cbor:"last_message" json:"last_message"`
	Unread      int        `cbor:"unread" json:"unread"`
}

// HistoryPage selects one page of a pair's history.
type HistoryPage struct {
	// Limit is the page size, clamped to [1, 100]. Zero or negative
	// means the default of 50.
	Limit int

	// Before selects messages strictly older than this cursor. Zero
	// means the latest page. Callers pass the NextCursor of the
	// previous result to walk backward.
	Before time.Time
}

// historyDefaultLimit and historyMaxLimit bound HistoryPage.Limit.
const (
	historyDefaultLimit = 50
	historyMaxLimit     = 100
)

// HistoryResult is one page of history in chronological (oldest
// first) order, ready to render top-down.
type HistoryResult struct {
	Messages []Message `cbor:"messages" json:"messages"`

	// HasMore reports that older messages exist beyond this page.
	HasMore bool `cbor:"has_more" json:"has_more"`

	// NextCursor is the CreatedAt of the oldest returned message;
	// pass it as Before to fetch the next older page. Zero when
	// Messages is empty.
	NextCursor time.Time `cbor:"next_cursor,omitempty" json:"next_cursor,omitempty"`
}

// ReadReceipt describes one MarkRead that flipped at least one
// message: Reader caught up on Sender's messages.
type ReadReceipt struct {
	Reader ref.UserID `cbor:"reader" json:"reader"`
	Sender ref.UserID `cbor:"sender" json:"sender"`
	Count  int        `cbor:"count" json:"count"`
}

// Publisher receives write notifications for realtime fan-out. The
// realtime package's Hub implements it. Implementations must not
// block: publishing happens on the request path.
type Publisher interface {
	// PublishMessage announces a freshly appended message.
	PublishMessage(msg Enriched)

	// PublishRead announces a read-flag flip.
	PublishRead(receipt ReadReceipt)
}
