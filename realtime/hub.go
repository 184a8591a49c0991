// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// Package realtime fans successful sends and read receipts out to
// live per-viewer subscriptions.
//
// Delivery is at-least-once: the hub never deduplicates, and the
// transport underneath a consumer may redeliver on reconnect.
// Consumers treat every event as an independent upsert keyed by the
// message ID, never as a positional stream.
//
// Each subscription is independent. A viewer watching from two
// screens holds two subscriptions; closing one never disturbs the
// other.
package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/clstr-network/clstr/lib/ref"
	"github.com/clstr-network/clstr/messaging"
)

// Event types carried by a Subscription.
const (
	// EventMessage is a newly stored message. Message is populated.
	EventMessage = "message"

	// EventRead is a conversation read receipt. Read is populated.
	EventRead = "read"
)

// Event is one realtime notification. Exactly one of Message and Read
// is set, per Type.
type Event struct {
	Type    string
	Message *messaging.Enriched
	Read    *messaging.ReadReceipt
}

// SubscriberChannelSize is the buffer size for per-subscription event
// channels. Large enough to absorb a burst of sends while the
// consumer is writing earlier frames. On overflow the subscription is
// marked lagged instead of blocking the publisher.
const SubscriberChannelSize = 64

// Subscription is one viewer's live event feed. Events arrive on
// Events until Close is called. The channel is never closed; consumers
// select on Events alongside their own shutdown signal.
type Subscription struct {
	viewer  ref.UserID
	channel chan Event
	lagged  atomic.Bool
	done    chan struct{}
	closer  sync.Once
	hub     *Hub
}

// Events returns the subscription's event channel.
func (s *Subscription) Events() <-chan Event {
	return s.channel
}

// Viewer returns the user this subscription is scoped to.
func (s *Subscription) Viewer() ref.UserID {
	return s.viewer
}

// Lagged reports and clears the overflow flag. When it returns true,
// events have been dropped since the previous call: the consumer's
// buffered view is incomplete and should be rebuilt from the store.
func (s *Subscription) Lagged() bool {
	return s.lagged.CompareAndSwap(true, false)
}

// Close releases the subscription. No events are delivered after
// Close returns. Safe to call multiple times.
func (s *Subscription) Close() {
	s.closer.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
}

// Hub is the subscription registry. It implements
// [messaging.Publisher]: the messaging service publishes into the hub
// synchronously on every successful send and read, and the hub
// forwards to live subscriptions with non-blocking sends.
type Hub struct {
	mu          sync.Mutex
	logger      *slog.Logger
	subscribers map[ref.UserID][]*Subscription
}

var _ messaging.Publisher = (*Hub)(nil)

// NewHub creates an empty subscription registry.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:      logger,
		subscribers: make(map[ref.UserID][]*Subscription),
	}
}

// Subscribe registers a new subscription for viewer. The caller must
// Close it when done; an abandoned subscription is a leak that sets
// its lagged flag forever once the buffer fills.
func (h *Hub) Subscribe(viewer ref.UserID) *Subscription {
	subscription := &Subscription{
		viewer:  viewer,
		channel: make(chan Event, SubscriberChannelSize),
		done:    make(chan struct{}),
		hub:     h,
	}

	h.mu.Lock()
	h.subscribers[viewer] = append(h.subscribers[viewer], subscription)
	total := len(h.subscribers[viewer])
	h.mu.Unlock()

	h.logger.Debug("subscription added", "viewer", viewer, "total", total)
	return subscription
}

// SubscriberCount returns the number of live subscriptions for viewer.
func (h *Hub) SubscriberCount(viewer ref.UserID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[viewer])
}

// PublishMessage implements [messaging.Publisher]. The event goes to
// both participants' subscriptions: the receiver learns of the new
// message, and the sender's other screens render their own sent copy.
func (h *Hub) PublishMessage(msg messaging.Enriched) {
	event := Event{Type: EventMessage, Message: &msg}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.notify(msg.Sender, event)
	h.notify(msg.Receiver, event)
}

// PublishRead implements [messaging.Publisher]. The event goes to the
// reader's subscriptions (clear the badge on other screens) and the
// sender's (their sent messages just flipped to read).
func (h *Hub) PublishRead(receipt messaging.ReadReceipt) {
	event := Event{Type: EventRead, Read: &receipt}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.notify(receipt.Reader, event)
	h.notify(receipt.Sender, event)
}

// notify delivers an event to every subscription of viewer with a
// non-blocking send, marking full subscriptions lagged. Subscriptions
// whose done channel is closed are dropped from the registry. Must be
// called with h.mu held; iterates in reverse so removals do not shift
// unvisited elements.
func (h *Hub) notify(viewer ref.UserID, event Event) {
	subscriptions := h.subscribers[viewer]
	if len(subscriptions) == 0 {
		return
	}

	for i := len(subscriptions) - 1; i >= 0; i-- {
		subscription := subscriptions[i]

		select {
		case <-subscription.done:
			subscriptions = append(subscriptions[:i], subscriptions[i+1:]...)
			continue
		default:
		}

		select {
		case subscription.channel <- event:
		default:
			subscription.lagged.Store(true)
			h.logger.Debug("subscription lagged", "viewer", viewer)
		}
	}

	if len(subscriptions) == 0 {
		delete(h.subscribers, viewer)
	} else {
		h.subscribers[viewer] = subscriptions
	}
}

// remove deletes one subscription from the registry.
func (h *Hub) remove(subscription *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscriptions := h.subscribers[subscription.viewer]
	for i, existing := range subscriptions {
		if existing == subscription {
			subscriptions = append(subscriptions[:i], subscriptions[i+1:]...)
			break
		}
	}
	if len(subscriptions) == 0 {
		delete(h.subscribers, subscription.viewer)
	} else {
		h.subscribers[subscription.viewer] = subscriptions
	}
}
