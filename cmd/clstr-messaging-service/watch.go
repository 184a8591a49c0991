// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"net"

	"github.com/clstr-network/clstr/lib/codec"
	"github.com/clstr-network/clstr/lib/ref"
	"github.com/clstr-network/clstr/messaging"
	"github.com/clstr-network/clstr/realtime"
)

// watchFrame is a single CBOR value written on a watch stream. The
// Type field discriminates frame semantics:
//
//   - "conversation": one snapshot row (Conversation populated)
//   - "caught_up": the snapshot is complete, live events follow
//     (UnreadTotal populated)
//   - "message": a message was stored (Message populated); the
//     viewer's own sends appear here too, so their other screens
//     render the sent copy
//   - "read": a conversation read receipt (Read populated)
//   - "heartbeat": connection liveness probe (no payload)
//   - "resync": the event buffer overflowed and frames were dropped;
//     a fresh snapshot follows
//   - "error": terminal error, the connection will close (Error
//     populated)
type watchFrame struct {
	Type         string                  `cbor:"type"`
	Conversation *messaging.Conversation `cbor:"conversation,omitempty"`
	UnreadTotal  int                     `cbor:"unread_total,omitempty"`
	Message      *messaging.Enriched     `cbor:"message,omitempty"`
	Read         *messaging.ReadReceipt  `cbor:"read,omitempty"`
	Error        string                  `cbor:"error,omitempty"`
}

// handleWatch is the stream handler for the "watch" action. It writes
// the viewer's conversation list as a snapshot, then forwards live
// events from the hub until the connection ends or the server shuts
// down.
//
// The subscription is registered before the snapshot is read: anything
// published after registration buffers in the subscription channel, so
// the viewer misses nothing. A message that lands in both the snapshot
// and the buffer renders once, because consumers upsert by message ID.
func (ms *MessagingService) handleWatch(ctx context.Context, raw []byte, conn net.Conn) {
	encoder := codec.NewEncoder(conn)

	viewer, err := ms.requireCaller(ctx, raw)
	if err != nil {
		encoder.Encode(watchFrame{Type: "error", Error: err.Error()})
		return
	}

	sub := ms.hub.Subscribe(viewer)
	defer func() {
		sub.Close()
		ms.logger.Info("watch stream ended", "viewer", viewer)
	}()

	ms.logger.Info("watch stream started", "viewer", viewer)

	if err := ms.writeWatchSnapshot(ctx, encoder, viewer); err != nil {
		ms.logger.Debug("watch stream write error during snapshot",
			"viewer", viewer, "error", err)
		return
	}

	ms.watchLoop(ctx, encoder, sub)
}

// writeWatchSnapshot writes the viewer's conversation rows and the
// caught_up marker. Used at stream start and again after a resync.
func (ms *MessagingService) writeWatchSnapshot(ctx context.Context, encoder *codec.Encoder, viewer ref.UserID) error {
	conversations, err := ms.service.Conversations(ctx, viewer)
	if err != nil {
		encoder.Encode(watchFrame{Type: "error", Error: wireError(err).Error()})
		return err
	}
	unread, err := ms.service.UnreadTotal(ctx, viewer)
	if err != nil {
		encoder.Encode(watchFrame{Type: "error", Error: wireError(err).Error()})
		return err
	}

	for i := range conversations {
		if err := encoder.Encode(watchFrame{
			Type:         "conversation",
			Conversation: &conversations[i],
		}); err != nil {
			return err
		}
	}

	return encoder.Encode(watchFrame{
		Type:        "caught_up",
		UnreadTotal: unread,
	})
}

// watchLoop forwards live events as CBOR frames until the context is
// cancelled (server shutdown) or the connection fails.
//
// On buffer overflow (lagged flag set) the loop drains the remaining
// buffered events, writes a resync frame, and sends a fresh snapshot
// before resuming. Heartbeats ride the service clock rather than a
// raw ticker so tests can fire them deterministically.
func (ms *MessagingService) watchLoop(ctx context.Context, encoder *codec.Encoder, sub *realtime.Subscription) {
	viewer := sub.Viewer()
	heartbeat := ms.clock.NewTicker(ms.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event := <-sub.Events():
			// Check the lagged flag before forwarding. When set, events
			// were dropped and whatever is still buffered is an
			// incomplete view. The fresh snapshot reflects the buffered
			// events' effects too, so they are drained, not replayed.
			if sub.Lagged() {
				for len(sub.Events()) > 0 {
					<-sub.Events()
				}

				if err := encoder.Encode(watchFrame{Type: "resync"}); err != nil {
					ms.logger.Debug("watch stream write error",
						"viewer", viewer, "error", err)
					return
				}
				if err := ms.writeWatchSnapshot(ctx, encoder, viewer); err != nil {
					ms.logger.Debug("watch stream write error during resync",
						"viewer", viewer, "error", err)
					return
				}
				continue
			}

			if err := encoder.Encode(watchFrame{
				Type:    event.Type,
				Message: event.Message,
				Read:    event.Read,
			}); err != nil {
				ms.logger.Debug("watch stream write error",
					"viewer", viewer, "error", err)
				return
			}

		case <-heartbeat.C:
			if err := encoder.Encode(watchFrame{Type: "heartbeat"}); err != nil {
				ms.logger.Debug("watch stream heartbeat error",
					"viewer", viewer, "error", err)
				return
			}
		}
	}
}
