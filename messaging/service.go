// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clstr-network/clstr/directory"
	"github.com/clstr-network/clstr/eligibility"
	"github.com/clstr-network/clstr/lib/ref"
)

// ServiceConfig holds the collaborators a Service needs.
type ServiceConfig struct {
	// Store persists the message log. Required.
	Store *Store

	// Eligibility decides whether a sender may message a receiver.
	// Required.
	Eligibility *eligibility.Engine

	// Directory resolves user IDs to campus identities. Required.
	Directory directory.Resolver

	// Publisher receives successful sends and read receipts for
	// live delivery. Required; use NopPublisher to disable.
	Publisher Publisher

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Service is the messaging front door. Every operation authenticates
// the acting user against the directory before touching the store, so
// an unknown or malformed caller never observes message state.
type Service struct {
	store       *Store
	eligibility *eligibility.Engine
	directory   directory.Resolver
	publisher   Publisher
	logger      *slog.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("messaging: Store is required")
	}
	if cfg.Eligibility == nil {
		return nil, fmt.Errorf("messaging: Eligibility is required")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("messaging: Directory is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("messaging: Publisher is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("messaging: Logger is required")
	}
	return &Service{
		store:       cfg.Store,
		eligibility: cfg.Eligibility,
		directory:   cfg.Directory,
		publisher:   cfg.Publisher,
		logger:      cfg.Logger,
	}, nil
}

// authenticate resolves the acting user, mapping an unknown ID to
// ErrUnauthenticated so callers cannot probe which IDs exist.
func (s *Service) authenticate(ctx context.Context, op string, actor ref.UserID) (directory.Identity, error) {
	identity, err := s.directory.Lookup(ctx, actor)
	if err != nil {
		if errors.Is(err, directory.ErrUnknownUser) {
			return directory.Identity{}, ErrUnauthenticated
		}
		return directory.Identity{}, &OperationFailedError{Op: op, Err: err}
	}
	return identity, nil
}

// Send validates, stores, and publishes one direct message. The
// checks run in a fixed order so a caller failing several at once
// always sees the same error: sender identity, non-empty content,
// connection gate, campus domain match. The message is stamped with
// the sender's domain and starts unread.
func (s *Service) Send(ctx context.Context, sender, receiver ref.UserID, content string) (Enriched, error) {
	senderIdentity, err := s.authenticate(ctx, "send", sender)
	if err != nil {
		return Enriched{}, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return Enriched{}, ErrEmptyMessage
	}

	decision, err := s.eligibility.Check(ctx, sender, receiver)
	if err != nil {
		if errors.Is(err, eligibility.ErrSelfMessaging) {
			return Enriched{}, err
		}
		return Enriched{}, &OperationFailedError{Op: "send", Err: err}
	}
	if !decision.Allowed {
		return Enriched{}, &NotConnectedError{Status: decision.Status}
	}

	receiverIdentity, err := s.directory.Lookup(ctx, receiver)
	if err != nil {
		if errors.Is(err, directory.ErrUnknownUser) {
			return Enriched{}, &MissingDomainError{User: receiver}
		}
		return Enriched{}, &OperationFailedError{Op: "send", Err: err}
	}

	// Domain isolation is independent of the connection gate and of
	// privileged bypass: nobody messages across campuses.
	if senderIdentity.Domain.IsZero() {
		return Enriched{}, &MissingDomainError{User: sender}
	}
	if receiverIdentity.Domain.IsZero() {
		return Enriched{}, &MissingDomainError{User: receiver}
	}
	if senderIdentity.Domain != receiverIdentity.Domain {
		return Enriched{}, &DomainMismatchError{
			SenderDomain:   senderIdentity.Domain,
			ReceiverDomain: receiverIdentity.Domain,
		}
	}

	msg, err := s.store.Append(ctx, sender, receiver, content, senderIdentity.Domain)
	if err != nil {
		return Enriched{}, &OperationFailedError{Op: "send", Err: err}
	}

	enriched := Enriched{
		Message:      msg,
		SenderName:   senderIdentity.DisplayName,
		ReceiverName: receiverIdentity.DisplayName,
	}
	s.publisher.PublishMessage(enriched)

	s.logger.Info("message sent",
		"message_id", msg.ID,
		"sender", sender,
		"receiver", receiver,
		"domain", msg.Domain,
		"bypass", decision.Bypass)
	return enriched, nil
}

// MarkRead marks every unread message from partner to viewer as read
// and returns how many changed. A read receipt is published only when
// something actually flipped, so repeated calls stay quiet.
func (s *Service) MarkRead(ctx context.Context, viewer, partner ref.UserID) (int, error) {
	if _, err := s.authenticate(ctx, "mark read", viewer); err != nil {
		return 0, err
	}

	count, err := s.store.MarkConversationRead(ctx, viewer, partner)
	if err != nil {
		return 0, &OperationFailedError{Op: "mark read", Err: err}
	}
	if count > 0 {
		s.publisher.PublishRead(ReadReceipt{Reader: viewer, Sender: partner, Count: count})
		s.logger.Info("conversation read",
			"viewer", viewer,
			"partner", partner,
			"count", count)
	}
	return count, nil
}

// History returns one chronological page of the conversation between
// the viewer and partner. Messages remain readable regardless of the
// connection's current state, so a blocked pair can still see their
// past conversation.
func (s *Service) History(ctx context.Context, viewer, partner ref.UserID, page HistoryPage) (HistoryResult, error) {
	if _, err := s.authenticate(ctx, "history", viewer); err != nil {
		return HistoryResult{}, err
	}

	result, err := s.store.History(ctx, viewer, partner, page)
	if err != nil {
		return HistoryResult{}, &OperationFailedError{Op: "history", Err: err}
	}
	return result, nil
}

// Conversations returns the viewer's conversation list, most recent
// first, with partner display names resolved. A partner missing from
// the directory keeps an empty name rather than failing the list.
func (s *Service) Conversations(ctx context.Context, viewer ref.UserID) ([]Conversation, error) {
	if _, err := s.authenticate(ctx, "conversations", viewer); err != nil {
		return nil, err
	}

	conversations, err := s.store.Conversations(ctx, viewer)
	if err != nil {
		return nil, &OperationFailedError{Op: "conversations", Err: err}
	}
	for i := range conversations {
		identity, err := s.directory.Lookup(ctx, conversations[i].Partner)
		if err != nil {
			if errors.Is(err, directory.ErrUnknownUser) {
				continue
			}
			return nil, &OperationFailedError{Op: "conversations", Err: err}
		}
		conversations[i].PartnerName = identity.DisplayName
	}
	return conversations, nil
}

// UnreadTotal returns the viewer's unread message count across all
// conversations.
func (s *Service) UnreadTotal(ctx context.Context, viewer ref.UserID) (int, error) {
	if _, err := s.authenticate(ctx, "unread total", viewer); err != nil {
		return 0, err
	}

	total, err := s.store.UnreadTotal(ctx, viewer)
	if err != nil {
		return 0, &OperationFailedError{Op: "unread total", Err: err}
	}
	return total, nil
}

// NopPublisher discards all events. Useful for batch tools and tests
// that do not care about live delivery.
type NopPublisher struct{}

// PublishMessage implements Publisher.
func (NopPublisher) PublishMessage(Enriched) {}

// PublishRead implements Publisher.
func (NopPublisher) PublishRead(ReadReceipt) {}

var _ Publisher = NopPublisher{}
