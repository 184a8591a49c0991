// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/clstr-network/clstr/connection"
	"github.com/clstr-network/clstr/directory"
	"github.com/clstr-network/clstr/eligibility"
	"github.com/clstr-network/clstr/lib/codec"
	"github.com/clstr-network/clstr/lib/ref"
	"github.com/clstr-network/clstr/lib/service"
	"github.com/clstr-network/clstr/messaging"
)

// registerActions registers all socket API actions on the server.
//
// The "status" action is unauthenticated (pure liveness check). Every
// other action resolves the caller from the request's "as" field and
// fails with UNAUTHENTICATED when it does not name a directory
// identity.
func (ms *MessagingService) registerActions(server *service.SocketServer) {
	// Liveness health check. Returns only uptime; connection and
	// message counts are not disclosed to unauthenticated callers.
	server.Handle("status", ms.handleStatus)

	// Connection ledger.
	server.Handle("connection-request", ms.handleConnectionRequest)
	server.Handle("connection-respond", ms.handleConnectionRespond)
	server.Handle("connection-cancel", ms.handleConnectionCancel)
	server.Handle("connection-remove", ms.handleConnectionRemove)
	server.Handle("connection-block", ms.handleConnectionBlock)
	server.Handle("connection-status", ms.handleConnectionStatus)
	server.Handle("connection-statuses", ms.handleConnectionStatuses)
	server.Handle("connection-pending", ms.handleConnectionPending)
	server.Handle("connection-accepted", ms.handleConnectionAccepted)

	// Direct messages.
	server.Handle("message-send", ms.handleMessageSend)
	server.Handle("message-history", ms.handleMessageHistory)
	server.Handle("message-mark-read", ms.handleMessageMarkRead)
	server.Handle("conversations", ms.handleConversations)
	server.Handle("unread-total", ms.handleUnreadTotal)

	// Live delivery.
	server.HandleStream("watch", ms.handleWatch)
}

// statusResponse is the response to the "status" action. Contains only
// liveness information; nothing about who is connected to whom or how
// many messages the service holds.
type statusResponse struct {
	// UptimeSeconds is how long the service has been running.
	UptimeSeconds float64 `cbor:"uptime_seconds"`
}

// handleStatus returns a minimal liveness response. This is the only
// unauthenticated action.
func (ms *MessagingService) handleStatus(_ context.Context, _ []byte) (any, error) {
	uptime := ms.clock.Now().Sub(ms.startedAt)
	return statusResponse{
		UptimeSeconds: uptime.Seconds(),
	}, nil
}

// callerRequest is the identity field shared by all authenticated
// actions. The platform API tier fills "as" after verifying the user's
// session; the socket's filesystem permissions keep other local
// processes from speaking for users directly.
type callerRequest struct {
	As ref.UserID `cbor:"as"`
}

// requireCaller resolves the request's "as" field to a directory
// identity and returns the caller's user ID. Every action except
// "status" starts here, so a missing or unknown caller fails the same
// way everywhere: an UNAUTHENTICATED error.
func (ms *MessagingService) requireCaller(ctx context.Context, raw []byte) (ref.UserID, error) {
	var request callerRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return ref.UserID{}, &service.CodedError{
			Code:    "UNAUTHENTICATED",
			Message: fmt.Sprintf("decoding caller identity: %v", err),
		}
	}
	if request.As.IsZero() {
		return ref.UserID{}, &service.CodedError{
			Code:    "UNAUTHENTICATED",
			Message: "request carries no caller identity",
		}
	}
	if _, err := ms.directory.Lookup(ctx, request.As); err != nil {
		if errors.Is(err, directory.ErrUnknownUser) {
			return ref.UserID{}, &service.CodedError{
				Code:    "UNAUTHENTICATED",
				Message: fmt.Sprintf("caller %s has no directory entry", request.As),
			}
		}
		return ref.UserID{}, fmt.Errorf("resolving caller %s: %w", request.As, err)
	}
	return request.As, nil
}

// parseUserField validates a raw user ID from a request field. The
// field name appears in the error so clients can tell which of several
// ID fields was malformed.
func parseUserField(field, raw string) (ref.UserID, error) {
	user, err := ref.ParseUserID(raw)
	if err != nil {
		return ref.UserID{}, &service.CodedError{
			Code:    "INVALID_IDENTIFIER",
			Message: fmt.Sprintf("field %q: %v", field, err),
		}
	}
	return user, nil
}

// parseConnectionField validates a raw connection ID from a request
// field.
func parseConnectionField(field, raw string) (ref.ConnectionID, error) {
	id, err := ref.ParseConnectionID(raw)
	if err != nil {
		return ref.ConnectionID{}, &service.CodedError{
			Code:    "INVALID_IDENTIFIER",
			Message: fmt.Sprintf("field %q: %v", field, err),
		}
	}
	return id, nil
}

// wireError maps domain errors onto stable wire codes. Clients branch
// on the code, never on message text. Errors with no mapping pass
// through uncoded rather than being mislabeled; the socket layer still
// reports them as a failed response.
func wireError(err error) error {
	if err == nil {
		return nil
	}

	var coded *service.CodedError
	if errors.As(err, &coded) {
		return err
	}

	code := ""
	switch {
	case errors.Is(err, connection.ErrSelfConnection):
		code = "SELF_CONNECTION"
	case errors.Is(err, connection.ErrDuplicate):
		code = "DUPLICATE_CONNECTION"
	case errors.Is(err, connection.ErrNotAuthorized):
		code = "NOT_AUTHORIZED"
	case errors.Is(err, eligibility.ErrSelfMessaging):
		code = "SELF_MESSAGING"
	case errors.Is(err, messaging.ErrEmptyMessage):
		code = "EMPTY_MESSAGE"
	case errors.Is(err, messaging.ErrUnauthenticated):
		code = "UNAUTHENTICATED"
	}
	if code != "" {
		return &service.CodedError{Code: code, Message: err.Error()}
	}

	var (
		invalidState   *connection.InvalidStateError
		notConnected   *messaging.NotConnectedError
		missingDomain  *messaging.MissingDomainError
		domainMismatch *messaging.DomainMismatchError
		opFailed       *messaging.OperationFailedError
	)
	switch {
	case errors.As(err, &invalidState):
		code = "INVALID_STATE"
	case errors.As(err, &notConnected):
		code = "NOT_CONNECTED"
	case errors.As(err, &missingDomain):
		code = "MISSING_DOMAIN"
	case errors.As(err, &domainMismatch):
		code = "DOMAIN_MISMATCH"
	case errors.As(err, &opFailed):
		code = "OPERATION_FAILED"
	}
	if code != "" {
		return &service.CodedError{Code: code, Message: err.Error()}
	}

	return err
}
