// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/clstr-network/clstr/connection"
	"github.com/clstr-network/clstr/lib/codec"
	"github.com/clstr-network/clstr/lib/ref"
)

// Connection responses use the ledger's record type directly. The
// socket layer adds nothing the record does not already carry, and a
// wrapper schema would silently drift from the ledger's.

// connectionRequestRequest is the request payload for the
// "connection-request" action.
type connectionRequestRequest struct {
	As   ref.UserID `cbor:"as"`
	User string     `cbor:"user"`
	Note string     `cbor:"note"`
}

func (ms *MessagingService) handleConnectionRequest(ctx context.Context, raw []byte) (any, error) {
	caller, err := ms.requireCaller(ctx, raw)
	if err != nil {
		return nil, err
	}
	var request connectionRequestRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	target, err := parseUserField("user", request.User)
	if err != nil {
		return nil, err
	}
	record, err := ms.ledger.Request(ctx, caller, target, request.Note)
	if err != nil {
		return nil, wireError(err)
	}
	return record, nil
}

// connectionRespondRequest is the request payload for the
// "connection-respond" action.
type connectionRespondRequest struct {
	As         ref.UserID `cbor:"as"`
	Connection string     `cbor:"connection"`
	Accept     bool       `cbor:"accept"`
}

func (ms *MessagingService) handleConnectionRespond(ctx context.Context, raw []byte) (any, error) {
	caller, err := ms.requireCaller(ctx, raw)
	if err != nil {
		return nil, err
	}
	var request connectionRespondRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	id, err := parseConnectionField("connection", request.Connection)
	if err != nil {
		return nil, err
	}
	record, err := ms.ledger.Respond(ctx, caller, id, request.Accept)
	if err != nil {
		return nil, wireError(err)
	}
	return record, nil
}

// connectionTargetRequest is the shared payload for actions that name
// an existing record and nothing else: cancel, remove, block.
type connectionTargetRequest struct {
	As         ref.UserID `cbor:"as"`
	Connection string     `cbor:"connection"`
}

func (ms *MessagingService) handleConnectionCancel(ctx context.Context, raw []byte) (any, error) {
	caller, id, err := ms.connectionTarget(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := ms.ledger.Cancel(ctx, caller, id); err != nil {
		return nil, wireError(err)
	}
	return nil, nil
}

func (ms *MessagingService) handleConnectionRemove(ctx context.Context, raw []byte) (any, error) {
	caller, id, err := ms.connectionTarget(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := ms.ledger.Remove(ctx, caller, id); err != nil {
		return nil, wireError(err)
	}
	return nil, nil
}

func (ms *MessagingService) handleConnectionBlock(ctx context.Context, raw []byte) (any, error) {
	caller, id, err := ms.connectionTarget(ctx, raw)
	if err != nil {
		return nil, err
	}
	record, err := ms.ledger.Block(ctx, caller, id)
	if err != nil {
		return nil, wireError(err)
	}
	return record, nil
}

// connectionTarget resolves the caller and the record ID for the
// cancel/remove/block family.
func (ms *MessagingService) connectionTarget(ctx context.Context, raw []byte) (ref.UserID, ref.ConnectionID, error) {
	caller, err := ms.requireCaller(ctx, raw)
	if err != nil {
		return ref.UserID{}, ref.ConnectionID{}, err
	}
	var request connectionTargetRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return ref.UserID{}, ref.ConnectionID{}, fmt.Errorf("decoding request: %w", err)
	}
	id, err := parseConnectionField("connection", request.Connection)
	if err != nil {
		return ref.UserID{}, ref.ConnectionID{}, err
	}
	return caller, id, nil
}

// connectionStatusRequest is the request payload for the
// "connection-status" action.
type connectionStatusRequest struct {
	As   ref.UserID `cbor:"as"`
	User string     `cbor:"user"`
}

// connectionStatusResponse is the response to "connection-status":
// the pair's live status only. Rejected tombstones read as "none", so
// a declined requester cannot tell rejection from silence.
type connectionStatusResponse struct {
	Status connection.Status `cbor:"status"`
}

func (ms *MessagingService) handleConnectionStatus(ctx context.Context, raw []byte) (any, error) {
	caller, err := ms.requireCaller(ctx, raw)
	if err != nil {
		return nil, err
	}
	var request connectionStatusRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	other, err := parseUserField("user", request.User)
	if err != nil {
		return nil, err
	}
	status, err := ms.ledger.StatusBetween(ctx, caller, other)
	if err != nil {
		return nil, wireError(err)
	}
	return connectionStatusResponse{Status: status}, nil
}

// connectionStatusesRequest is the request payload for the
// "connection-statuses" action: the caller's status against each of a
// batch of users, one directory page in one round trip.
type connectionStatusesRequest struct {
	As    ref.UserID `cbor:"as"`
	Users []string   `cbor:"users"`
}

// pairStatus is one row of the "connection-statuses" response. Record
// is present for pending/accepted/blocked pairs and absent for "none".
type pairStatus struct {
	Other  ref.UserID             `cbor:"other"`
	Status connection.Status      `cbor:"status"`
	Record *connection.Connection `cbor:"record,omitempty"`
}

func (ms *MessagingService) handleConnectionStatuses(ctx context.Context, raw []byte) (any, error) {
	caller, err := ms.requireCaller(ctx, raw)
	if err != nil {
		return nil, err
	}
	var request connectionStatusesRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	others := make([]ref.UserID, 0, len(request.Users))
	seen := make(map[ref.UserID]bool, len(request.Users))
	for _, rawID := range request.Users {
		other, err := parseUserField("users", rawID)
		if err != nil {
			return nil, err
		}
		if other == caller || seen[other] {
			continue
		}
		seen[other] = true
		others = append(others, other)
	}

	records, err := ms.ledger.StatusesForMany(ctx, caller, others)
	if err != nil {
		return nil, wireError(err)
	}

	// One row per distinct requested user, in request order. Pairs
	// with no live record report "none" and omit the record.
	rows := make([]pairStatus, 0, len(others))
	for _, other := range others {
		row := pairStatus{Other: other, Status: connection.StatusNone}
		if record, ok := records[other]; ok {
			row.Status = record.Status
			row.Record = &record
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (ms *MessagingService) handleConnectionPending(ctx context.Context, raw []byte) (any, error) {
	caller, err := ms.requireCaller(ctx, raw)
	if err != nil {
		return nil, err
	}
	records, err := ms.ledger.PendingFor(ctx, caller)
	if err != nil {
		return nil, wireError(err)
	}
	return records, nil
}

func (ms *MessagingService) handleConnectionAccepted(ctx context.Context, raw []byte) (any, error) {
	caller, err := ms.requireCaller(ctx, raw)
	if err != nil {
		return nil, err
	}
	records, err := ms.ledger.AcceptedFor(ctx, caller)
	if err != nil {
		return nil, wireError(err)
	}
	return records, nil
}
