// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/clstr-network/clstr/lib/codec"
	"github.com/clstr-network/clstr/lib/ref"
)

// dialTimeout is the maximum time to wait for a connection to the
// service socket. This is separate from the server's read/write
// timeouts; it covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for the server to
// send a response after writing the request. Matched to the server's
// readTimeout + writeTimeout to account for handler execution time.
const responseReadTimeout = 45 * time.Second

// maxResponseSize is the maximum size of a single CBOR response.
// Matches the server's maxRequestSize for symmetry.
const maxResponseSize = 1024 * 1024

// ServiceError is returned by Call when the server responds with
// ok=false. Code carries the server's machine-readable failure code
// when the response included one, empty otherwise.
type ServiceError struct {
	Action  string
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error on %q: %s", e.Action, e.Message)
}

// Client sends CBOR requests to a messaging service socket. Each Call
// opens a new connection (matching the server's one-request-per-
// connection model), sends the request, reads the response, and
// closes the connection.
//
// A client constructed with NewClientAs acts as that user: the user
// ID is included in every request as the "as" field. Clients without
// an identity (NewClient) omit it, which suits unauthenticated
// actions like status checks.
type Client struct {
	socketPath string
	as         ref.UserID
}

// NewClient creates a client with no acting user.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// NewClientAs creates a client whose requests act as the given user.
// Caller identity is asserted, not proven: the socket's filesystem
// permissions decide who may assert it.
func NewClientAs(socketPath string, user ref.UserID) *Client {
	return &Client{socketPath: socketPath, as: user}
}

// Call sends a CBOR request to the service and decodes the response.
//
// The fields parameter may contain any handler-specific request
// fields; the client adds "action" and "as" automatically. Pass nil
// for actions that take no additional parameters. The caller must not
// include "action" or "as" keys in the fields map.
//
// On success (response ok=true), if result is non-nil and the
// response contains data, the data is CBOR-decoded into result.
//
// On failure (response ok=false), returns a *ServiceError containing
// the server's error message and code. Connection and encoding errors
// are returned as plain errors (not *ServiceError).
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := c.buildRequest(action, fields)

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}

	if !response.OK {
		serviceError := &ServiceError{
			Action:  action,
			Message: response.Error,
		}
		if len(response.Data) > 0 {
			var data errorData
			if err := codec.Unmarshal(response.Data, &data); err == nil {
				serviceError.Code = data.Code
			}
		}
		return serviceError
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}

	return nil
}

// Stream connects to the service, sends a streaming action request,
// and returns the open connection. The caller decodes CBOR frames
// from it and must Close it when done. The context covers only the
// dial and request write; to abort an established stream, close the
// connection (typically from a goroutine watching ctx.Done).
func (c *Client) Stream(ctx context.Context, action string, fields map[string]any) (net.Conn, error) {
	request := c.buildRequest(action, fields)

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("streaming %q on %s: connecting: %w", action, c.socketPath, err)
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		conn.Close()
		return nil, fmt.Errorf("streaming %q on %s: writing request: %w", action, c.socketPath, err)
	}

	return conn, nil
}

// buildRequest constructs the CBOR request map. Starts with the
// caller's fields (if any), then injects "action" and optionally
// "as".
func (c *Client) buildRequest(action string, fields map[string]any) map[string]any {
	var request map[string]any
	if fields != nil {
		request = make(map[string]any, len(fields)+2)
		for key, value := range fields {
			request[key] = value
		}
	} else {
		request = make(map[string]any, 2)
	}

	request["action"] = action
	if !c.as.IsZero() {
		request["as"] = c.as.String()
	}

	return request
}

// send connects to the socket, writes the request, and reads the
// response. Each call creates a new connection.
func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	// Write the request.
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close the write side. CBOR is self-delimiting so this
	// isn't strictly necessary, but it lets the server's read side
	// see EOF cleanly.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	// Read the response.
	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &response, nil
}
