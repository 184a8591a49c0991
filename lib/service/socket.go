// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/clstr-network/clstr/lib/codec"
)

// ActionFunc processes a socket request for a specific action. The raw
// parameter is the full CBOR request (including the "action" field).
// The handler decodes action-specific fields from this raw message.
//
// Return a value to include in the success response, or an error for
// a failure response. If the returned value is nil, the response
// contains only {ok: true}. If non-nil, the value is marshaled as
// CBOR and placed in the response's "data" field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// StreamFunc processes a streaming action. The handler owns the
// connection for its lifetime: it writes CBOR frames directly and
// returns when the stream ends. It must watch ctx and return promptly
// on cancellation; Serve's shutdown drain waits for it.
type StreamFunc func(ctx context.Context, raw []byte, conn net.Conn)

// Response is the wire-format envelope for all socket protocol
// responses. Handlers return a result value (or nil) and an error;
// the server wraps these into a Response before encoding.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// CodedError is a handler error with a stable machine-readable code.
// The server renders it as "CODE: message" in the envelope's error
// string and additionally sets the response data to {"code": CODE} so
// clients can dispatch without parsing the message.
type CodedError struct {
	Code    string
	Message string
}

func (e *CodedError) Error() string {
	return e.Code + ": " + e.Message
}

// errorData is the response data attached to a CodedError failure.
type errorData struct {
	Code string `cbor:"code"`
}

// SocketServer serves a CBOR protocol on a Unix socket. Plain actions
// handle exactly one request-response cycle: the client writes a CBOR
// value, the server processes it and writes a CBOR response, then the
// connection closes. Streaming actions hand the connection to the
// handler, which writes CBOR frames until the stream ends.
//
// Actions are registered with Handle or HandleStream before calling
// Serve. Unknown actions receive an error response.
type SocketServer struct {
	socketPath string
	handlers   map[string]ActionFunc
	streams    map[string]StreamFunc
	logger     *slog.Logger

	// activeConnections tracks in-flight handlers (streams included)
	// for graceful shutdown. Serve waits for all active connections
	// to complete before returning.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
// Register actions with Handle and HandleStream before calling Serve.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		streams:    make(map[string]StreamFunc),
		logger:     logger,
	}
}

// Handle registers a request-response handler for the given action
// name. Panics if the action is already registered.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	s.checkUnregistered(action)
	s.handlers[action] = handler
}

// HandleStream registers a streaming handler for the given action
// name. Panics if the action is already registered.
func (s *SocketServer) HandleStream(action string, handler StreamFunc) {
	s.checkUnregistered(action)
	s.streams[action] = handler
}

func (s *SocketServer) checkUnregistered(action string) {
	_, plain := s.handlers[action]
	_, stream := s.streams[action]
	if plain || stream {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
}

// Serve starts accepting connections on the Unix socket and dispatches
// requests to registered action handlers. Blocks until ctx is
// cancelled, then stops accepting new connections and waits for active
// handlers (streams included) to complete.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// readTimeout is how long we wait for the client to send its request.
// A well-behaved client sends the request immediately after connecting.
const readTimeout = 30 * time.Second

// writeTimeout is how long we wait for the response to be written.
const writeTimeout = 10 * time.Second

// maxRequestSize is the maximum size of a single CBOR request.
// Message bodies are short text; 1 MB leaves room for generous batch
// requests without letting a client exhaust memory.
const maxRequestSize = 1024 * 1024

// handleConnection processes one connection: reads the request,
// routes by action, and either completes a request-response cycle or
// hands the connection to a stream handler.
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// Decode one CBOR value from the connection. CBOR is self-
	// delimiting so no framing protocol is needed. LimitReader
	// prevents a malicious client from exhausting memory.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeError(conn, fmt.Errorf("invalid request: %v", err))
		return
	}

	// Extract the action field for routing.
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Errorf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, errors.New("missing required field: action"))
		return
	}

	if stream, exists := s.streams[header.Action]; exists {
		// Streams are long-lived; the request deadline no longer
		// applies. The handler owns all further I/O on the conn.
		conn.SetReadDeadline(time.Time{})
		stream(ctx, []byte(raw), conn)
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Errorf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed",
			"action", header.Action,
			"error", err,
		)
		s.writeError(conn, err)
		return
	}

	s.writeSuccess(conn, result)
}

// writeError sends a failure response: {ok: false, error: "..."}. A
// *CodedError additionally populates data with {"code": ...}. Write
// failures are logged at debug level; the connection is closing
// regardless, and the caller has already received the error.
func (s *SocketServer) writeError(conn net.Conn, failure error) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{
		OK:    false,
		Error: failure.Error(),
	}
	var coded *CodedError
	if errors.As(failure, &coded) {
		if data, err := codec.Marshal(errorData{Code: coded.Code}); err == nil {
			response.Data = data
		}
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

// writeSuccess sends a success response. If result is nil, the
// response is {ok: true}. If non-nil, the value is marshaled as CBOR
// and placed in the "data" field: {ok: true, data: <cbor>}.
func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}

	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Errorf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
