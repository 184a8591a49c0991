// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clstr-network/clstr/lib/codec"
	"github.com/clstr-network/clstr/lib/service"
	"github.com/clstr-network/clstr/lib/testutil"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want map[string]any
	}{
		{
			name: "no params",
			args: nil,
			want: nil,
		},
		{
			name: "strings",
			args: []string{"user=abc", "note=office hours at 3"},
			want: map[string]any{"user": "abc", "note": "office hours at 3"},
		},
		{
			name: "value containing equals",
			args: []string{"note=k=v"},
			want: map[string]any{"note": "k=v"},
		},
		{
			name: "empty value",
			args: []string{"note="},
			want: map[string]any{"note": ""},
		},
		{
			name: "typed bool",
			args: []string{"accept:=true"},
			want: map[string]any{"accept": true},
		},
		{
			name: "typed number",
			args: []string{"limit:=25"},
			want: map[string]any{"limit": float64(25)},
		},
		{
			name: "typed list",
			args: []string{`users:=["a","b"]`},
			want: map[string]any{"users": []any{"a", "b"}},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := parseParams(test.args)
			if err != nil {
				t.Fatalf("parseParams(%v): %v", test.args, err)
			}
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("parseParams(%v) = %#v, want %#v", test.args, got, test.want)
			}
		})
	}
}

func TestParseParamsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing equals", args: []string{"user"}, want: "not key=value"},
		{name: "empty key", args: []string{"=abc"}, want: "empty key"},
		{name: "bad json value", args: []string{"accept:=yes"}, want: "invalid JSON"},
		{name: "reserved action key", args: []string{"action=status"}, want: "set by the client"},
		{name: "reserved as key", args: []string{"as=someone"}, want: "set by the client"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := parseParams(test.args)
			if err == nil {
				t.Fatalf("parseParams(%v) succeeded, want error", test.args)
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not contain %q", err, test.want)
			}
		})
	}
}

// startCallServer serves a socket with the given actions registered
// and returns the socket path. The server stops at test cleanup.
func startCallServer(t *testing.T, register func(*service.SocketServer)) string {
	t.Helper()

	socketPath := filepath.Join(testutil.SocketDir(t), "call.sock")
	server := service.NewSocketServer(socketPath, slog.New(slog.DiscardHandler))
	register(server)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	for range 500 {
		if _, err := os.Stat(socketPath); err == nil {
			return socketPath
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("socket %s did not appear within timeout", socketPath)
	return ""
}

func TestCallActionRendersJSON(t *testing.T) {
	socketPath := startCallServer(t, func(server *service.SocketServer) {
		server.Handle("echo", func(ctx context.Context, raw []byte) (any, error) {
			var request map[string]any
			if err := codec.Unmarshal(raw, &request); err != nil {
				return nil, fmt.Errorf("decoding request: %w", err)
			}
			return map[string]any{
				"action": request["action"],
				"note":   request["note"],
				"accept": request["accept"],
			}, nil
		})
	})

	var out bytes.Buffer
	client := service.NewClient(socketPath)
	fields := map[string]any{"note": "hello", "accept": true}
	if err := callAction(context.Background(), client, "echo", fields, &out); err != nil {
		t.Fatalf("callAction: %v", err)
	}

	var response map[string]any
	if err := json.Unmarshal(out.Bytes(), &response); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	want := map[string]any{"action": "echo", "note": "hello", "accept": true}
	if !reflect.DeepEqual(response, want) {
		t.Errorf("response = %#v, want %#v", response, want)
	}
	if !strings.HasPrefix(out.String(), "{\n") {
		t.Errorf("output is not indented:\n%s", out.String())
	}
}

func TestCallActionDataless(t *testing.T) {
	socketPath := startCallServer(t, func(server *service.SocketServer) {
		server.Handle("ack", func(ctx context.Context, raw []byte) (any, error) {
			return nil, nil
		})
	})

	var out bytes.Buffer
	client := service.NewClient(socketPath)
	if err := callAction(context.Background(), client, "ack", nil, &out); err != nil {
		t.Fatalf("callAction: %v", err)
	}
	if got := out.String(); got != "ok\n" {
		t.Errorf("output = %q, want %q", got, "ok\n")
	}
}

func TestCallActionServiceError(t *testing.T) {
	socketPath := startCallServer(t, func(server *service.SocketServer) {
		server.Handle("fail", func(ctx context.Context, raw []byte) (any, error) {
			return nil, fmt.Errorf("nothing here")
		})
	})

	var out bytes.Buffer
	client := service.NewClient(socketPath)
	err := callAction(context.Background(), client, "fail", nil, &out)
	if err == nil {
		t.Fatal("callAction succeeded, want error")
	}
	if !strings.Contains(err.Error(), "nothing here") {
		t.Errorf("error %q does not carry the service message", err)
	}
	if out.Len() != 0 {
		t.Errorf("failed call wrote output: %q", out.String())
	}
}

func TestStreamActionPrintsFrames(t *testing.T) {
	socketPath := startCallServer(t, func(server *service.SocketServer) {
		server.HandleStream("feed", func(ctx context.Context, raw []byte, conn net.Conn) {
			encoder := codec.NewEncoder(conn)
			encoder.Encode(map[string]any{"type": "message", "seq": 1})
			encoder.Encode(map[string]any{"type": "heartbeat"})
			conn.Close()
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	client := service.NewClient(socketPath)
	if err := streamAction(ctx, client, "feed", nil, &out); err != nil {
		t.Fatalf("streamAction: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d output lines, want 2:\n%s", len(lines), out.String())
	}
	for i, want := range []string{"message", "heartbeat"} {
		var frame map[string]any
		if err := json.Unmarshal([]byte(lines[i]), &frame); err != nil {
			t.Fatalf("line %d is not JSON: %v\n%s", i, err, lines[i])
		}
		if frame["type"] != want {
			t.Errorf("frame %d type = %v, want %q", i, frame["type"], want)
		}
	}
}

func TestStreamActionStopsOnCancel(t *testing.T) {
	started := make(chan struct{})
	socketPath := startCallServer(t, func(server *service.SocketServer) {
		server.HandleStream("feed", func(ctx context.Context, raw []byte, conn net.Conn) {
			close(started)
			// Hold the stream open until the client goes away.
			buffer := make([]byte, 1)
			conn.Read(buffer)
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	var out bytes.Buffer
	go func() {
		client := service.NewClient(socketPath)
		done <- streamAction(ctx, client, "feed", nil, &out)
	}()

	testutil.RequireClosed(t, started, 5*time.Second, "stream handler did not start")
	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "streamAction did not return"); err != nil {
		t.Errorf("streamAction after cancel: %v", err)
	}
}
