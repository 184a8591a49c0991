// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

// clstr-messaging-call sends a single action to a running messaging
// service socket and prints the response as JSON. For operators and
// smoke tests; the platform's API tier talks to the socket directly.
//
// Request fields are key=value arguments. A plain key=value sends a
// string; key:=value decodes the value as JSON first, for booleans,
// numbers, and lists:
//
//	clstr-messaging-call --socket /run/clstr/messaging.sock status
//	clstr-messaging-call --socket ... --as 7c9e... connection-request \
//	    user=b5d21... note="intro seminar"
//	clstr-messaging-call --socket ... --as 7c9e... connection-respond \
//	    connection=f3ab... accept:=true
//
// With --watch the action is treated as a stream: frames are printed
// as JSON lines until interrupted.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/clstr-network/clstr/lib/codec"
	"github.com/clstr-network/clstr/lib/ref"
	"github.com/clstr-network/clstr/lib/service"
	"github.com/clstr-network/clstr/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		socketPath string
		asID       string
		watch      bool
		timeout    time.Duration
	)

	flagSet := pflag.NewFlagSet("clstr-messaging-call", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", "", "path to the messaging service socket")
	flagSet.StringVar(&asID, "as", "", "user ID to act as")
	flagSet.BoolVar(&watch, "watch", false, "stream frames from a streaming action until interrupted")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("clstr-messaging-call %s\n", version.Info())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) == 0 {
		return errors.New("an action is required (try --help)")
	}
	if socketPath == "" {
		return errors.New("--socket is required")
	}

	action := args[0]
	fields, err := parseParams(args[1:])
	if err != nil {
		return err
	}

	client := service.NewClient(socketPath)
	if asID != "" {
		user, err := ref.ParseUserID(asID)
		if err != nil {
			return fmt.Errorf("--as: %w", err)
		}
		client = service.NewClientAs(socketPath, user)
	}

	if watch {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return streamAction(ctx, client, action, fields, os.Stdout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return callAction(ctx, client, action, fields, os.Stdout)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Send one action to a Clstr messaging service socket.

Request fields are key=value arguments. A plain key=value sends a
string. Use key:=value to send a JSON-typed value (boolean, number,
or list).

Usage:
  clstr-messaging-call [flags] <action> [key=value]...

Examples:
  # Liveness check
  clstr-messaging-call --socket /run/clstr/messaging.sock status

  # Open a connection request with a note
  clstr-messaging-call --socket /run/clstr/messaging.sock \
      --as 7c9e6679-7425-40de-944b-e07fc1f90ae7 \
      connection-request user=b5d21f90-0001-4a7e-9e1c-0c8d2f3a4b5c \
      note="we met at orientation"

  # Accept it from the other side
  clstr-messaging-call --socket /run/clstr/messaging.sock \
      --as b5d21f90-0001-4a7e-9e1c-0c8d2f3a4b5c \
      connection-respond connection=<id> accept:=true

  # Follow live events until Ctrl-C
  clstr-messaging-call --socket /run/clstr/messaging.sock \
      --as 7c9e6679-7425-40de-944b-e07fc1f90ae7 --watch watch

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

// parseParams converts key=value arguments into request fields. The
// "action" and "as" keys are reserved for the client.
func parseParams(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("parameter %q is not key=value", arg)
		}
		if key == "" {
			return nil, fmt.Errorf("parameter %q has an empty key", arg)
		}

		if jsonKey, typed := strings.CutSuffix(key, ":"); typed {
			var decoded any
			if err := json.Unmarshal([]byte(value), &decoded); err != nil {
				return nil, fmt.Errorf("parameter %q: invalid JSON value: %w", jsonKey, err)
			}
			fields[jsonKey] = decoded
			continue
		}

		switch key {
		case "action", "as":
			return nil, fmt.Errorf("parameter %q: the %q field is set by the client", arg, key)
		}
		fields[key] = value
	}
	return fields, nil
}

// callAction performs one request/response call and renders the
// response data as indented JSON. Data-less successes print "ok".
func callAction(ctx context.Context, client *service.Client, action string, fields map[string]any, out io.Writer) error {
	var result any
	if err := client.Call(ctx, action, fields, &result); err != nil {
		return err
	}
	if result == nil {
		_, err := fmt.Fprintln(out, "ok")
		return err
	}

	rendered, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("rendering response: %w", err)
	}
	_, err = fmt.Fprintln(out, string(rendered))
	return err
}

// streamAction opens a stream and prints each CBOR frame as one JSON
// line until the stream closes or the context is cancelled.
func streamAction(ctx context.Context, client *service.Client, action string, fields map[string]any, out io.Writer) error {
	conn, err := client.Stream(ctx, action, fields)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the connection on interrupt so the decode loop ends.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	encoder := json.NewEncoder(out)
	decoder := codec.NewDecoder(conn)
	for {
		var frame any
		if err := decoder.Decode(&frame); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading stream: %w", err)
		}
		if err := encoder.Encode(frame); err != nil {
			return err
		}
	}
}
