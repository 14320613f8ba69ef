// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStoreConn connects to an in-process store.
func newStoreConn(t *testing.T) (*miniredis.Miniredis, *Conn) {
	t.Helper()
	store := miniredis.RunT(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, store.Addr(), ConnConfig{Logger: testLogger()})
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return store, conn
}

// newFakeServer returns a client Conn and the server side of an
// in-memory pipe, for tests that need to script malformed or
// misbehaving server traffic.
func newFakeServer(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	conn := NewConn(clientSide, ConnConfig{Logger: testLogger()})
	t.Cleanup(func() {
		conn.Close()
		serverSide.Close()
	})
	return conn, serverSide
}

func TestPipelinedOrdering(t *testing.T) {
	_, conn := newStoreConn(t)
	ctx := context.Background()

	// INCR returns the post-increment value, so if the Nth completion
	// does not correspond to the Nth submitted command the values come
	// back out of sequence.
	const n = 100
	pendings := make([]*Pending, n)
	for i := range pendings {
		pendings[i] = conn.Send("INCR", "counter")
	}
	for i, p := range pendings {
		reply, err := p.Wait(ctx)
		if err != nil {
			t.Fatalf("command %d error: %v", i, err)
		}
		if reply.Int() != int64(i+1) {
			t.Fatalf("command %d resolved with %d, want %d", i, reply.Int(), i+1)
		}
	}
}

func TestDo(t *testing.T) {
	store, conn := newStoreConn(t)
	ctx := context.Background()

	if _, err := conn.Do(ctx, "SET", "greeting", "hello"); err != nil {
		t.Fatalf("SET error: %v", err)
	}
	reply, err := conn.Do(ctx, "GET", "greeting")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	if reply.Str() != "hello" {
		t.Errorf("GET = %q, want hello", reply.Str())
	}
	if got, _ := store.Get("greeting"); got != "hello" {
		t.Errorf("stored value = %q", got)
	}
}

func TestCommandError(t *testing.T) {
	_, conn := newStoreConn(t)
	ctx := context.Background()

	if _, err := conn.Do(ctx, "SET", "s", "text"); err != nil {
		t.Fatalf("SET error: %v", err)
	}
	_, err := conn.Do(ctx, "INCR", "s")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("INCR on string error = %v, want *CommandError", err)
	}

	// A command error does not poison the connection.
	if _, err := conn.Do(ctx, "GET", "s"); err != nil {
		t.Errorf("connection unusable after command error: %v", err)
	}
}

func TestTransactionFanout(t *testing.T) {
	_, conn := newStoreConn(t)
	ctx := context.Background()

	if _, err := conn.Do(ctx, "MULTI"); err != nil {
		t.Fatalf("MULTI error: %v", err)
	}
	first := conn.Send("SET", "a", "1")
	second := conn.Send("INCR", "n")
	third := conn.Send("GET", "a")

	execReply, err := conn.Do(ctx, "EXEC")
	if err != nil {
		t.Fatalf("EXEC error: %v", err)
	}
	if execReply.Len() != 3 {
		t.Fatalf("EXEC returned %d elements, want 3", execReply.Len())
	}

	reply, err := first.Wait(ctx)
	if err != nil || reply.Status() != "OK" {
		t.Errorf("SET in transaction = %q, %v", reply.Status(), err)
	}
	reply, err = second.Wait(ctx)
	if err != nil || reply.Int() != 1 {
		t.Errorf("INCR in transaction = %d, %v", reply.Int(), err)
	}
	reply, err = third.Wait(ctx)
	if err != nil || reply.Str() != "1" {
		t.Errorf("GET in transaction = %q, %v", reply.Str(), err)
	}
}

func TestTransactionDiscard(t *testing.T) {
	_, conn := newStoreConn(t)
	ctx := context.Background()

	if _, err := conn.Do(ctx, "MULTI"); err != nil {
		t.Fatalf("MULTI error: %v", err)
	}
	pendings := []*Pending{
		conn.Send("SET", "a", "1"),
		conn.Send("SET", "b", "2"),
		conn.Send("SET", "c", "3"),
	}
	if _, err := conn.Do(ctx, "DISCARD"); err != nil {
		t.Fatalf("DISCARD error: %v", err)
	}

	for i, p := range pendings {
		if _, err := p.Wait(ctx); !errors.Is(err, ErrTransactionAborted) {
			t.Errorf("command %d error = %v, want ErrTransactionAborted", i, err)
		}
	}

	// The connection stays healthy after a discarded transaction.
	if _, err := conn.Do(ctx, "GET", "a"); err != nil {
		t.Errorf("connection unusable after DISCARD: %v", err)
	}
}

func TestTransactionAbortedByWatch(t *testing.T) {
	store, conn := newStoreConn(t)
	ctx := context.Background()

	other, err := Dial(ctx, store.Addr(), ConnConfig{Logger: testLogger()})
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer other.Close()

	if _, err := conn.Do(ctx, "WATCH", "guard"); err != nil {
		t.Fatalf("WATCH error: %v", err)
	}
	// Another client touches the watched key, dooming the transaction.
	if _, err := other.Do(ctx, "SET", "guard", "changed"); err != nil {
		t.Fatalf("SET error: %v", err)
	}

	if _, err := conn.Do(ctx, "MULTI"); err != nil {
		t.Fatalf("MULTI error: %v", err)
	}
	pendings := []*Pending{
		conn.Send("SET", "a", "1"),
		conn.Send("SET", "b", "2"),
		conn.Send("SET", "c", "3"),
	}

	execReply, err := conn.Do(ctx, "EXEC")
	if err != nil {
		t.Fatalf("EXEC error: %v", err)
	}
	if !execReply.IsNil() {
		t.Fatalf("EXEC after WATCH conflict = %v, want nil", execReply.Kind())
	}

	for i, p := range pendings {
		_, err := p.Wait(ctx)
		if !errors.Is(err, ErrTransactionAborted) {
			t.Errorf("command %d error = %v, want ErrTransactionAborted", i, err)
		}
		var connErr *ConnError
		if errors.As(err, &connErr) {
			t.Errorf("command %d failed with transport error %v", i, err)
		}
	}
}

// runFakeServer consumes commandCount commands from the server side
// of the pipe, then runs respond. net.Pipe is unbuffered, so the
// server must run concurrently with the client's Sends.
func runFakeServer(server net.Conn, commandCount int, respond func() error) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- func() error {
			decoder := NewDecoder(server)
			for i := 0; i < commandCount; i++ {
				if _, err := decoder.Decode(); err != nil {
					return fmt.Errorf("server decode: %w", err)
				}
			}
			return respond()
		}()
	}()
	return errCh
}

func TestChunkedReplies(t *testing.T) {
	conn, server := newFakeServer(t)
	ctx := context.Background()

	// Deliver all three replies as one byte stream split at awkward
	// boundaries.
	serverErr := runFakeServer(server, 3, func() error {
		stream := []byte("$1\r\na\r\n$1\r\nb\r\n$1\r\nc\r\n")
		for len(stream) > 0 {
			n := 4
			if n > len(stream) {
				n = len(stream)
			}
			if _, err := server.Write(stream[:n]); err != nil {
				return err
			}
			stream = stream[n:]
		}
		return nil
	})

	pendings := []*Pending{
		conn.Send("GET", "a"),
		conn.Send("GET", "b"),
		conn.Send("GET", "c"),
	}

	for i, want := range []string{"a", "b", "c"} {
		reply, err := pendings[i].Wait(ctx)
		if err != nil {
			t.Fatalf("command %d error: %v", i, err)
		}
		if reply.Str() != want {
			t.Errorf("command %d = %q, want %q", i, reply.Str(), want)
		}
	}
	if err := <-serverErr; err != nil {
		t.Fatal(err)
	}
}

func TestDisconnectFailsOutstanding(t *testing.T) {
	conn, server := newFakeServer(t)
	ctx := context.Background()

	serverErr := runFakeServer(server, 2, func() error {
		return server.Close()
	})

	first := conn.Send("GET", "a")
	second := conn.Send("GET", "b")

	for i, p := range []*Pending{first, second} {
		_, err := p.Wait(ctx)
		var connErr *ConnError
		if !errors.As(err, &connErr) {
			t.Errorf("command %d error = %v, want *ConnError", i, err)
		}
	}

	// Commands submitted after the failure resolve immediately with
	// the same terminal error.
	_, err := conn.Send("GET", "c").Wait(ctx)
	var connErr *ConnError
	if !errors.As(err, &connErr) {
		t.Errorf("post-failure Send error = %v, want *ConnError", err)
	}
	if conn.Err() == nil {
		t.Error("Err() = nil after disconnect")
	}
	if err := <-serverErr; err != nil {
		t.Fatal(err)
	}
}

func TestDisconnectFailsDeferred(t *testing.T) {
	conn, server := newFakeServer(t)
	ctx := context.Background()

	// Answer MULTI and queue the SET, then drop the connection with
	// the transaction still open.
	serverErr := runFakeServer(server, 2, func() error {
		if _, err := server.Write([]byte("+OK\r\n+QUEUED\r\n")); err != nil {
			return err
		}
		return server.Close()
	})

	multi := conn.Send("MULTI")
	queued := conn.Send("SET", "a", "1")

	if _, err := multi.Wait(ctx); err != nil {
		t.Fatalf("MULTI error: %v", err)
	}
	_, err := queued.Wait(ctx)
	var connErr *ConnError
	if !errors.As(err, &connErr) {
		t.Errorf("deferred command error = %v, want *ConnError", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatal(err)
	}
}

func TestUnsolicitedReplyKillsConnection(t *testing.T) {
	conn, server := newFakeServer(t)
	ctx := context.Background()

	if _, err := server.Write([]byte("+SURPRISE\r\n")); err != nil {
		t.Fatalf("server write error: %v", err)
	}

	// The read loop notices the reply with no outstanding command and
	// fails the connection; a subsequent command sees the failure.
	deadline := time.After(5 * time.Second)
	for conn.Err() == nil {
		select {
		case <-deadline:
			t.Fatal("connection did not fail on unsolicited reply")
		case <-time.After(time.Millisecond):
		}
	}
	if _, err := conn.Send("PING").Wait(ctx); err == nil {
		t.Error("Send succeeded on a failed connection")
	}
}

func TestParseErrorKillsConnection(t *testing.T) {
	conn, server := newFakeServer(t)
	ctx := context.Background()

	serverErr := runFakeServer(server, 1, func() error {
		_, err := server.Write([]byte("!garbage\r\n"))
		return err
	})

	pending := conn.Send("GET", "a")
	_, err := pending.Wait(ctx)
	var connErr *ConnError
	if !errors.As(err, &connErr) {
		t.Fatalf("error = %v, want *ConnError", err)
	}
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("error = %v, want wrapped ErrProtocol", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatal(err)
	}
}

func TestWaitContextCancel(t *testing.T) {
	conn, server := newFakeServer(t)

	replyNow := make(chan struct{})
	serverErr := runFakeServer(server, 1, func() error {
		<-replyNow
		_, err := server.Write([]byte("$2\r\nok\r\n"))
		return err
	})

	pending := conn.Send("GET", "slow")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pending.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait error = %v, want context.Canceled", err)
	}

	// The reply still resolves the pending without disturbing the
	// connection once it arrives.
	close(replyNow)
	reply, err := pending.Wait(context.Background())
	if err != nil || reply.Str() != "ok" {
		t.Errorf("re-Wait = %q, %v", reply.Str(), err)
	}
	if err := <-serverErr; err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentSenders(t *testing.T) {
	_, conn := newStoreConn(t)
	ctx := context.Background()

	const goroutines = 8
	const commands = 50
	errCh := make(chan error, goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			for i := 0; i < commands; i++ {
				key := fmt.Sprintf("g%d:k%d", g, i)
				if _, err := conn.Do(ctx, "SET", key, key); err != nil {
					errCh <- err
					return
				}
				reply, err := conn.Do(ctx, "GET", key)
				if err != nil {
					errCh <- err
					return
				}
				if reply.Str() != key {
					errCh <- fmt.Errorf("GET %s = %q", key, reply.Str())
					return
				}
			}
			errCh <- nil
		}(g)
	}
	for g := 0; g < goroutines; g++ {
		if err := <-errCh; err != nil {
			t.Fatal(err)
		}
	}
}
