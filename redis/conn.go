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
	"sync"
)

// Pending is the completion handle for one submitted command. Its
// reply is delivered by the connection's read loop once decoded from
// the inbound stream, never synchronously from Send.
type Pending struct {
	done chan outcome
}

type outcome struct {
	reply Reply
	err   error
}

func newPending() *Pending {
	// Buffered so the read loop never blocks on delivery, even when
	// the waiter has abandoned the handle after a context cancel.
	return &Pending{done: make(chan outcome, 1)}
}

// Wait blocks until the command's reply has been decoded or ctx is
// done. A server error reply is returned as *CommandError; transport
// failure as *ConnError. Abandoning a Pending after ctx cancellation
// does not disturb the connection's reply matching.
func (p *Pending) Wait(ctx context.Context) (Reply, error) {
	select {
	case result := <-p.done:
		if result.err != nil {
			return Reply{}, result.err
		}
		if result.reply.Kind() == KindError {
			return Reply{}, &CommandError{Message: result.reply.ErrorText()}
		}
		return result.reply, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (p *Pending) resolve(reply Reply, err error) {
	p.done <- outcome{reply: reply, err: err}
}

// Conn is one duplex connection to the store. Many commands may be in
// flight at once; replies resolve strictly in submission order. A Conn
// is safe for concurrent use, though a MULTI/EXEC bracket assumes the
// caller has the connection to itself for the duration.
//
// On any transport or parse error the Conn fails every outstanding and
// transaction-deferred Pending with a *ConnError and closes the
// socket. It never reconnects; get a fresh Conn from the Pool.
type Conn struct {
	conn    net.Conn
	decoder *Decoder
	logger  *slog.Logger

	// sendMu serializes enqueue+write so that the FIFO queue order is
	// exactly the wire order. The completion must be queued before the
	// command bytes reach the socket: the reply cannot arrive before
	// the command is sent, but it can arrive before a post-write
	// bookkeeping step would run.
	sendMu sync.Mutex

	mu       sync.Mutex
	queue    []*Pending // outstanding, in submission order
	deferred []*Pending // QUEUED inside an open MULTI bracket
	failure  error      // terminal *ConnError, nil while healthy
}

// ConnConfig holds optional settings for a Conn.
type ConnConfig struct {
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// NewConn wraps an established network connection and starts its read
// loop. The caller hands over ownership of nc.
func NewConn(nc net.Conn, config ConnConfig) *Conn {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		conn:    nc,
		decoder: NewDecoder(nc),
		logger:  logger,
	}
	go c.readLoop()
	return c
}

// Dial opens a TCP connection to the store at address (host:port).
func Dial(ctx context.Context, address string, config ConnConfig) (*Conn, error) {
	nc, err := (&net.Dialer{}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewConn(nc, config), nil
}

// Send submits one command and returns its completion handle. The
// first argument is the command name; the rest are its arguments
// (string, []byte, or integer). Send does not wait for the reply.
//
// If the connection has already failed, or an argument cannot be
// encoded, the returned Pending is resolved immediately with the
// error and nothing is written.
func (c *Conn) Send(args ...any) *Pending {
	p := newPending()

	encoded, err := encodeArgs(args)
	if err != nil {
		p.resolve(Reply{}, err)
		return p
	}
	payload := appendCommand(nil, encoded)

	c.sendMu.Lock()

	c.mu.Lock()
	if c.failure != nil {
		failure := c.failure
		c.mu.Unlock()
		c.sendMu.Unlock()
		p.resolve(Reply{}, failure)
		return p
	}
	c.queue = append(c.queue, p)
	c.mu.Unlock()

	_, err = c.conn.Write(payload)
	c.sendMu.Unlock()

	if err != nil {
		c.logger.Warn("redis write error, disconnecting", "error", err)
		c.fail(err)
	}
	return p
}

// Do submits one command and waits for its reply.
func (c *Conn) Do(ctx context.Context, args ...any) (Reply, error) {
	return c.Send(args...).Wait(ctx)
}

// Err returns the terminal connection error, or nil while the
// connection is healthy. The Pool uses this to decide whether a
// returned connection can be reused.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Close tears down the connection, failing any outstanding commands.
// Safe to call more than once.
func (c *Conn) Close() error {
	c.fail(errClosed)
	return nil
}

var errClosed = errors.New("connection closed")

// readLoop decodes replies and matches them to the completion queue
// until the stream errors out. It is the only reader of the socket.
func (c *Conn) readLoop() {
	for {
		reply, err := c.decoder.Decode()
		if err != nil {
			c.fail(err)
			return
		}
		if err := c.dispatch(reply); err != nil {
			c.logger.Warn("redis reply dispatch failed, disconnecting", "error", err)
			c.fail(err)
			return
		}
	}
}

// dispatch hands one decoded reply to the oldest outstanding Pending,
// handling the transaction side queue. A QUEUED status means the
// command is held inside a MULTI bracket: its completion moves to the
// deferred queue until the EXEC (or DISCARD) reply arrives.
func (c *Conn) dispatch(reply Reply) error {
	c.mu.Lock()

	if len(c.queue) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: reply with no outstanding command (kind %v)", ErrProtocol, reply.Kind())
	}
	p := c.queue[0]
	c.queue = c.queue[1:]

	if reply.Status() == "QUEUED" {
		c.deferred = append(c.deferred, p)
		c.mu.Unlock()
		return nil
	}

	if len(c.deferred) > 0 {
		deferred := c.deferred
		c.deferred = nil
		c.mu.Unlock()
		return finishTransaction(reply, p, deferred)
	}

	c.mu.Unlock()
	p.resolve(reply, nil)
	return nil
}

// finishTransaction distributes an EXEC array reply positionally to
// the completions deferred since MULTI, in the order they were queued.
// A nil reply (WATCH conflict) or an OK status (DISCARD) aborts them
// all instead. The EXEC/DISCARD command's own completion receives the
// raw reply.
func finishTransaction(reply Reply, execPending *Pending, deferred []*Pending) error {
	switch {
	case reply.IsNil() || reply.Status() == "OK":
		for _, p := range deferred {
			p.resolve(Reply{}, ErrTransactionAborted)
		}

	case reply.Kind() == KindArray && reply.Len() == len(deferred):
		for i, p := range deferred {
			p.resolve(reply.At(i), nil)
		}

	default:
		for _, p := range deferred {
			p.resolve(Reply{}, ErrTransactionAborted)
		}
		execPending.resolve(reply, nil)
		return fmt.Errorf("%w: EXEC reply has %d elements for %d queued commands",
			ErrProtocol, reply.Len(), len(deferred))
	}

	execPending.resolve(reply, nil)
	return nil
}

// fail records the terminal error, resolves every outstanding and
// deferred completion with it, and closes the socket. The first
// failure wins; later calls are no-ops.
func (c *Conn) fail(cause error) {
	c.mu.Lock()
	if c.failure != nil {
		c.mu.Unlock()
		return
	}
	if errors.Is(cause, io.EOF) {
		cause = io.ErrUnexpectedEOF
	}
	c.failure = &ConnError{Err: cause}

	queue, deferred := c.queue, c.deferred
	c.queue, c.deferred = nil, nil
	failure := c.failure
	c.mu.Unlock()

	for _, p := range deferred {
		p.resolve(Reply{}, failure)
	}
	for _, p := range queue {
		p.resolve(Reply{}, failure)
	}
	c.conn.Close()
}
