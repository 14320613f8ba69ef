// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package redis

import (
	"errors"
	"fmt"
)

var (
	// ErrFieldNotFound is returned by tuple and positional extraction
	// when the requested element is outside the array bounds, or when
	// the reply is not an array at all.
	ErrFieldNotFound = errors.New("redis: field not found in reply")

	// ErrTransactionAborted resolves every Pending that was deferred
	// inside a MULTI bracket when the transaction is discarded or the
	// EXEC reply indicates abort.
	ErrTransactionAborted = errors.New("redis: transaction aborted")

	// ErrProtocol indicates that the byte stream from the server could
	// not be parsed as RESP, or that the server sent a reply with no
	// matching outstanding command. It is always wrapped in a
	// ConnError because the connection is unusable afterwards.
	ErrProtocol = errors.New("redis: protocol error")

	// ErrPoolClosed is returned by Pool.Get after Pool.Close.
	ErrPoolClosed = errors.New("redis: pool closed")
)

// ConnError wraps the transport or protocol failure that killed a
// connection. Every Pending outstanding at the time of failure, and
// every Pending deferred in an open transaction, resolves with the
// same ConnError. Callers can unwrap to the underlying cause:
//
//	var connErr *redis.ConnError
//	if errors.As(err, &connErr) { ... }
type ConnError struct {
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("redis: connection failed: %v", e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// CommandError is an error reply from the server, such as a rejected
// EVAL script or a wrong-type operation. Unlike a ConnError it affects
// only the command that provoked it; the connection remains usable.
type CommandError struct {
	Message string
}

func (e *CommandError) Error() string {
	return "redis: " + e.Message
}
