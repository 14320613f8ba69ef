// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

// Package redis is a small pipelined client for the Redis wire
// protocol (RESP), covering exactly what the domain layers above it
// need: binary-safe command encoding, incremental reply decoding,
// strict FIFO matching of replies to submitted commands, MULTI/EXEC
// transaction unwinding, and server-side script execution via EVAL.
//
// It is deliberately not a general-purpose Redis client. There is no
// automatic reconnection, no per-command timeout, and no cluster or
// sharding support. A failed connection fails every outstanding
// command; the caller requests a fresh connection from the Pool.
//
// # Pipelining
//
// Conn.Send submits a command without waiting for its reply and
// returns a Pending handle. Multiple commands may be in flight at
// once, from one goroutine or many; replies are matched to handles in
// submission order. Conn.Do is the blocking convenience form.
//
//	pending := conn.Send("SET", "key", "value")
//	reply, err := conn.Do(ctx, "GET", "key")
//	_, err = pending.Wait(ctx)
//
// # Transactions
//
// Commands submitted between MULTI and EXEC receive a QUEUED status
// from the server. The connection recognizes this and defers their
// Pending handles until the EXEC reply arrives, then resolves each
// handle with its positional element of the EXEC array. If the
// transaction aborts (nil EXEC reply after a failed WATCH, or an
// explicit DISCARD), every deferred handle resolves with
// ErrTransactionAborted.
package redis
