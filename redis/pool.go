// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package redis

import (
	"context"
	"log/slog"
	"sync"
)

// Pool hands out and reclaims connections to one store endpoint. It
// is a mutex-guarded free list: Get pops an idle connection or dials
// a new one, Put pushes a healthy connection back. The lock is held
// only around list manipulation, never across I/O.
type Pool struct {
	address string
	logger  *slog.Logger

	mu     sync.Mutex
	idle   []*Conn
	closed bool
}

// PoolConfig holds configuration for creating a Pool.
type PoolConfig struct {
	// Address is the store endpoint in host:port form.
	Address string

	// Logger is used for structured logging on this pool's
	// connections. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// NewPool creates a pool for the given endpoint. No connection is
// opened until the first Get.
func NewPool(config PoolConfig) *Pool {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		address: config.Address,
		logger:  logger,
	}
}

// Get returns an idle connection, or dials a new one if none is
// available. The caller must return it with Put when done.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	return Dial(ctx, p.address, ConnConfig{Logger: p.logger})
}

// Put returns a connection to the pool. Failed connections are closed
// and dropped; there is no point reusing a dead socket.
func (p *Pool) Put(conn *Conn) {
	if conn == nil {
		return
	}
	if conn.Err() != nil {
		conn.Close()
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// Close closes every idle connection and marks the pool closed.
// Connections currently handed out are closed when Put back.
func (p *Pool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	for _, conn := range idle {
		conn.Close()
	}
}
