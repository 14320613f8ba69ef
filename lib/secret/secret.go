// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds passwords in memory that is locked against
// swapping, excluded from core dumps, and zeroed on close. The backing
// memory is allocated with mmap outside the Go heap, so the garbage
// collector never copies or relocates it.
package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer holds one secret. It must not be copied; call Close when the
// secret is no longer needed. Accessing a closed buffer panics.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// NewFromBytes copies source into a locked out-of-heap buffer and
// zeroes source. Fails if source is empty.
func NewFromBytes(source []byte) (*Buffer, error) {
	defer Zero(source)

	if len(source) == 0 {
		return nil, fmt.Errorf("secret: empty secret")
	}

	data, err := unix.Mmap(-1, 0, len(source), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	// Keep the pages out of core dumps. Not fatal where unsupported.
	unix.Madvise(data, unix.MADV_DONTDUMP)

	copy(data, source)
	return &Buffer{data: data}, nil
}

// Bytes returns the secret's contents. The slice aliases the locked
// memory: do not retain it past Close, and do not write to it.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: buffer used after Close")
	}
	return b.data
}

// Len returns the length of the secret.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: buffer used after Close")
	}
	return len(b.data)
}

// Close zeroes, unlocks, and unmaps the secret. Idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	Zero(b.data)
	unix.Munlock(b.data)
	err := unix.Munmap(b.data)
	b.data = nil
	if err != nil {
		return fmt.Errorf("secret: munmap: %w", err)
	}
	return nil
}

// Zero overwrites data with zero bytes.
func Zero(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// ReadFromPath reads a secret from a file, or from stdin if path is
// "-". Surrounding whitespace is trimmed; the intermediate plaintext
// copies are zeroed before returning.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte

	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("secret: reading stdin: %w", err)
			}
			return nil, fmt.Errorf("secret: stdin is empty")
		}
		data = scanner.Bytes()
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	trimmed := bytes.TrimSpace(data)
	buffer, err := NewFromBytes(trimmed)
	Zero(data)
	return buffer, err
}
