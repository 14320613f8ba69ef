// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

// Package blob defines ObjectID, the content-hash identifier that is
// the universal key for a blob throughout the domain layer. An ID is
// computed once at upload time from the blob's bytes; two uploads of
// the same content always produce the same ID.
package blob

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// IDSize is the size of an ObjectID in bytes.
const IDSize = 32

// ID is a 32-byte BLAKE3 digest of a blob's content. The zero ID is
// not a valid object identifier.
type ID [IDSize]byte

// Hash computes the ID of a blob held in memory.
func Hash(data []byte) ID {
	return blake3.Sum256(data)
}

// HashReader computes the ID of a blob streamed from r, without
// holding the content in memory. Used for uploads.
func HashReader(r io.Reader) (ID, error) {
	hasher := blake3.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return ID{}, fmt.Errorf("hashing blob content: %w", err)
	}
	var id ID
	copy(id[:], hasher.Sum(nil))
	return id, nil
}

// FromRaw converts the raw 32-byte form used in store keys and hash
// fields back into an ID.
func FromRaw(raw []byte) (ID, error) {
	var id ID
	if len(raw) != IDSize {
		return id, fmt.Errorf("object ID is %d bytes, want %d", len(raw), IDSize)
	}
	copy(id[:], raw)
	return id, nil
}

// ParseHex parses the 64-character hex form used toward external
// callers (URLs, JSON, cookies).
func ParseHex(text string) (ID, error) {
	var id ID
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return id, fmt.Errorf("parsing object ID: %w", err)
	}
	return FromRaw(decoded)
}

// IsZero reports whether the ID is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// String returns the lowercase hex representation.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler, so IDs serialize as
// hex strings in JSON metadata.
func (id ID) MarshalText() ([]byte, error) {
	text := make([]byte, hex.EncodedLen(IDSize))
	hex.Encode(text, id[:])
	return text, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(bytes.TrimSpace(text)))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
