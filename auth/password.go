// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the size of a derived password key in bytes.
const KeySize = 64

// DeriveKey stretches a password into a fixed-size key with PBKDF2.
// The algorithm name and iteration count are stored alongside each
// user record, so keys derived at account creation stay verifiable
// after the defaults change.
func DeriveKey(password, salt []byte, iterations int, algorithm string) ([]byte, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("auth: invalid iteration count %d", iterations)
	}

	var digest func() hash.Hash
	switch algorithm {
	case "sha256":
		digest = sha256.New
	case "sha512":
		digest = sha512.New
	default:
		return nil, fmt.Errorf("auth: unknown hash algorithm %q", algorithm)
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, digest), nil
}
