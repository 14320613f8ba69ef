// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/hex"
	"fmt"
)

// UserID identifies the principal behind a request: a named user, a
// guest admitted through a shared link, or nobody at all. The zero
// UserID is anonymous.
type UserID struct {
	username string
	guest    bool
}

// User returns the UserID of a named, authenticated user.
func User(username string) UserID {
	return UserID{username: username}
}

// Guest returns the UserID of a guest: authenticated enough to view
// shared content, but not a named user.
func Guest() UserID {
	return UserID{guest: true}
}

// Username returns the user's name, or "" for guests and anonymous.
func (u UserID) Username() string { return u.username }

// IsGuest reports whether the principal is a guest.
func (u UserID) IsGuest() bool { return u.guest }

// IsAnonymous reports whether there is no principal at all: no
// username and not a guest.
func (u UserID) IsAnonymous() bool { return u.username == "" && !u.guest }

// TokenSize is the size of a session token in bytes.
const TokenSize = 16

// Token is a random session identifier. It is stored raw in the
// session key and crosses into transport layers (cookies) hex-encoded.
// The zero Token is not a valid session.
type Token [TokenSize]byte

// ParseToken decodes the hex form used by transport layers.
func ParseToken(text string) (Token, error) {
	var token Token
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return token, fmt.Errorf("auth: parsing session token: %w", err)
	}
	if len(decoded) != TokenSize {
		return token, fmt.Errorf("auth: session token is %d bytes, want %d", len(decoded), TokenSize)
	}
	copy(token[:], decoded)
	return token, nil
}

// String returns the lowercase hex form.
func (t Token) String() string {
	return hex.EncodeToString(t[:])
}

// IsZero reports whether the token is the zero value.
func (t Token) IsZero() bool {
	return t == Token{}
}

// Session is the outcome of login or session verification: which
// token the caller should continue with, and who it belongs to. The
// zero Session is anonymous.
type Session struct {
	Token Token
	User  UserID
}

// Valid reports whether the session identifies a signed-in principal.
func (s Session) Valid() bool {
	return !s.Token.IsZero() && !s.User.IsAnonymous()
}
