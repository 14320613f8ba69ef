// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth manages user accounts and sessions.
//
// Passwords are never stored: each user record holds a PBKDF2-derived
// key together with the salt, iteration count, and digest used to
// derive it. Sessions are random tokens mapped to usernames in the
// key-value store, expiring by TTL.
//
// Session tokens rotate. When a session is verified with less than
// half its lifetime remaining, the authenticator issues a replacement
// token and puts the old one on a short grace timer. The renewal is a
// single atomic script, so concurrent requests bearing the same token
// cannot both rotate it: one wins the new token, the others keep the
// old token through the grace period.
package auth
