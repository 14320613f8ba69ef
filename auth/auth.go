// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nestal/hearty-rabbit/lib/secret"
	"github.com/nestal/hearty-rabbit/redis"
)

// ErrLoginIncorrect is returned by Login when the username or password
// does not match. The two cases are deliberately indistinguishable.
var ErrLoginIncorrect = errors.New("auth: login incorrect")

const (
	saltSize = 32

	// Session value status bytes. An unrenewed session can be renewed
	// exactly once; a renewed one lives out its grace period and dies.
	statusUnrenewed = '_'
	statusRenewed   = '#'
)

// verifyScript returns the session value together with its remaining
// TTL in one round trip, so the renewal decision uses a consistent
// snapshot. A missing session returns an empty array.
const verifyScript = `
local v = redis.call('GET', KEYS[1])
if not v then
    return {}
end
return {v, redis.call('TTL', KEYS[1])}
`

// renewScript atomically marks the old session as renewed and creates
// the replacement. Only an unrenewed session can be renewed: when two
// requests race, exactly one gets the new token and the loser keeps
// using the old one for its grace period.
const renewScript = `
local v = redis.call('GET', KEYS[1])
if v and string.sub(v, 1, 1) == '_' then
    redis.call('SET', KEYS[1], '#' .. ARGV[1], 'EX', ARGV[2])
    redis.call('SET', KEYS[2], '_' .. ARGV[1], 'EX', ARGV[3])
    return 1
end
return 0
`

// Config carries the authenticator's deployment parameters. The zero
// value is not usable; SessionLength and SessionGrace must be set.
type Config struct {
	// SessionLength is the TTL of a freshly issued session. Renewal is
	// attempted once less than half of it remains.
	SessionLength time.Duration

	// SessionGrace is how long a renewed-away token stays valid, long
	// enough for requests already in flight with the old token.
	SessionGrace time.Duration

	// PasswordHash and PasswordRounds are the key-derivation settings
	// recorded for newly created users.
	PasswordHash   string
	PasswordRounds int

	// Random is the source of session tokens. Must be cryptographically
	// secure; defaults to crypto/rand.Reader.
	Random io.Reader

	// Logger receives renewal failures and other non-fatal events.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// Authenticator manages user records and sessions in the key-value
// store. Safe for concurrent use.
type Authenticator struct {
	sessionLength time.Duration
	sessionGrace  time.Duration
	hashAlgorithm string
	rounds        int
	random        io.Reader
	logger        *slog.Logger
}

// New returns an Authenticator with the given configuration.
func New(config Config) (*Authenticator, error) {
	if config.SessionLength <= 0 || config.SessionGrace <= 0 {
		return nil, fmt.Errorf("auth: session length and grace must be positive")
	}
	if config.PasswordHash == "" {
		config.PasswordHash = "sha512"
	}
	if config.PasswordRounds == 0 {
		config.PasswordRounds = 5000
	}
	if config.Random == nil {
		config.Random = rand.Reader
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Authenticator{
		sessionLength: config.SessionLength,
		sessionGrace:  config.SessionGrace,
		hashAlgorithm: config.PasswordHash,
		rounds:        config.PasswordRounds,
		random:        config.Random,
		logger:        config.Logger,
	}, nil
}

// userKey returns the store key of a user record.
func userKey(username string) string {
	return "user:" + username
}

// sessionKey returns the store key of a session. The token is embedded
// raw; keys are binary-safe.
func sessionKey(token Token) []byte {
	return append([]byte("session:"), token[:]...)
}

// AddUser creates or replaces a user record. The username is
// normalized to lowercase; the password is stretched with the
// configured derivation settings, which are stored alongside the key
// so they can evolve without invalidating existing accounts.
func (a *Authenticator) AddUser(ctx context.Context, db *redis.Conn, username string, password *secret.Buffer) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return fmt.Errorf("auth: empty username")
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(a.random, salt); err != nil {
		return fmt.Errorf("auth: generating salt: %w", err)
	}
	key, err := DeriveKey(password.Bytes(), salt, a.rounds, a.hashAlgorithm)
	if err != nil {
		return err
	}
	defer secret.Zero(key)

	_, err = db.Do(ctx, "HSET", userKey(username),
		"salt", salt,
		"key", key,
		"iteration", a.rounds,
		"hash_algorithm", a.hashAlgorithm,
	)
	if err != nil {
		return fmt.Errorf("auth: storing user %q: %w", username, err)
	}
	return nil
}

// Login verifies a password and, on success, opens a new session.
// A wrong password and an unknown user both yield ErrLoginIncorrect.
func (a *Authenticator) Login(ctx context.Context, db *redis.Conn, username string, password *secret.Buffer) (Session, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	reply, err := db.Do(ctx, "HMGET", userKey(username),
		"salt", "key", "iteration", "hash_algorithm")
	if err != nil {
		return Session{}, fmt.Errorf("auth: loading user %q: %w", username, err)
	}
	fields, err := reply.Tuple(4)
	if err != nil {
		return Session{}, fmt.Errorf("auth: loading user %q: %w", username, err)
	}
	salt, storedKey := fields[0], fields[1]
	if salt.IsNil() || storedKey.IsNil() {
		return Session{}, ErrLoginIncorrect
	}
	iterations := fields[2].ParseInt()
	if iterations <= 0 {
		return Session{}, ErrLoginIncorrect
	}
	// Records written before the field existed default to sha512.
	algorithm := "sha512"
	if !fields[3].IsNil() {
		algorithm = fields[3].Str()
	}

	key, err := DeriveKey(password.Bytes(), salt.Bytes(), int(iterations), algorithm)
	if err != nil {
		return Session{}, ErrLoginIncorrect
	}
	defer secret.Zero(key)

	if subtle.ConstantTimeCompare(key, storedKey.Bytes()) != 1 {
		return Session{}, ErrLoginIncorrect
	}
	return a.openSession(ctx, db, username)
}

func (a *Authenticator) openSession(ctx context.Context, db *redis.Conn, username string) (Session, error) {
	var token Token
	if _, err := io.ReadFull(a.random, token[:]); err != nil {
		return Session{}, fmt.Errorf("auth: generating session token: %w", err)
	}

	value := append([]byte{statusUnrenewed}, username...)
	_, err := db.Do(ctx, "SET", sessionKey(token), value,
		"EX", int64(a.sessionLength/time.Second))
	if err != nil {
		return Session{}, fmt.Errorf("auth: storing session: %w", err)
	}
	return Session{Token: token, User: User(username)}, nil
}

// VerifySession resolves a token to its user. An expired, revoked, or
// malformed session yields the anonymous Session without error.
//
// When less than half of the session length remains, verification
// renews the session: the returned Session carries a fresh token the
// caller should switch to, and the old token stays valid for the grace
// period. If a concurrent request renewed first, the old token is
// returned unchanged; continuing to use it within the grace period is
// fine.
func (a *Authenticator) VerifySession(ctx context.Context, db *redis.Conn, token Token) (Session, error) {
	key := sessionKey(token)
	reply, err := db.Do(ctx, "EVAL", verifyScript, 1, key)
	if err != nil {
		return Session{}, fmt.Errorf("auth: verifying session: %w", err)
	}
	if reply.Len() == 0 {
		return Session{}, nil
	}
	fields, err := reply.Tuple(2)
	if err != nil {
		return Session{}, fmt.Errorf("auth: verifying session: %w", err)
	}
	value := fields[0].Bytes()
	ttl := fields[1].Int()

	if len(value) < 2 {
		return Session{}, nil
	}
	status, username := value[0], string(value[1:])
	if status != statusUnrenewed && status != statusRenewed {
		return Session{}, nil
	}

	session := Session{Token: token, User: User(username)}
	if status == statusUnrenewed && ttl >= 0 &&
		time.Duration(ttl)*time.Second < a.sessionLength/2 {
		return a.renewSession(ctx, db, session)
	}
	return session, nil
}

// renewSession attempts the one-time renewal. Losing the race or
// hitting a store error keeps the old session, which is still valid.
func (a *Authenticator) renewSession(ctx context.Context, db *redis.Conn, old Session) (Session, error) {
	var token Token
	if _, err := io.ReadFull(a.random, token[:]); err != nil {
		a.logger.Warn("session renewal skipped", "error", err)
		return old, nil
	}

	reply, err := db.Do(ctx, "EVAL", renewScript, 2,
		sessionKey(old.Token), sessionKey(token),
		old.User.Username(),
		int64(a.sessionGrace/time.Second),
		int64(a.sessionLength/time.Second),
	)
	if err != nil {
		a.logger.Warn("session renewal failed", "user", old.User.Username(), "error", err)
		return old, nil
	}
	if reply.Int() == 1 {
		return Session{Token: token, User: old.User}, nil
	}
	// Another request renewed first; the old token rides out its grace
	// period.
	return old, nil
}

// Logout revokes a session immediately.
func (a *Authenticator) Logout(ctx context.Context, db *redis.Conn, token Token) error {
	if _, err := db.Do(ctx, "DEL", sessionKey(token)); err != nil {
		return fmt.Errorf("auth: revoking session: %w", err)
	}
	return nil
}
