// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package redis

import "strconv"

// Kind identifies which member of the Reply union is populated.
type Kind int

const (
	// KindNil is a nil bulk string or nil array (e.g. GET on a
	// missing key, or an aborted EXEC). The zero Reply is nil.
	KindNil Kind = iota

	// KindString is a bulk string. Binary safe.
	KindString

	// KindStatus is a simple status line such as "OK" or "QUEUED".
	KindStatus

	// KindError is an error line from the server. Conn surfaces these
	// as *CommandError; callers only see KindError when extracting
	// elements of an array reply.
	KindError

	// KindInteger is a signed 64-bit integer reply.
	KindInteger

	// KindArray is a (possibly nested) array of replies.
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindString:
		return "string"
	case KindStatus:
		return "status"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindArray:
		return "array"
	}
	return "unknown"
}

// Reply is one decoded RESP value: a tagged union over string, status,
// error, integer, array, and nil. Accessors for the wrong kind return
// zero values rather than panicking, mirroring how the store's replies
// are probed ("is this a status? is it nil?") in practice.
type Reply struct {
	kind    Kind
	payload []byte
	integer int64
	array   []Reply
}

// Kind reports which member of the union is populated.
func (r Reply) Kind() Kind { return r.kind }

// IsNil reports whether the reply is the nil value.
func (r Reply) IsNil() bool { return r.kind == KindNil }

// Bytes returns the bulk string payload, or nil for any other kind.
// The returned slice is owned by the Reply; callers must copy before
// mutating.
func (r Reply) Bytes() []byte {
	if r.kind != KindString {
		return nil
	}
	return r.payload
}

// Str returns the bulk string payload as a string, or "" for any
// other kind.
func (r Reply) Str() string {
	if r.kind != KindString {
		return ""
	}
	return string(r.payload)
}

// Status returns the status line, or "" for any other kind.
func (r Reply) Status() string {
	if r.kind != KindStatus {
		return ""
	}
	return string(r.payload)
}

// ErrorText returns the server error message, or "" for any other
// kind.
func (r Reply) ErrorText() string {
	if r.kind != KindError {
		return ""
	}
	return string(r.payload)
}

// Text returns the payload of a string, status, or error reply, or ""
// for integers, arrays, and nil.
func (r Reply) Text() string {
	switch r.kind {
	case KindString, KindStatus, KindError:
		return string(r.payload)
	}
	return ""
}

// Int returns the integer reply value, or 0 for any other kind.
func (r Reply) Int() int64 {
	if r.kind != KindInteger {
		return 0
	}
	return r.integer
}

// ParseInt parses a bulk string payload as a base-10 integer. Used for
// values the store keeps as strings, like hash fields. Returns 0 for
// empty or unparseable payloads.
func (r Reply) ParseInt() int64 {
	text := r.Text()
	if text == "" {
		return 0
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Len returns the number of elements of an array reply, or 0 for any
// other kind.
func (r Reply) Len() int {
	if r.kind != KindArray {
		return 0
	}
	return len(r.array)
}

// At returns the i-th element of an array reply, or the nil Reply
// when out of range. For error reporting, use Tuple.
func (r Reply) At(i int) Reply {
	if r.kind != KindArray || i < 0 || i >= len(r.array) {
		return Reply{}
	}
	return r.array[i]
}

// Tuple extracts the first n elements of an array reply. If the reply
// is not an array or has fewer than n elements, it returns
// ErrFieldNotFound with zero Replies filling the missing positions, so
// callers can destructure unconditionally and check the error once:
//
//	fields, err := reply.Tuple(4)
//	salt, key := fields[0], fields[1]
func (r Reply) Tuple(n int) ([]Reply, error) {
	out := make([]Reply, n)
	if r.kind != KindArray || len(r.array) < n {
		return out, ErrFieldNotFound
	}
	copy(out, r.array[:n])
	return out, nil
}

// Pair is one key/value entry of a flattened hash reply.
type Pair struct {
	Key   Reply
	Value Reply
}

// Pairs interprets an array reply as alternating key/value entries,
// as returned by HGETALL and friends. A trailing unpaired element is
// dropped.
func (r Reply) Pairs() []Pair {
	if r.kind != KindArray {
		return nil
	}
	pairs := make([]Pair, 0, len(r.array)/2)
	for i := 0; i+1 < len(r.array); i += 2 {
		pairs = append(pairs, Pair{Key: r.array[i], Value: r.array[i+1]})
	}
	return pairs
}

// Array returns the elements of an array reply. The returned slice is
// owned by the Reply.
func (r Reply) Array() []Reply {
	if r.kind != KindArray {
		return nil
	}
	return r.array
}

// Constructors used by the decoder and by tests.

func stringReply(payload []byte) Reply { return Reply{kind: KindString, payload: payload} }
func statusReply(status string) Reply  { return Reply{kind: KindStatus, payload: []byte(status)} }
func errorReply(message string) Reply  { return Reply{kind: KindError, payload: []byte(message)} }
func integerReply(n int64) Reply       { return Reply{kind: KindInteger, integer: n} }
func arrayReply(elems []Reply) Reply   { return Reply{kind: KindArray, array: elems} }
