// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package redis

import (
	"errors"
	"testing"
)

func TestReplyTuple(t *testing.T) {
	reply := arrayReply([]Reply{stringReply([]byte("salt")), stringReply([]byte("key")), integerReply(5000)})

	fields, err := reply.Tuple(3)
	if err != nil {
		t.Fatalf("Tuple(3) error: %v", err)
	}
	if fields[0].Str() != "salt" || fields[1].Str() != "key" || fields[2].Int() != 5000 {
		t.Errorf("Tuple(3) = %q, %q, %d", fields[0].Str(), fields[1].Str(), fields[2].Int())
	}
}

func TestReplyTuple_OutOfRange(t *testing.T) {
	reply := arrayReply([]Reply{stringReply([]byte("only"))})

	// Short arrays report field-not-found but still yield a full-size
	// slice of zero replies, so destructuring never panics.
	fields, err := reply.Tuple(4)
	if !errors.Is(err, ErrFieldNotFound) {
		t.Fatalf("Tuple(4) error = %v, want ErrFieldNotFound", err)
	}
	if len(fields) != 4 {
		t.Fatalf("Tuple(4) returned %d fields", len(fields))
	}
	for i, f := range fields {
		if !f.IsNil() {
			t.Errorf("field %d is %v, want nil", i, f.Kind())
		}
	}
}

func TestReplyTuple_NotArray(t *testing.T) {
	if _, err := stringReply([]byte("x")).Tuple(1); !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("Tuple on non-array error = %v, want ErrFieldNotFound", err)
	}
}

func TestReplyPairs(t *testing.T) {
	reply := arrayReply([]Reply{
		stringReply([]byte("a")), integerReply(1),
		stringReply([]byte("b")), integerReply(2),
		stringReply([]byte("trailing")),
	})

	pairs := reply.Pairs()
	if len(pairs) != 2 {
		t.Fatalf("Pairs() returned %d entries, want 2", len(pairs))
	}
	if pairs[0].Key.Str() != "a" || pairs[0].Value.Int() != 1 {
		t.Errorf("pair 0 = %q:%d", pairs[0].Key.Str(), pairs[0].Value.Int())
	}
	if pairs[1].Key.Str() != "b" || pairs[1].Value.Int() != 2 {
		t.Errorf("pair 1 = %q:%d", pairs[1].Key.Str(), pairs[1].Value.Int())
	}
}

func TestReplyWrongKindAccessors(t *testing.T) {
	r := integerReply(7)
	if r.Str() != "" || r.Status() != "" || r.ErrorText() != "" || r.Bytes() != nil {
		t.Error("string accessors on an integer reply returned non-zero values")
	}
	if r.Len() != 0 || !r.At(0).IsNil() {
		t.Error("array accessors on an integer reply returned non-zero values")
	}
	if stringReply([]byte("12")).Int() != 0 {
		t.Error("Int() on a string reply returned non-zero")
	}
}

func TestReplyParseInt(t *testing.T) {
	if got := stringReply([]byte("5000")).ParseInt(); got != 5000 {
		t.Errorf("ParseInt() = %d, want 5000", got)
	}
	if got := stringReply([]byte("nope")).ParseInt(); got != 0 {
		t.Errorf("ParseInt() on garbage = %d, want 0", got)
	}
	if got := (Reply{}).ParseInt(); got != 0 {
		t.Errorf("ParseInt() on nil = %d, want 0", got)
	}
}
