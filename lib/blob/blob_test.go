// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	first := Hash([]byte("the quick brown fox"))
	second := Hash([]byte("the quick brown fox"))
	if first != second {
		t.Error("same content produced different IDs")
	}
	if first == Hash([]byte("something else")) {
		t.Error("different content produced the same ID")
	}
	if first.IsZero() {
		t.Error("hash of non-empty content is zero")
	}
}

func TestHashReaderMatchesHash(t *testing.T) {
	content := []byte("streamed upload content")
	fromReader, err := HashReader(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("HashReader() error: %v", err)
	}
	if fromReader != Hash(content) {
		t.Error("HashReader disagrees with Hash for identical content")
	}
}

func TestHexRoundTrip(t *testing.T) {
	id := Hash([]byte("round trip"))

	parsed, err := ParseHex(id.String())
	if err != nil {
		t.Fatalf("ParseHex() error: %v", err)
	}
	if parsed != id {
		t.Error("hex round trip lost the ID")
	}
	if len(id.String()) != 64 {
		t.Errorf("String() length = %d, want 64", len(id.String()))
	}
	if id.String() != strings.ToLower(id.String()) {
		t.Error("String() is not lowercase")
	}
}

func TestParseHexRejectsBadInput(t *testing.T) {
	for _, input := range []string{"", "zz", strings.Repeat("ab", 16), strings.Repeat("g", 64)} {
		if _, err := ParseHex(input); err == nil {
			t.Errorf("ParseHex(%q) accepted invalid input", input)
		}
	}
}

func TestFromRaw(t *testing.T) {
	id := Hash([]byte("raw form"))
	back, err := FromRaw(id[:])
	if err != nil {
		t.Fatalf("FromRaw() error: %v", err)
	}
	if back != id {
		t.Error("FromRaw round trip lost the ID")
	}
	if _, err := FromRaw([]byte("short")); err == nil {
		t.Error("FromRaw accepted a short slice")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type record struct {
		Cover ID `json:"cover"`
	}
	original := record{Cover: Hash([]byte("cover image"))}

	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var decoded record
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if decoded.Cover != original.Cover {
		t.Error("JSON round trip lost the ID")
	}
}
