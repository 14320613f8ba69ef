// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package ownership

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/nestal/hearty-rabbit/lib/blob"
)

// Public-list entries are (user, blob) pairs packed as a CBOR array.
// The encoding is deterministic, so the scripts can match entries by
// byte equality (LREM) without decoding them.

type publicEntry struct {
	_    struct{} `cbor:",toarray"`
	User string
	Blob []byte
}

var detEncoding = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

func packPublicEntry(user string, id blob.ID) []byte {
	packed, err := detEncoding.Marshal(publicEntry{User: user, Blob: id[:]})
	if err != nil {
		// A string and a fixed-size byte slice cannot fail to encode.
		panic(err)
	}
	return packed
}

func unpackPublicEntry(data []byte) (string, blob.ID, error) {
	var entry publicEntry
	if err := cbor.Unmarshal(data, &entry); err != nil {
		return "", blob.ID{}, fmt.Errorf("ownership: decoding public-list entry: %w", err)
	}
	id, err := blob.FromRaw(entry.Blob)
	if err != nil {
		return "", blob.ID{}, fmt.Errorf("ownership: decoding public-list entry: %w", err)
	}
	return entry.User, id, nil
}
