// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package ownership

import (
	"fmt"

	"github.com/nestal/hearty-rabbit/lib/blob"
)

// Store key layout. Blob IDs are embedded as raw bytes; the store's
// keys are binary-safe and the raw form halves the key size.
//
//	blob-refs:<user>:<blob>  set   collections of <user> containing <blob>
//	blob-owners:<blob>       set   users owning <blob>
//	blob-inodes:<user>       hash  <blob> -> inode record
//	coll:<user>:<coll>       hash  <blob> -> filename
//	colls:<user>             hash  <coll> -> collection meta JSON
//	public_blobs             list  packed (user, blob) entries, newest last

const (
	collsPrefix    = "colls:"
	publicBlobsKey = "public_blobs"
)

func refsKey(user string, id blob.ID) []byte {
	key := make([]byte, 0, len("blob-refs:")+len(user)+1+blob.IDSize)
	key = append(key, "blob-refs:"...)
	key = append(key, user...)
	key = append(key, ':')
	return append(key, id[:]...)
}

func ownersKey(id blob.ID) []byte {
	key := make([]byte, 0, len("blob-owners:")+blob.IDSize)
	key = append(key, "blob-owners:"...)
	return append(key, id[:]...)
}

func inodesKey(user string) string {
	return "blob-inodes:" + user
}

func collKey(user, coll string) string {
	return fmt.Sprintf("coll:%s:%s", user, coll)
}

func collsKey(user string) string {
	return collsPrefix + user
}
