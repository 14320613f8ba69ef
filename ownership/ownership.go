// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package ownership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nestal/hearty-rabbit/auth"
	"github.com/nestal/hearty-rabbit/lib/blob"
	"github.com/nestal/hearty-rabbit/redis"
)

// ErrObjectNotExist is returned when an operation names a blob that is
// not where the caller says it is: not in the given collection, or not
// owned by the user at all.
var ErrObjectNotExist = errors.New("ownership: object does not exist")

// Composed scripts: helpers first, then the body, in one chunk.
var (
	fullLinkScript     = luaToHex + linkScript
	fullUnlinkScript   = luaToHex + luaCollCleanup + unlinkScript
	fullMoveScript     = luaToHex + luaCollCleanup + moveScript
	fullSetCoverScript = luaToHex + setCoverScript
)

// Ownership is the view of one user's blobs and collections. Methods
// take the connection explicitly, so one pipelined connection can
// serve views of many users.
type Ownership struct {
	user string
}

// New returns the ownership view of a user.
func New(user string) *Ownership {
	return &Ownership{user: user}
}

// User returns the name of the user this view belongs to.
func (o *Ownership) User() string { return o.user }

// Entry is one blob in a collection listing.
type Entry struct {
	Blob     blob.ID
	Filename string
	Inode    Inode
}

// Collection is a full collection listing.
type Collection struct {
	Owner   string
	Name    string
	Cover   blob.ID
	Entries []Entry
}

// CollectionInfo is one row of a collection directory listing.
type CollectionInfo struct {
	Name  string
	Cover blob.ID
}

// BlobRef names one place a blob appears: a collection of a user, with
// that user's inode record for it.
type BlobRef struct {
	User       string
	Collection string
	Inode      Inode
}

// PublicBlob is one entry of the front-page public list, with the
// owner's inode record for it.
type PublicBlob struct {
	User  string
	Blob  blob.ID
	Inode Inode
}

// collMeta is the JSON document stored per collection in the
// collection directory hash.
type collMeta struct {
	Cover blob.ID `json:"cover"`
}

// runScript evaluates a script whose reply is 1 for success and 0 for
// a missing object.
func runScript(ctx context.Context, db *redis.Conn, script string, numKeys int, args ...any) error {
	command := append([]any{"EVAL", script, numKeys}, args...)
	reply, err := db.Do(ctx, command...)
	if err != nil {
		return err
	}
	if reply.Int() == 0 {
		return ErrObjectNotExist
	}
	return nil
}

// Link adds a blob to a collection, creating the collection and the
// ownership indexes as needed. Linking an already-linked blob updates
// its filename in the collection but leaves its inode untouched.
func (o *Ownership) Link(ctx context.Context, db *redis.Conn, coll string, id blob.ID, inode Inode) error {
	filename := inode.Filename
	if filename == "" {
		filename = id.String()
	}
	record, err := inode.MarshalDB()
	if err != nil {
		return err
	}
	err = runScript(ctx, db, fullLinkScript, 5,
		collKey(o.user, coll), collsKey(o.user),
		refsKey(o.user, id), ownersKey(id), inodesKey(o.user),
		id[:], coll, filename, record, o.user)
	if err != nil {
		return fmt.Errorf("ownership: linking %s into %s/%s: %w", id, o.user, coll, err)
	}
	return nil
}

// Unlink removes a blob from a collection. Removing the last reference
// cascades: the inode, the ownership marker, and any public-list entry
// go with it, and an emptied collection disappears from the directory.
func (o *Ownership) Unlink(ctx context.Context, db *redis.Conn, coll string, id blob.ID) error {
	err := runScript(ctx, db, fullUnlinkScript, 6,
		collKey(o.user, coll), collsKey(o.user),
		refsKey(o.user, id), ownersKey(id), inodesKey(o.user), publicBlobsKey,
		id[:], coll, o.user, packPublicEntry(o.user, id))
	if err != nil {
		return fmt.Errorf("ownership: unlinking %s from %s/%s: %w", id, o.user, coll, err)
	}
	return nil
}

// Move moves a blob between two collections of the same user, keeping
// its filename. The source collection gets the same cleanup as Unlink.
func (o *Ownership) Move(ctx context.Context, db *redis.Conn, src, dst string, id blob.ID) error {
	if src == dst {
		return nil
	}
	err := runScript(ctx, db, fullMoveScript, 4,
		collKey(o.user, src), collKey(o.user, dst), collsKey(o.user),
		refsKey(o.user, id),
		id[:], src, dst)
	if err != nil {
		return fmt.Errorf("ownership: moving %s from %s to %s: %w", id, src, dst, err)
	}
	return nil
}

// Rename changes a blob's filename within a collection.
func (o *Ownership) Rename(ctx context.Context, db *redis.Conn, coll string, id blob.ID, filename string) error {
	err := runScript(ctx, db, renameScript, 1,
		collKey(o.user, coll),
		id[:], filename)
	if err != nil {
		return fmt.Errorf("ownership: renaming %s in %s/%s: %w", id, o.user, coll, err)
	}
	return nil
}

// Update replaces a blob's inode metadata. The blob must be owned by
// the user through at least one collection. The permission is not
// touched: use SetPermission, which also maintains the public list.
func (o *Ownership) Update(ctx context.Context, db *redis.Conn, id blob.ID, inode Inode) error {
	record, err := inode.MarshalDB()
	if err != nil {
		return err
	}
	err = runScript(ctx, db, updateScript, 2,
		refsKey(o.user, id), inodesKey(o.user),
		id[:], record)
	if err != nil {
		return fmt.Errorf("ownership: updating inode of %s for %s: %w", id, o.user, err)
	}
	return nil
}

// SetPermission changes a blob's permission and keeps the public list
// in step: the blob is listed when it becomes public and delisted when
// it stops being public.
func (o *Ownership) SetPermission(ctx context.Context, db *redis.Conn, id blob.ID, perm Permission) error {
	err := runScript(ctx, db, setPermScript, 2,
		inodesKey(o.user), publicBlobsKey,
		id[:], []byte{byte(perm)}, packPublicEntry(o.user, id))
	if err != nil {
		return fmt.Errorf("ownership: setting permission of %s for %s: %w", id, o.user, err)
	}
	return nil
}

// SetCover sets a collection's cover to a blob the collection
// contains. It reports whether the cover was changed: false means the
// collection is missing or does not contain the blob, which is an
// ignorable outcome rather than an error.
func (o *Ownership) SetCover(ctx context.Context, db *redis.Conn, coll string, id blob.ID) (bool, error) {
	reply, err := db.Do(ctx, "EVAL", fullSetCoverScript, 2,
		collsKey(o.user), collKey(o.user, coll),
		coll, id[:])
	if err != nil {
		return false, fmt.Errorf("ownership: setting cover of %s/%s: %w", o.user, coll, err)
	}
	return reply.Int() == 1, nil
}

// GetCollection lists a collection as seen by a requester: entries the
// requester may not see are filtered out. An unknown collection yields
// ErrObjectNotExist.
func (o *Ownership) GetCollection(ctx context.Context, db *redis.Conn, requester auth.UserID, coll string) (*Collection, error) {
	reply, err := db.Do(ctx, "EVAL", getCollScript, 3,
		collsKey(o.user), collKey(o.user, coll), inodesKey(o.user),
		coll)
	if err != nil {
		return nil, fmt.Errorf("ownership: listing %s/%s: %w", o.user, coll, err)
	}
	if reply.Len() == 0 {
		return nil, fmt.Errorf("ownership: listing %s/%s: %w", o.user, coll, ErrObjectNotExist)
	}

	var meta collMeta
	if err := json.Unmarshal(reply.At(0).Bytes(), &meta); err != nil {
		return nil, fmt.Errorf("ownership: listing %s/%s: decoding meta: %w", o.user, coll, err)
	}
	result := &Collection{Owner: o.user, Name: coll, Cover: meta.Cover}

	elems := reply.Array()
	for i := 1; i+2 < len(elems); i += 3 {
		id, err := blob.FromRaw(elems[i].Bytes())
		if err != nil {
			return nil, fmt.Errorf("ownership: listing %s/%s: %w", o.user, coll, err)
		}
		entry := Entry{Blob: id, Filename: elems[i+1].Str()}
		if record := elems[i+2].Bytes(); len(record) > 0 {
			entry.Inode, _ = UnmarshalInode(record)
		}
		if !entry.Inode.Perm.Allows(requester, o.user) {
			continue
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

// ScanCollections lists the user's collection directory.
func (o *Ownership) ScanCollections(ctx context.Context, db *redis.Conn) ([]CollectionInfo, error) {
	var result []CollectionInfo
	cursor := int64(0)
	for {
		reply, err := db.Do(ctx, "HSCAN", collsKey(o.user), cursor)
		if err != nil {
			return nil, fmt.Errorf("ownership: scanning collections of %s: %w", o.user, err)
		}
		fields, err := reply.Tuple(2)
		if err != nil {
			return nil, fmt.Errorf("ownership: scanning collections of %s: %w", o.user, err)
		}
		for _, pair := range fields[1].Pairs() {
			info := CollectionInfo{Name: pair.Key.Str()}
			var meta collMeta
			if err := json.Unmarshal(pair.Value.Bytes(), &meta); err == nil {
				info.Cover = meta.Cover
			}
			result = append(result, info)
		}
		cursor = fields[0].ParseInt()
		if cursor == 0 {
			return result, nil
		}
	}
}

// ScanAllCollections lists every user's collection directory. Operator
// tooling only; it walks the whole keyspace incrementally.
func ScanAllCollections(ctx context.Context, db *redis.Conn) (map[string][]CollectionInfo, error) {
	result := make(map[string][]CollectionInfo)
	cursor := int64(0)
	for {
		reply, err := db.Do(ctx, "SCAN", cursor, "MATCH", collsPrefix+"*")
		if err != nil {
			return nil, fmt.Errorf("ownership: scanning collection directories: %w", err)
		}
		fields, err := reply.Tuple(2)
		if err != nil {
			return nil, fmt.Errorf("ownership: scanning collection directories: %w", err)
		}
		for _, key := range fields[1].Array() {
			user := strings.TrimPrefix(key.Str(), collsPrefix)
			colls, err := New(user).ScanCollections(ctx, db)
			if err != nil {
				return nil, err
			}
			result[user] = colls
		}
		cursor = fields[0].ParseInt()
		if cursor == 0 {
			return result, nil
		}
	}
}

// QueryBlob finds every collection of every user that references a
// blob. A blob nobody references yields an empty slice.
func QueryBlob(ctx context.Context, db *redis.Conn, id blob.ID) ([]BlobRef, error) {
	reply, err := db.Do(ctx, "EVAL", queryBlobScript, 1, ownersKey(id), id[:])
	if err != nil {
		return nil, fmt.Errorf("ownership: querying %s: %w", id, err)
	}

	elems := reply.Array()
	refs := make([]BlobRef, 0, len(elems)/3)
	for i := 0; i+2 < len(elems); i += 3 {
		ref := BlobRef{User: elems[i].Str(), Collection: elems[i+1].Str()}
		if record := elems[i+2].Bytes(); len(record) > 0 {
			ref.Inode, _ = UnmarshalInode(record)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// ListPublicBlobs returns the front-page public list, newest last,
// resolving each entry's inode with a best-effort secondary lookup.
// The lookup is best effort because the list is only eventually
// consistent with the inode hashes: entries that fail to decode or
// whose owner no longer keeps an inode record are skipped rather than
// failing the whole listing.
//
// The packed entries are opaque to the store's scripts, so the inode
// lookups cannot run inside one EVAL; they are pipelined on the
// connection instead, which still costs a single round trip.
func ListPublicBlobs(ctx context.Context, db *redis.Conn) ([]PublicBlob, error) {
	reply, err := db.Do(ctx, "LRANGE", publicBlobsKey, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("ownership: listing public blobs: %w", err)
	}

	type lookup struct {
		entry   PublicBlob
		pending *redis.Pending
	}
	var lookups []lookup
	for _, elem := range reply.Array() {
		user, id, err := unpackPublicEntry(elem.Bytes())
		if err != nil {
			continue
		}
		lookups = append(lookups, lookup{
			entry:   PublicBlob{User: user, Blob: id},
			pending: db.Send("HGET", inodesKey(user), id[:]),
		})
	}

	result := make([]PublicBlob, 0, len(lookups))
	for _, l := range lookups {
		record, err := l.pending.Wait(ctx)
		if err != nil {
			var cmdErr *redis.CommandError
			if errors.As(err, &cmdErr) {
				continue
			}
			return nil, fmt.Errorf("ownership: listing public blobs: %w", err)
		}
		if record.IsNil() {
			continue
		}
		inode, err := UnmarshalInode(record.Bytes())
		if err != nil {
			continue
		}
		l.entry.Inode = inode
		result = append(result, l.entry)
	}
	return result, nil
}
