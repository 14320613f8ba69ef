// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package ownership

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nestal/hearty-rabbit/auth"
)

// Permission is the access level of a blob, stored as the first byte
// of its inode record so scripts can flip it without touching the
// metadata.
type Permission byte

const (
	// Private blobs are visible to their owner only.
	Private Permission = ' '
	// Shared blobs are visible to any signed-in user or guest.
	Shared Permission = '+'
	// Public blobs are visible to everyone and listed on the front page.
	Public Permission = '*'
)

// ParsePermission parses the operator-facing names.
func ParsePermission(name string) (Permission, error) {
	switch name {
	case "private":
		return Private, nil
	case "shared":
		return Shared, nil
	case "public":
		return Public, nil
	}
	return 0, fmt.Errorf("ownership: unknown permission %q", name)
}

// Allows reports whether a requester may see a blob owned by owner.
// Unrecognized permission bytes deny everyone, including the owner;
// a corrupt record fails closed.
func (p Permission) Allows(requester auth.UserID, owner string) bool {
	switch p {
	case Public:
		return true
	case Shared:
		return !requester.IsAnonymous()
	case Private:
		return requester.Username() == owner
	}
	return false
}

func (p Permission) String() string {
	switch p {
	case Private:
		return "private"
	case Shared:
		return "shared"
	case Public:
		return "public"
	}
	return fmt.Sprintf("invalid(%q)", byte(p))
}

// Inode is the per-blob metadata a user keeps: who may see it, what
// kind of content it is, and when it was taken or uploaded. The
// filename here is the name the blob had at upload; collections may
// rename their own references without touching it.
type Inode struct {
	Perm      Permission
	Filename  string
	Mime      string
	Timestamp time.Time
}

// inodeJSON is the stored JSON layout. Timestamps are milliseconds
// since the Unix epoch.
type inodeJSON struct {
	Filename  string `json:"filename,omitempty"`
	Mime      string `json:"mime,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// MarshalDB encodes the inode into its stored form: one permission
// byte followed by a JSON document.
func (i Inode) MarshalDB() ([]byte, error) {
	perm := i.Perm
	if perm == 0 {
		perm = Private
	}
	doc := inodeJSON{
		Filename: i.Filename,
		Mime:     i.Mime,
	}
	if !i.Timestamp.IsZero() {
		doc.Timestamp = i.Timestamp.UnixMilli()
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("ownership: encoding inode: %w", err)
	}
	return append([]byte{byte(perm)}, encoded...), nil
}

// inodeWire is the JSON layout toward external callers: unlike the
// stored form, the permission is spelled out.
type inodeWire struct {
	Perm      string `json:"perm"`
	Filename  string `json:"filename,omitempty"`
	Mime      string `json:"mime,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// MarshalJSON implements json.Marshaler with the wire layout.
func (i Inode) MarshalJSON() ([]byte, error) {
	perm := i.Perm
	if perm == 0 {
		perm = Private
	}
	wire := inodeWire{Perm: perm.String(), Filename: i.Filename, Mime: i.Mime}
	if !i.Timestamp.IsZero() {
		wire.Timestamp = i.Timestamp.UnixMilli()
	}
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler for the wire layout.
func (i *Inode) UnmarshalJSON(data []byte) error {
	var wire inodeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	perm, err := ParsePermission(wire.Perm)
	if err != nil {
		return err
	}
	*i = Inode{Perm: perm, Filename: wire.Filename, Mime: wire.Mime}
	if wire.Timestamp != 0 {
		i.Timestamp = time.UnixMilli(wire.Timestamp)
	}
	return nil
}

// UnmarshalInode decodes a stored inode. The decode is lenient: a
// record whose JSON part is missing or malformed still yields its
// permission byte with empty metadata, so one corrupt record cannot
// take down a whole listing.
func UnmarshalInode(data []byte) (Inode, error) {
	if len(data) == 0 {
		return Inode{}, fmt.Errorf("ownership: empty inode record")
	}
	inode := Inode{Perm: Permission(data[0])}

	var doc inodeJSON
	if err := json.Unmarshal(data[1:], &doc); err == nil {
		inode.Filename = doc.Filename
		inode.Mime = doc.Mime
		if doc.Timestamp != 0 {
			inode.Timestamp = time.UnixMilli(doc.Timestamp)
		}
	}
	return inode, nil
}
