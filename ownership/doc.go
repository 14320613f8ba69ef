// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

// Package ownership maintains the who-owns-what indexes of the blob
// store: which collections a user has, which blobs each collection
// contains, per-user blob metadata (inodes), reverse lookups from a
// blob to everyone referencing it, and the bounded front-page list of
// public blobs.
//
// A blob is identified by its content hash and stored once; ownership
// is the many-to-many mapping around it. The indexes must agree with
// each other at all times, so every mutation that spans keys runs as
// one server-side script. Reference counting falls out of the index
// shape: a user owns a blob while at least one of their collections
// references it, and the last unlink cascades the per-user state away.
package ownership
