// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package ownership

// Server-side scripts. Every mutation that touches more than one key
// runs as one script, so the cross-key indexes can never be observed
// half-updated and no client-side retry loops are needed.
//
// Blob IDs travel as raw bytes and are hex-encoded inside the scripts
// only where they land in JSON documents (collection covers).

// luaToHex renders a binary string as lowercase hex, for embedding
// blob IDs in collection metadata.
const luaToHex = `
local function tohex(s)
    return (string.gsub(s, '.', function(c)
        return string.format('%02x', string.byte(c))
    end))
end
`

// luaDetachFromColl removes a blob from a collection hash that it has
// already been HDEL'd from, and fixes the collection's bookkeeping: an
// emptied collection is dropped from the collection directory, and a
// collection that lost its cover gets the lexicographically first
// remaining blob as the new cover.
//
// Expects: collKey (coll:<user>:<coll>), collsKey (colls:<user>),
// collName, blob (raw). Defined as a Lua function so unlink and move
// share it.
const luaCollCleanup = `
local function coll_cleanup(collKey, collsKey, collName, blobRaw)
    if redis.call('EXISTS', collKey) == 0 then
        redis.call('HDEL', collsKey, collName)
        return
    end
    local meta = redis.call('HGET', collsKey, collName)
    if not meta then
        return
    end
    local m = cjson.decode(meta)
    if m['cover'] ~= tohex(blobRaw) then
        return
    end
    local blobs = redis.call('HKEYS', collKey)
    table.sort(blobs)
    m['cover'] = tohex(blobs[1])
    redis.call('HSET', collsKey, collName, cjson.encode(m))
end
`

// linkScript adds a blob to a collection.
//
//	KEYS[1] coll:<user>:<coll>
//	KEYS[2] colls:<user>
//	KEYS[3] blob-refs:<user>:<blob>
//	KEYS[4] blob-owners:<blob>
//	KEYS[5] blob-inodes:<user>
//	ARGV[1] blob (raw)
//	ARGV[2] collection name
//	ARGV[3] filename
//	ARGV[4] inode record
//	ARGV[5] user
//
// Linking is idempotent, with one asymmetry: re-linking updates the
// collection's filename for the blob but never overwrites an existing
// inode, so permission changes survive a re-upload.
const linkScript = `
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
redis.call('HSETNX', KEYS[2], ARGV[2], cjson.encode({cover=tohex(ARGV[1])}))
redis.call('SADD', KEYS[3], ARGV[2])
redis.call('SADD', KEYS[4], ARGV[5])
redis.call('HSETNX', KEYS[5], ARGV[1], ARGV[4])
return 1
`

// unlinkScript removes a blob from a collection, cascading when the
// last reference goes away.
//
//	KEYS[1] coll:<user>:<coll>
//	KEYS[2] colls:<user>
//	KEYS[3] blob-refs:<user>:<blob>
//	KEYS[4] blob-owners:<blob>
//	KEYS[5] blob-inodes:<user>
//	KEYS[6] public_blobs
//	ARGV[1] blob (raw)
//	ARGV[2] collection name
//	ARGV[3] user
//	ARGV[4] packed public-list entry for (user, blob)
//
// Returns 0 if the blob is not in the collection.
const unlinkScript = `
if redis.call('HDEL', KEYS[1], ARGV[1]) == 0 then
    return 0
end
redis.call('SREM', KEYS[3], ARGV[2])
if redis.call('EXISTS', KEYS[3]) == 0 then
    redis.call('SREM', KEYS[4], ARGV[3])
    redis.call('HDEL', KEYS[5], ARGV[1])
    redis.call('LREM', KEYS[6], 0, ARGV[4])
end
coll_cleanup(KEYS[1], KEYS[2], ARGV[2], ARGV[1])
return 1
`

// moveScript moves a blob between two collections of the same user,
// keeping its per-collection filename. Ownership indexes stay intact
// because the user still references the blob; only the source
// collection needs the emptied/cover cleanup.
//
//	KEYS[1] coll:<user>:<src>
//	KEYS[2] coll:<user>:<dst>
//	KEYS[3] colls:<user>
//	KEYS[4] blob-refs:<user>:<blob>
//	ARGV[1] blob (raw)
//	ARGV[2] source collection name
//	ARGV[3] destination collection name
//
// Returns 0 if the blob is not in the source collection.
const moveScript = `
local fname = redis.call('HGET', KEYS[1], ARGV[1])
if not fname then
    return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], fname)
redis.call('HSETNX', KEYS[3], ARGV[3], cjson.encode({cover=tohex(ARGV[1])}))
redis.call('SREM', KEYS[4], ARGV[2])
redis.call('SADD', KEYS[4], ARGV[3])
coll_cleanup(KEYS[1], KEYS[3], ARGV[2], ARGV[1])
return 1
`

// renameScript changes a blob's filename within one collection.
//
//	KEYS[1] coll:<user>:<coll>
//	ARGV[1] blob (raw)
//	ARGV[2] new filename
//
// Returns 0 if the blob is not in the collection.
const renameScript = `
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
    return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`

// updateScript replaces a blob's inode record, guarded by ownership.
// The stored permission byte is kept over the incoming one: the
// permission script is the only mutator of that byte, so the public
// list never drifts out of step with a metadata update.
//
//	KEYS[1] blob-refs:<user>:<blob>
//	KEYS[2] blob-inodes:<user>
//	ARGV[1] blob (raw)
//	ARGV[2] inode record
//
// Returns 0 if the user does not own the blob.
const updateScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
local old = redis.call('HGET', KEYS[2], ARGV[1])
local record = ARGV[2]
if old then
    record = string.sub(old, 1, 1) .. string.sub(ARGV[2], 2)
end
redis.call('HSET', KEYS[2], ARGV[1], record)
return 1
`

// setPermScript rewrites the permission byte of an inode and keeps
// the public list in step: the entry is always removed first (LREM is
// a no-op when absent) and re-appended only for public, so flipping
// permissions repeatedly cannot duplicate entries. The list is capped
// at its newest 100 entries.
//
//	KEYS[1] blob-inodes:<user>
//	KEYS[2] public_blobs
//	ARGV[1] blob (raw)
//	ARGV[2] permission byte
//	ARGV[3] packed public-list entry for (user, blob)
//
// Returns 0 if the user does not own the blob.
const setPermScript = `
local inode = redis.call('HGET', KEYS[1], ARGV[1])
if not inode then
    return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2] .. string.sub(inode, 2))
redis.call('LREM', KEYS[2], 0, ARGV[3])
if ARGV[2] == '*' then
    redis.call('RPUSH', KEYS[2], ARGV[3])
    redis.call('LTRIM', KEYS[2], -100, -1)
end
return 1
`

// setCoverScript sets a collection's cover, requiring both the
// collection and the blob's membership in it.
//
//	KEYS[1] colls:<user>
//	KEYS[2] coll:<user>:<coll>
//	ARGV[1] collection name
//	ARGV[2] blob (raw)
//
// Returns 0 if the collection is missing or does not contain the blob.
const setCoverScript = `
if redis.call('HEXISTS', KEYS[2], ARGV[2]) == 0 then
    return 0
end
local meta = redis.call('HGET', KEYS[1], ARGV[1])
if not meta then
    return 0
end
local m = cjson.decode(meta)
m['cover'] = tohex(ARGV[2])
redis.call('HSET', KEYS[1], ARGV[1], cjson.encode(m))
return 1
`

// getCollScript reads a collection and its inodes in one snapshot:
// {meta, blob1, filename1, inode1, blob2, ...}. A blob with no inode
// record yields an empty string. Returns an empty array for an
// unknown collection.
//
//	KEYS[1] colls:<user>
//	KEYS[2] coll:<user>:<coll>
//	KEYS[3] blob-inodes:<user>
//	ARGV[1] collection name
const getCollScript = `
local meta = redis.call('HGET', KEYS[1], ARGV[1])
if not meta then
    return {}
end
local result = {meta}
local entries = redis.call('HGETALL', KEYS[2])
for i = 1, #entries, 2 do
    result[#result+1] = entries[i]
    result[#result+1] = entries[i+1]
    result[#result+1] = redis.call('HGET', KEYS[3], entries[i]) or ''
end
return result
`

// queryBlobScript finds every (user, collection) referencing a blob,
// with each user's inode record: {user1, coll1, inode1, user2, ...}.
// The per-user keys are derived inside the script because the owner
// set is not known up front.
//
//	KEYS[1] blob-owners:<blob>
//	ARGV[1] blob (raw)
const queryBlobScript = `
local result = {}
for _, user in ipairs(redis.call('SMEMBERS', KEYS[1])) do
    local inode = redis.call('HGET', 'blob-inodes:' .. user, ARGV[1]) or ''
    local colls = redis.call('SMEMBERS', 'blob-refs:' .. user .. ':' .. ARGV[1])
    for _, coll in ipairs(colls) do
        result[#result+1] = user
        result[#result+1] = coll
        result[#result+1] = inode
    end
end
return result
`
