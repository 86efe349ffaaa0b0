// Package metafile creates and rewrites BitTorrent metainfo files. A base
// torrent is hashed once per release; per-tracker variants are derived from
// it by swapping the announce URL, source tag and private flag without
// re-hashing the payload.
package metafile
