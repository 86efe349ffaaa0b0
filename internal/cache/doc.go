// Package cache lays out the per-release artifact directory. Every generated
// file for a release lives under one directory named after it, so repeated
// runs reuse earlier torrents, mediainfo reports and snapshots instead of
// regenerating them.
package cache
