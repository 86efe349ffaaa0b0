// Package mediainfo wraps the mediainfo CLI tool. Text reports are cached
// per release and split into per-file sections; the JSON output feeds
// adapters that need track-level details like resolution and audio
// languages.
package mediainfo
