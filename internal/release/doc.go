// Package release classifies release names into movies, single episodes,
// full seasons and multi-season packs, and pulls out the searchable title,
// year and technical attributes.
package release
