// Package config handles application configuration loading and lookup.
//
// Configuration is a TOML document with a [default] table plus one table per
// tracker name or abbreviation. Lookup walks name, abbreviation, then
// default; presence decides, so an explicit false in a tracker table
// overrides a truthy default. The package also resolves the per-user
// config, cache and data directories.
package config
