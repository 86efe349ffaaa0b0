// Package metadata resolves a parsed release against an external catalog to
// obtain database identifiers. Trackers want an IMDb or TVDB id with the
// upload; the search is best effort and ambiguous titles are disambiguated
// by year.
package metadata
