// Package trackers implements the per-site upload adapters. Each adapter
// drives one tracker's web flow end to end: session login with whatever
// challenge the site throws up, a prepare step that assembles the upload
// form, and the final submission. Adapters register themselves in a static
// registry keyed by name and abbreviation.
package trackers
