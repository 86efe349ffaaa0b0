// Package app wires the shared services together and drives a run: login,
// artifact preparation and submission for every (item, tracker) pairing.
package app
