// Package session provides the authenticated HTTP client each tracker
// adapter owns: automatic retry with backoff on transient status codes, a
// cookie jar persisted in Mozilla cookies.txt format keyed by tracker
// identity and account, per-tracker proxy support and a fixed request
// timeout. Cookie validity is never judged locally; expired-looking cookies
// are still sent and the tracker decides.
package session
