package domain

import "context"

// Options describe per-tracker artifact requirements consumed by the
// pipeline before Prepare is called.
type Options struct {
	// MinSnapshots is the minimum number of preview frames the site accepts.
	MinSnapshots int
	// AllFiles requires MediaInfo and snapshots to cover every constituent
	// file of a multi-file release instead of a sample.
	AllFiles bool
	// RandomSnapshots randomizes frame timestamps instead of spacing them
	// evenly across the duration.
	RandomSnapshots bool
	// MediaInfo indicates the site expects a MediaInfo dump in the payload.
	MediaInfo bool
}

// UploadRequest carries the artifacts for one (item, tracker) pairing.
// The same request value is passed to Prepare and later to Upload; state an
// adapter stages in Prepare must stay valid until Upload runs, which may be
// deferred to the end of the run in fast-upload mode.
type UploadRequest struct {
	Item        *MediaItem
	TorrentPath string
	// MediaInfo holds one text block per covered file: a single block unless
	// the adapter requested AllFiles, then one per file in sorted order.
	MediaInfo []string
	Snapshots []string
	Note      string
	// Auto answers mid-flow questions from config and metadata instead of
	// prompting; Confirm forces the pre-submission confirmation even then.
	Auto    bool
	Confirm bool
}

// Tracker is the contract every site adapter implements. Login is called
// once per run; Prepare and Upload once per media item, in that order.
// Prepare must not have irreversible effects on the remote site.
type Tracker interface {
	Name() string
	Abbrev() string
	// AnnounceURL may contain a "{passkey}" placeholder.
	AnnounceURL() string
	// Source is the source tag stamped into created torrents, empty if the
	// site does not use one.
	Source() string
	Options() Options

	Login(ctx context.Context) error
	Prepare(ctx context.Context, req *UploadRequest) error
	Upload(ctx context.Context, req *UploadRequest) error
}

// PasskeyProvider is an optional capability: adapters able to scrape the
// account passkey from an authenticated page implement it. Discovered via
// type assertion, never via embedding depth.
type PasskeyProvider interface {
	Passkey(ctx context.Context) (string, error)
}

// CookiePersister is implemented by adapters whose session cookies should be
// written back to disk after a successful login.
type CookiePersister interface {
	PersistCookies() error
}
