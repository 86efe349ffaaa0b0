package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/amaumene/uploadarr/internal/cache"
	"github.com/amaumene/uploadarr/internal/config"
	"github.com/amaumene/uploadarr/internal/domain"
	"github.com/amaumene/uploadarr/internal/mediainfo"
	"github.com/amaumene/uploadarr/internal/metadata"
	"github.com/amaumene/uploadarr/internal/metafile"
	"github.com/amaumene/uploadarr/internal/prompt"
	"github.com/amaumene/uploadarr/internal/session"
	"github.com/amaumene/uploadarr/internal/snapshot"
	"github.com/amaumene/uploadarr/internal/trackers"
)

// Options select what a run does. Trackers and Paths come from the command
// line, the rest are behavior switches.
type Options struct {
	// Trackers are the lookup names of the sites to upload to.
	Trackers []string
	// Paths are the media items to process, files or directories.
	Paths []string
	// Auto answers every question from config and metadata instead of
	// prompting.
	Auto bool
	// Confirm asks before each submission even in auto mode.
	Confirm bool
	// FastUpload defers every submission until all items are prepared.
	FastUpload bool
	// SkipUpload prepares everything but never submits.
	SkipUpload bool
	// NoSnapshots skips frame generation and uploads without galleries.
	NoSnapshots bool
	// Note is an optional message included in the release description.
	Note string
}

type App struct {
	cfg    *config.Config
	paths  config.Paths
	opts   Options
	fs     afero.Fs
	cache  *cache.Cache
	meta   *metafile.Builder
	info   *mediainfo.Extractor
	snaps  *snapshot.Generator
	prompt domain.Prompter
	deps   trackers.Deps
}

// New loads the configuration under paths and wires the services every
// adapter shares.
func New(fs afero.Fs, paths config.Paths, opts Options) (*App, error) {
	cfg, err := config.Load(fs, paths.ConfigFile())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	app := &App{
		cfg:   cfg,
		paths: paths,
		opts:  opts,
		fs:    fs,
		cache: cache.New(fs, paths.Cache),
		meta:  metafile.NewBuilder(fs),
	}
	app.info = mediainfo.NewExtractor(fs, app.cache, nil)
	app.snaps = snapshot.NewGenerator(app.cache, nil)

	terminal := prompt.NewTerminal(os.Stdin, os.Stderr)
	switch {
	case opts.Auto && opts.Confirm:
		// Auto still answers questions from config and metadata; only the
		// pre-submission confirmation stays interactive.
		app.prompt = prompt.ConfirmOnly{Terminal: terminal}
	case opts.Auto:
		app.prompt = prompt.Unattended{}
	default:
		app.prompt = terminal
	}

	app.wireDeps()
	return app, nil
}

func (a *App) wireDeps() {
	a.deps = trackers.Deps{
		Config:    a.cfg,
		Fs:        a.fs,
		Metadata:  a.newSearcher(),
		MediaInfo: a.info,
		Snapshots: a.snaps,
		Prompter:  a.prompt,
		NewSession: func(name, username string) (*session.Session, error) {
			return session.New(name, username, session.Options{
				Proxy:     a.cfg.GetString(config.Section(name), "proxy", ""),
				CookieDir: a.paths.CookieDir(),
				Fs:        a.fs,
			})
		},
	}
}

func (a *App) newSearcher() metadata.Searcher {
	apiKey := a.cfg.GetString(nil, "trakt_api_key", "")
	if apiKey == "" {
		return unconfiguredSearcher{}
	}
	return metadata.NewTraktSearcher(apiKey)
}

// unconfiguredSearcher stands in when no catalog API key is configured, so
// only the flows that actually need a lookup fail.
type unconfiguredSearcher struct{}

func (unconfiguredSearcher) Search(ctx context.Context, rel *domain.Release) (*metadata.Result, error) {
	return nil, fmt.Errorf("trakt_api_key not configured: %w", domain.ErrNoCandidates)
}

// resolveTrackers maps the requested names to adapters, deduplicated and in
// order.
func (a *App) resolveTrackers(names []string) ([]domain.Tracker, error) {
	var resolved []domain.Tracker
	seen := map[string]bool{}
	for _, name := range names {
		tracker, err := trackers.Resolve(name, a.deps)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(tracker.Name())
		if seen[key] {
			continue
		}
		seen[key] = true
		resolved = append(resolved, tracker)
	}
	return resolved, nil
}

// login authenticates every tracker, dropping the ones that fail so the
// rest of the run proceeds.
func (a *App) login(ctx context.Context, trackerList []domain.Tracker) []domain.Tracker {
	var ready []domain.Tracker
	for _, tracker := range trackerList {
		if err := tracker.Login(ctx); err != nil {
			log.WithFields(log.Fields{
				"tracker": tracker.Name(),
				"error":   err,
			}).Error("Login failed, skipping tracker")
			continue
		}
		if persister, ok := tracker.(domain.CookiePersister); ok {
			if err := persister.PersistCookies(); err != nil {
				log.WithFields(log.Fields{
					"tracker": tracker.Name(),
					"error":   err,
				}).Warn("Persisting cookies failed")
			}
		}
		ready = append(ready, tracker)
	}
	return ready
}
