package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/amaumene/uploadarr/internal/domain"
	"github.com/amaumene/uploadarr/internal/metafile"
	"github.com/amaumene/uploadarr/internal/snapshot"
)

// pending is a prepared submission whose upload was deferred to the end of
// the run.
type pending struct {
	tracker domain.Tracker
	req     *domain.UploadRequest
}

// Run processes every (item, tracker) pairing of the configured run.
func (a *App) Run(ctx context.Context) error {
	trackerList, err := a.resolveTrackers(a.opts.Trackers)
	if err != nil {
		return err
	}
	trackerList = a.login(ctx, trackerList)
	if len(trackerList) == 0 {
		return errors.New("no tracker available after login")
	}

	var items []*domain.MediaItem
	for _, path := range a.opts.Paths {
		item, err := domain.NewMediaItem(a.fs, filepath.Clean(path))
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	var deferred []pending
	failed := 0
	for _, item := range items {
		for _, tracker := range trackerList {
			if err := ctx.Err(); err != nil {
				return err
			}
			wait, err := a.process(ctx, item, tracker)
			if err != nil {
				failed++
				log.WithFields(log.Fields{
					"item":    item.ReleaseName(),
					"tracker": tracker.Name(),
					"error":   err,
				}).Error("Processing failed")
				continue
			}
			if wait != nil {
				deferred = append(deferred, *wait)
			}
		}
	}

	for _, p := range deferred {
		if err := a.upload(ctx, p.tracker, p.req); err != nil {
			failed++
			log.WithFields(log.Fields{
				"item":    p.req.Item.ReleaseName(),
				"tracker": p.tracker.Name(),
				"error":   err,
			}).Error("Upload failed")
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(items)*len(trackerList))
	}
	return nil
}

// process builds the artifacts for one pairing and either uploads right
// away or hands back a deferred submission.
func (a *App) process(ctx context.Context, item *domain.MediaItem, tracker domain.Tracker) (*pending, error) {
	name := item.ReleaseName()
	topts := tracker.Options()

	log.WithFields(log.Fields{
		"item":    name,
		"tracker": tracker.Name(),
	}).Info("Preparing upload")

	torrentPath, err := a.buildTorrent(ctx, item, tracker)
	if err != nil {
		return nil, err
	}

	mediaInfo, err := a.info.Extract(ctx, item, topts.AllFiles)
	if err != nil {
		return nil, err
	}

	var snapshots []string
	if !a.opts.NoSnapshots {
		snapshots, err = a.snaps.Generate(ctx, snapshot.Request{
			Item:     item,
			Count:    a.snapshotCount(tracker),
			AllFiles: topts.AllFiles,
			Random:   topts.RandomSnapshots,
		})
		if err != nil {
			return nil, err
		}
	}

	req := &domain.UploadRequest{
		Item:        item,
		TorrentPath: torrentPath,
		MediaInfo:   mediaInfo,
		Snapshots:   snapshots,
		Note:        a.opts.Note,
		Auto:        a.opts.Auto,
		Confirm:     a.opts.Confirm,
	}
	if err := tracker.Prepare(ctx, req); err != nil {
		return nil, err
	}

	if a.opts.SkipUpload {
		log.WithFields(log.Fields{
			"item":    name,
			"tracker": tracker.Name(),
			"torrent": torrentPath,
		}).Info("Prepared, skipping upload")
		return nil, nil
	}
	if a.opts.FastUpload {
		return &pending{tracker: tracker, req: req}, nil
	}
	return nil, a.upload(ctx, tracker, req)
}

// buildTorrent creates the release's base torrent once and derives the
// tracker-specific copy from it.
func (a *App) buildTorrent(ctx context.Context, item *domain.MediaItem, tracker domain.Tracker) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := item.ReleaseName()
	if _, err := a.cache.ItemDir(name); err != nil {
		return "", err
	}

	announce, err := a.announceFor(ctx, tracker)
	if err != nil {
		return "", err
	}

	basePath := a.cache.BaseTorrent(name)
	if !a.cache.Exists(basePath) {
		if err := a.meta.Create(item.Path, basePath, "", ""); err != nil {
			return "", err
		}
	}

	trackerPath := a.cache.TrackerTorrent(name, tracker.Abbrev())
	if err := a.meta.Reuse(basePath, trackerPath, announce, tracker.Source()); err != nil {
		return "", err
	}
	return trackerPath, nil
}

// announceFor fills the announce URL's passkey placeholder, preferring the
// configured passkey over scraping the site.
func (a *App) announceFor(ctx context.Context, tracker domain.Tracker) (string, error) {
	announce := tracker.AnnounceURL()
	if !strings.Contains(announce, "{passkey}") {
		return announce, nil
	}

	passkey := a.cfg.GetString(tracker, "passkey", "")
	if passkey == "" {
		provider, ok := tracker.(domain.PasskeyProvider)
		if !ok {
			return "", fmt.Errorf("%s: %w", tracker.Name(), domain.ErrMissingPasskey)
		}
		scraped, err := provider.Passkey(ctx)
		if err != nil {
			return "", fmt.Errorf("scraping %s passkey: %w", tracker.Name(), err)
		}
		passkey = scraped
	}
	return metafile.SubstitutePasskey(announce, passkey), nil
}

// snapshotCount sizes the gallery from the configured grid, never below the
// site minimum.
func (a *App) snapshotCount(tracker domain.Tracker) int {
	columns := a.cfg.GetInt(tracker, "snapshot_columns", 2)
	rows := a.cfg.GetInt(tracker, "snapshot_rows", 2)
	count := columns * rows
	if min := tracker.Options().MinSnapshots; count < min {
		count = min
	}
	return count
}

func (a *App) upload(ctx context.Context, tracker domain.Tracker, req *domain.UploadRequest) error {
	if err := tracker.Upload(ctx, req); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"item":    req.Item.ReleaseName(),
		"tracker": tracker.Name(),
	}).Info("Uploaded")

	if watchDir := a.cfg.GetString(tracker, "watch_dir", ""); watchDir != "" {
		if err := a.copyToWatchDir(req.TorrentPath, watchDir); err != nil {
			log.WithFields(log.Fields{
				"tracker": tracker.Name(),
				"error":   err,
			}).Warn("Copying torrent to watch dir failed")
		}
	}
	return nil
}

// copyToWatchDir hands the finished torrent to a client watching dir.
func (a *App) copyToWatchDir(torrentPath, watchDir string) error {
	data, err := afero.ReadFile(a.fs, torrentPath)
	if err != nil {
		return fmt.Errorf("reading torrent: %w", err)
	}
	if err := a.fs.MkdirAll(watchDir, 0o755); err != nil {
		return fmt.Errorf("creating watch dir: %w", err)
	}
	dst := filepath.Join(watchDir, filepath.Base(torrentPath))
	if err := afero.WriteFile(a.fs, dst, data, 0o644); err != nil {
		return fmt.Errorf("writing torrent to watch dir: %w", err)
	}
	return nil
}
