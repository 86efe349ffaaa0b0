package snapshot

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/amaumene/uploadarr/internal/cache"
	"github.com/amaumene/uploadarr/internal/domain"
	"github.com/amaumene/uploadarr/internal/mediainfo"
)

// Squares pixels before scaling so anamorphic sources render at their
// display aspect ratio.
const sarFilter = "scale='max(sar,1)*iw':'max(1/sar,1)*ih'"

// Generator produces snapshot images for releases.
type Generator struct {
	cache *cache.Cache
	run   mediainfo.Runner
	rand  *rand.Rand
}

// NewGenerator returns a generator writing through c. A nil runner shells
// out to the real ffmpeg and ffprobe.
func NewGenerator(c *cache.Cache, run mediainfo.Runner) *Generator {
	if run == nil {
		run = mediainfo.ExecRunner
	}
	return &Generator{cache: c, run: run, rand: rand.New(rand.NewSource(rand.Int63()))}
}

// Request describes one snapshot batch.
type Request struct {
	Item *domain.MediaItem
	// Count is the number of snapshots wanted. In AllFiles mode the count
	// is one per file instead.
	Count    int
	AllFiles bool
	Random   bool
}

// Generate returns the snapshot paths for req, creating missing ones.
// Files are cycled when more snapshots are wanted than the release has
// files; timestamps within one file divide its runtime into equal
// intervals.
func (g *Generator) Generate(ctx context.Context, req Request) ([]string, error) {
	name := req.Item.ReleaseName()
	if _, err := g.cache.ItemDir(name); err != nil {
		return nil, err
	}

	files := req.Item.Files
	count := req.Count
	// One frame per file only applies to multi-file releases; a single-file
	// release still gets the full requested batch.
	if req.AllFiles && req.Item.IsDir {
		count = len(files)
	}
	if count < 1 {
		return nil, fmt.Errorf("snapshot count %d for %s", count, name)
	}

	perFile := count / len(files)
	if count%len(files) != 0 {
		perFile++
	}

	var snapshots []string
	idx := 0
	for _, file := range files {
		if idx >= count {
			break
		}
		duration, err := g.probeDuration(ctx, file)
		if err != nil {
			return nil, err
		}
		interval := duration / float64(perFile+1)
		for j := 0; j < perFile && idx < count; j++ {
			idx++
			out := g.cache.SnapshotPath(name, idx, req.AllFiles, req.Random)
			snapshots = append(snapshots, out)
			if g.cache.Exists(out) {
				continue
			}

			ts := interval * float64(j+1)
			if req.Random {
				ts = duration * (0.05 + 0.9*g.rand.Float64())
			}
			if err := g.grab(ctx, file, out, ts); err != nil {
				return nil, err
			}
		}
	}

	log.WithFields(log.Fields{
		"release":   name,
		"snapshots": len(snapshots),
	}).Info("Generated snapshots")

	return snapshots, nil
}

// Thumbnails renders width-bounded copies of the given snapshots.
func (g *Generator) Thumbnails(ctx context.Context, snapshots []string, width int) ([]string, error) {
	var thumbs []string
	for _, snap := range snapshots {
		out := g.cache.ThumbnailPath(snap, width)
		thumbs = append(thumbs, out)
		if g.cache.Exists(out) {
			continue
		}
		_, err := g.run(ctx, "ffmpeg",
			"-y", "-loglevel", "error",
			"-i", snap,
			"-vf", fmt.Sprintf("scale=%d:-1", width),
			out,
		)
		if err != nil {
			return nil, fmt.Errorf("rendering thumbnail for %s: %w", filepath.Base(snap), err)
		}
	}
	return thumbs, nil
}

func (g *Generator) probeDuration(ctx context.Context, file string) (float64, error) {
	out, err := g.run(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		file,
	)
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", filepath.Base(file), err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing duration of %s: %w", filepath.Base(file), err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("non-positive duration for %s", filepath.Base(file))
	}
	return duration, nil
}

func (g *Generator) grab(ctx context.Context, file, out string, ts float64) error {
	_, err := g.run(ctx, "ffmpeg",
		"-y", "-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", ts),
		"-i", file,
		"-vf", sarFilter,
		"-frames:v", "1",
		out,
	)
	if err != nil {
		return fmt.Errorf("grabbing frame from %s: %w", filepath.Base(file), err)
	}
	return nil
}
