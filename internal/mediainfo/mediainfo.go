package mediainfo

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/amaumene/uploadarr/internal/cache"
	"github.com/amaumene/uploadarr/internal/domain"
)

// Runner executes an external command and returns its stdout. Injectable so
// tests never shell out.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands through the real binary on PATH.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", name, err)
	}
	return out, nil
}

// Extractor produces mediainfo reports for releases.
type Extractor struct {
	fs    afero.Fs
	cache *cache.Cache
	run   Runner
}

// NewExtractor returns an extractor caching reports through c.
func NewExtractor(fs afero.Fs, c *cache.Cache, run Runner) *Extractor {
	if run == nil {
		run = ExecRunner
	}
	return &Extractor{fs: fs, cache: c, run: run}
}

// Extract returns one report section per analyzed file. With all false only
// the first video file is analyzed; with all true every file gets a
// section. Reports are cached per release and variant.
func (e *Extractor) Extract(ctx context.Context, item *domain.MediaItem, all bool) ([]string, error) {
	path := e.cache.MediaInfoPath(item.ReleaseName(), all)
	if e.cache.Exists(path) {
		data, err := afero.ReadFile(e.fs, path)
		if err != nil {
			return nil, fmt.Errorf("reading cached mediainfo: %w", err)
		}
		return SplitSections(string(data)), nil
	}

	files := item.Files
	if !all {
		files = files[:1]
	}

	var sections []string
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := e.run(ctx, "mediainfo", file)
		if err != nil {
			return nil, fmt.Errorf("analyzing %s: %w", filepath.Base(file), err)
		}
		sections = append(sections, sanitize(string(out), file))
	}

	joined := strings.Join(sections, "\n")
	if _, err := e.cache.ItemDir(item.ReleaseName()); err != nil {
		return nil, err
	}
	if err := afero.WriteFile(e.fs, path, []byte(joined), 0o644); err != nil {
		return nil, fmt.Errorf("caching mediainfo: %w", err)
	}

	log.WithFields(log.Fields{
		"release":  item.ReleaseName(),
		"sections": len(sections),
	}).Info("Extracted mediainfo")

	return sections, nil
}

// sanitize strips the local directory from the Complete name line so
// reports never leak filesystem layout.
func sanitize(report, file string) string {
	lines := strings.Split(report, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "Complete name") {
			if idx := strings.Index(line, ":"); idx >= 0 {
				lines[i] = line[:idx+1] + " " + filepath.Base(file)
			}
		}
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
}

// SplitSections splits a combined report into per-file sections. Each
// section starts at a line reading exactly "General".
func SplitSections(report string) []string {
	lines := strings.Split(report, "\n")
	var sections []string
	var current []string
	for _, line := range lines {
		if strings.TrimRight(line, "\r") == "General" && len(current) > 0 {
			if section := strings.TrimSpace(strings.Join(current, "\n")); section != "" {
				sections = append(sections, section+"\n")
			}
			current = nil
		}
		current = append(current, line)
	}
	if section := strings.TrimSpace(strings.Join(current, "\n")); section != "" {
		sections = append(sections, section+"\n")
	}
	return sections
}

// ContainerInfo is the track-level JSON view of one media file.
type ContainerInfo struct {
	Media struct {
		Track []Track `json:"track"`
	} `json:"media"`
}

// Track is one mediainfo JSON track. Numeric fields arrive as strings.
type Track struct {
	Type     string `json:"@type"`
	Height   string `json:"Height"`
	Width    string `json:"Width"`
	Duration string `json:"Duration"`
	Language string `json:"Language"`
	Format   string `json:"Format"`
	ScanType string `json:"ScanType"`
}

// Video returns the first video track, if any.
func (c *ContainerInfo) Video() *Track {
	return c.track("Video")
}

// General returns the container track, if any.
func (c *ContainerInfo) General() *Track {
	return c.track("General")
}

func (c *ContainerInfo) track(kind string) *Track {
	for i := range c.Media.Track {
		if c.Media.Track[i].Type == kind {
			return &c.Media.Track[i]
		}
	}
	return nil
}

// AudioLanguages returns the language tags of every audio track, in order.
func (c *ContainerInfo) AudioLanguages() []string {
	return c.languages("Audio")
}

// TextLanguages returns the language tags of every subtitle track.
func (c *ContainerInfo) TextLanguages() []string {
	return c.languages("Text")
}

func (c *ContainerInfo) languages(kind string) []string {
	var langs []string
	for _, t := range c.Media.Track {
		if t.Type == kind && t.Language != "" {
			langs = append(langs, t.Language)
		}
	}
	return langs
}

// ExtractJSON analyzes one file with mediainfo JSON output.
func (e *Extractor) ExtractJSON(ctx context.Context, file string) (*ContainerInfo, error) {
	out, err := e.run(ctx, "mediainfo", "--Output=JSON", file)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", filepath.Base(file), err)
	}
	var info ContainerInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("decoding mediainfo json: %w", err)
	}
	return &info, nil
}
