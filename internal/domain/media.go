package domain

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// MediaItem is a local release: either a single video file or a directory
// containing one or more video files. It is immutable for the duration of a
// run and its name is the artifact cache key.
type MediaItem struct {
	Path  string
	Name  string
	IsDir bool
	Files []string
}

var videoExtensions = map[string]bool{
	".mkv": true,
	".mp4": true,
}

// NewMediaItem inspects path and collects its constituent video files in
// lexicographic order. A directory without any video file is an error.
func NewMediaItem(fs afero.Fs, path string) (*MediaItem, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("inspecting media item: %w", err)
	}

	item := &MediaItem{
		Path:  path,
		Name:  filepath.Base(path),
		IsDir: info.IsDir(),
	}

	if !item.IsDir {
		item.Files = []string{path}
		return item, nil
	}

	entries, err := afero.ReadDir(fs, path)
	if err != nil {
		return nil, fmt.Errorf("listing media item directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if videoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			item.Files = append(item.Files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(item.Files)

	if len(item.Files) == 0 {
		return nil, fmt.Errorf("media item %q: %w", item.Name, ErrNoVideoFiles)
	}
	return item, nil
}

// FirstFile returns the lexicographically first video file of the item.
func (m *MediaItem) FirstFile() string {
	return m.Files[0]
}

// ReleaseName is the item name without the container extension for single
// files, or the directory name as-is.
func (m *MediaItem) ReleaseName() string {
	if m.IsDir {
		return m.Name
	}
	return strings.TrimSuffix(m.Name, filepath.Ext(m.Name))
}
