package cache

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Cache resolves artifact paths under a root directory. Artifacts for one
// release share the directory <root>/<name>_files/.
type Cache struct {
	fs   afero.Fs
	root string
}

// New returns a cache rooted at root.
func New(fs afero.Fs, root string) *Cache {
	return &Cache{fs: fs, root: root}
}

// ItemDir returns the artifact directory for a release, creating it.
func (c *Cache) ItemDir(name string) (string, error) {
	dir := filepath.Join(c.root, name+"_files")
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}
	return dir, nil
}

// BaseTorrent is the tracker-neutral torrent used as the reuse source.
func (c *Cache) BaseTorrent(name string) string {
	return filepath.Join(c.root, name+"_files", name+".torrent")
}

// TrackerTorrent is the per-tracker torrent carrying that tracker's
// announce URL and source tag.
func (c *Cache) TrackerTorrent(name, abbrev string) string {
	return filepath.Join(c.root, name+"_files", fmt.Sprintf("%s[%s].torrent", name, abbrev))
}

// MediaInfoPath is the cached mediainfo report. The all variant covers every
// file of a multi-file release instead of just the first.
func (c *Cache) MediaInfoPath(name string, all bool) string {
	file := "mediainfo.txt"
	if all {
		file = "mediainfo_all.txt"
	}
	return filepath.Join(c.root, name+"_files", file)
}

// SnapshotPath is the idx-th snapshot image, one-based. The all and random
// variants are kept apart from plain evenly spaced snapshots so switching
// modes never serves stale frames.
func (c *Cache) SnapshotPath(name string, idx int, all, random bool) string {
	var suffix strings.Builder
	if all {
		suffix.WriteString("_all")
	}
	if random {
		suffix.WriteString("_rand")
	}
	return filepath.Join(c.root, name+"_files", fmt.Sprintf("%02d%s.png", idx, suffix.String()))
}

// ThumbnailPath derives the path of a width-bounded thumbnail from its
// source snapshot.
func (c *Cache) ThumbnailPath(snapshot string, width int) string {
	base := strings.TrimSuffix(snapshot, filepath.Ext(snapshot))
	return fmt.Sprintf("%s_thumb_%d.png", base, width)
}

// Exists reports whether the artifact at path is already cached.
func (c *Cache) Exists(path string) bool {
	ok, err := afero.Exists(c.fs, path)
	return err == nil && ok
}
