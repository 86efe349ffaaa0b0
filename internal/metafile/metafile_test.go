package metafile

import (
	"bytes"
	"crypto/sha1"
	"testing"

	"github.com/spf13/afero"
	"github.com/zeebo/bencode"
)

func decodeTorrent(t *testing.T, fs afero.Fs, path string) metainfo {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("reading torrent: %v", err)
	}
	var meta metainfo
	if err := bencode.DecodeBytes(data, &meta); err != nil {
		t.Fatalf("decoding torrent: %v", err)
	}
	return meta
}

func TestCreateSingleFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	payload := bytes.Repeat([]byte("x"), 1000)
	if err := afero.WriteFile(fs, "/media/Movie.2020.mkv", payload, 0o644); err != nil {
		t.Fatalf("writing payload: %v", err)
	}

	b := NewBuilder(fs)
	err := b.Create("/media/Movie.2020.mkv", "/cache/Movie.2020.mkv.torrent", "https://tracker.example/announce", "EX")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	meta := decodeTorrent(t, fs, "/cache/Movie.2020.mkv.torrent")
	if meta.Announce != "https://tracker.example/announce" {
		t.Errorf("announce = %q", meta.Announce)
	}
	if meta.Info.Name != "Movie.2020.mkv" {
		t.Errorf("info.name = %q", meta.Info.Name)
	}
	if meta.Info.Length != int64(len(payload)) {
		t.Errorf("info.length = %d, want %d", meta.Info.Length, len(payload))
	}
	if meta.Info.Private != 1 {
		t.Errorf("info.private = %d, want 1", meta.Info.Private)
	}
	if meta.Info.Source != "EX" {
		t.Errorf("info.source = %q, want EX", meta.Info.Source)
	}
	if len(meta.Info.Files) != 0 {
		t.Errorf("single-file torrent has files list: %v", meta.Info.Files)
	}

	sum := sha1.Sum(payload)
	if meta.Info.Pieces != string(sum[:]) {
		t.Error("pieces hash does not match payload")
	}
}

func TestCreateDirectoryExcludesJunk(t *testing.T) {
	fs := afero.NewMemMapFs()
	for path, content := range map[string]string{
		"/media/Season.01/ep2.mkv":     "bbbb",
		"/media/Season.01/ep1.mkv":     "aaaa",
		"/media/Season.01/cover.jpg":   "junk",
		"/media/Season.01/release.nfo": "junk",
	} {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing payload: %v", err)
		}
	}

	b := NewBuilder(fs)
	if err := b.Create("/media/Season.01", "/cache/Season.01.torrent", "https://t.example/a", ""); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	meta := decodeTorrent(t, fs, "/cache/Season.01.torrent")
	if len(meta.Info.Files) != 2 {
		t.Fatalf("files = %v, want the two mkv entries", meta.Info.Files)
	}
	if meta.Info.Files[0].Path[0] != "ep1.mkv" || meta.Info.Files[1].Path[0] != "ep2.mkv" {
		t.Errorf("files not sorted: %v", meta.Info.Files)
	}
	if meta.Info.Source != "" {
		t.Errorf("empty source should be omitted, got %q", meta.Info.Source)
	}
}

func TestCreateReusesExistingTorrent(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/cache/x.torrent", []byte("sentinel"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	b := NewBuilder(fs)
	if err := b.Create("/media/missing.mkv", "/cache/x.torrent", "https://t.example/a", ""); err != nil {
		t.Fatalf("Create() error = %v, want cached reuse without touching payload", err)
	}

	data, _ := afero.ReadFile(fs, "/cache/x.torrent")
	if string(data) != "sentinel" {
		t.Error("existing torrent was overwritten")
	}
}

func TestReuseSwapsAnnounceAndSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/media/Movie.2020.mkv", []byte("payload"), 0o644); err != nil {
		t.Fatalf("writing payload: %v", err)
	}
	b := NewBuilder(fs)
	if err := b.Create("/media/Movie.2020.mkv", "/cache/base.torrent", "https://base.example/a", "BASE"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := b.Reuse("/cache/base.torrent", "/cache/derived.torrent", "https://other.example/announce/{passkey}", "OTH")
	if err != nil {
		t.Fatalf("Reuse() error = %v", err)
	}

	base := decodeTorrent(t, fs, "/cache/base.torrent")
	derived := decodeTorrent(t, fs, "/cache/derived.torrent")
	if derived.Announce != "https://other.example/announce/{passkey}" {
		t.Errorf("derived announce = %q", derived.Announce)
	}
	if derived.Info.Source != "OTH" {
		t.Errorf("derived source = %q", derived.Info.Source)
	}
	if derived.Info.Pieces != base.Info.Pieces {
		t.Error("derived torrent re-hashed the payload")
	}
}

func TestPieceLengthFor(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want int64
	}{
		{name: "tiny payload uses minimum", size: 1 << 20, want: 1 << 15},
		{name: "huge payload clamps to maximum", size: 1 << 45, want: 1 << 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pieceLengthFor(tt.size); got != tt.want {
				t.Errorf("pieceLengthFor(%d) = %d, want %d", tt.size, got, tt.want)
			}
		})
	}
}

func TestSubstitutePasskey(t *testing.T) {
	got := SubstitutePasskey("https://t.example/{passkey}/announce", "deadbeef")
	if got != "https://t.example/deadbeef/announce" {
		t.Errorf("SubstitutePasskey() = %q", got)
	}
}
