package app

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/amaumene/uploadarr/internal/cache"
	"github.com/amaumene/uploadarr/internal/config"
	"github.com/amaumene/uploadarr/internal/domain"
	"github.com/amaumene/uploadarr/internal/mediainfo"
	"github.com/amaumene/uploadarr/internal/metafile"
	"github.com/amaumene/uploadarr/internal/prompt"
)

type fakeTracker struct {
	name     string
	announce string
	options  domain.Options
	passkey  string

	calls *[]string
}

func (f *fakeTracker) Name() string            { return f.name }
func (f *fakeTracker) Abbrev() string          { return "FT" }
func (f *fakeTracker) AnnounceURL() string     { return f.announce }
func (f *fakeTracker) Source() string          { return "" }
func (f *fakeTracker) Options() domain.Options { return f.options }

func (f *fakeTracker) Login(ctx context.Context) error { return nil }

func (f *fakeTracker) Prepare(ctx context.Context, req *domain.UploadRequest) error {
	*f.calls = append(*f.calls, "prepare "+req.Item.ReleaseName())
	return nil
}

func (f *fakeTracker) Upload(ctx context.Context, req *domain.UploadRequest) error {
	*f.calls = append(*f.calls, "upload "+req.Item.ReleaseName())
	return nil
}

func (f *fakeTracker) Passkey(ctx context.Context) (string, error) {
	if f.passkey == "" {
		return "", errors.New("no passkey")
	}
	return f.passkey, nil
}

// testApp builds an app over an in-memory filesystem with command runners
// stubbed out.
func testApp(t *testing.T, conf string, opts Options) *App {
	t.Helper()

	fs := afero.NewMemMapFs()
	cfg := &config.Config{}
	if conf != "" {
		if err := afero.WriteFile(fs, "/config.toml", []byte(conf), 0o644); err != nil {
			t.Fatal(err)
		}
		loaded, err := config.Load(fs, "/config.toml")
		if err != nil {
			t.Fatal(err)
		}
		cfg = loaded
	}

	runner := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("General\nComplete name : movie.mkv\n"), nil
	}

	a := &App{
		cfg:    cfg,
		opts:   opts,
		fs:     fs,
		cache:  cache.New(fs, "/cache"),
		meta:   metafile.NewBuilder(fs),
		prompt: prompt.Unattended{},
	}
	a.info = mediainfo.NewExtractor(fs, a.cache, runner)
	return a
}

func writeMedia(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAnnounceFor(t *testing.T) {
	tests := []struct {
		name    string
		conf    string
		tracker *fakeTracker
		want    string
		wantErr error
	}{
		{
			name:    "no placeholder passes through",
			tracker: &fakeTracker{name: "Fake", announce: "http://fake/announce"},
			want:    "http://fake/announce",
		},
		{
			name:    "configured passkey wins",
			conf:    "[fake]\npasskey = \"cfg123\"\n",
			tracker: &fakeTracker{name: "Fake", announce: "http://fake/{passkey}/announce", passkey: "scraped"},
			want:    "http://fake/cfg123/announce",
		},
		{
			name:    "scraped passkey fallback",
			tracker: &fakeTracker{name: "Fake", announce: "http://fake/{passkey}/announce", passkey: "scraped"},
			want:    "http://fake/scraped/announce",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testApp(t, tt.conf, Options{})
			got, err := a.announceFor(context.Background(), tt.tracker)
			if err != nil {
				t.Fatalf("announceFor() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("announceFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSnapshotCount(t *testing.T) {
	tests := []struct {
		name string
		conf string
		min  int
		want int
	}{
		{name: "default grid", min: 2, want: 4},
		{name: "minimum wins over small grid", min: 6, want: 6},
		{name: "configured grid", conf: "[fake]\nsnapshot_columns = 3\nsnapshot_rows = 3\n", min: 2, want: 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testApp(t, tt.conf, Options{})
			tracker := &fakeTracker{name: "Fake", options: domain.Options{MinSnapshots: tt.min}}
			if got := a.snapshotCount(tracker); got != tt.want {
				t.Errorf("snapshotCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProcessSkipUpload(t *testing.T) {
	a := testApp(t, "", Options{SkipUpload: true, NoSnapshots: true})
	writeMedia(t, a.fs, "/media/Movie.Name.2020.1080p.BluRay.x264-GRP.mkv")

	item, err := domain.NewMediaItem(a.fs, "/media/Movie.Name.2020.1080p.BluRay.x264-GRP.mkv")
	if err != nil {
		t.Fatal(err)
	}

	var calls []string
	tracker := &fakeTracker{name: "Fake", announce: "http://fake/announce", calls: &calls}

	wait, err := a.process(context.Background(), item, tracker)
	if err != nil {
		t.Fatalf("process() error: %v", err)
	}
	if wait != nil {
		t.Fatal("process() deferred an upload in skip mode")
	}

	want := []string{"prepare Movie.Name.2020.1080p.BluRay.x264-GRP"}
	if len(calls) != 1 || calls[0] != want[0] {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	if !a.cache.Exists(a.cache.TrackerTorrent(item.ReleaseName(), "FT")) {
		t.Error("tracker torrent missing from cache")
	}
}

func TestRunFastUploadDefersSubmissions(t *testing.T) {
	a := testApp(t, "", Options{
		Trackers:    []string{"fake"},
		FastUpload:  true,
		NoSnapshots: true,
	})
	writeMedia(t, a.fs, "/media/First.Movie.2020.1080p.BluRay.x264-GRP.mkv")
	writeMedia(t, a.fs, "/media/Second.Movie.2021.1080p.BluRay.x264-GRP.mkv")

	var calls []string
	tracker := &fakeTracker{name: "Fake", announce: "http://fake/announce", calls: &calls}

	var deferred []pending
	for _, path := range []string{
		"/media/First.Movie.2020.1080p.BluRay.x264-GRP.mkv",
		"/media/Second.Movie.2021.1080p.BluRay.x264-GRP.mkv",
	} {
		item, err := domain.NewMediaItem(a.fs, path)
		if err != nil {
			t.Fatal(err)
		}
		wait, err := a.process(context.Background(), item, tracker)
		if err != nil {
			t.Fatalf("process(%s) error: %v", path, err)
		}
		if wait == nil {
			t.Fatalf("process(%s) did not defer the upload", path)
		}
		deferred = append(deferred, *wait)
	}

	for _, p := range deferred {
		if err := a.upload(context.Background(), p.tracker, p.req); err != nil {
			t.Fatalf("upload() error: %v", err)
		}
	}

	want := []string{
		"prepare First.Movie.2020.1080p.BluRay.x264-GRP",
		"prepare Second.Movie.2021.1080p.BluRay.x264-GRP",
		"upload First.Movie.2020.1080p.BluRay.x264-GRP",
		"upload Second.Movie.2021.1080p.BluRay.x264-GRP",
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}
