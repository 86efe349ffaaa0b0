package trackers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/amaumene/uploadarr/internal/config"
	"github.com/amaumene/uploadarr/internal/domain"
	"github.com/amaumene/uploadarr/internal/metadata"
	"github.com/amaumene/uploadarr/internal/session"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := f(req)
	if resp != nil && resp.Request == nil {
		resp.Request = req
	}
	return resp, err
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"text/html"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type fakePrompter struct {
	answers map[string]string
	confirm bool
}

func (p *fakePrompter) Ask(label string) (string, error) {
	if answer, ok := p.answers[label]; ok {
		return answer, nil
	}
	return "", fmt.Errorf("unexpected prompt %q", label)
}

func (p *fakePrompter) Confirm(label string) (bool, error) {
	return p.confirm, nil
}

type fakeSearcher struct {
	result *metadata.Result
	err    error
}

func (s *fakeSearcher) Search(ctx context.Context, rel *domain.Release) (*metadata.Result, error) {
	return s.result, s.err
}

// testDeps builds adapter dependencies over an in-memory filesystem. conf is
// the TOML configuration text; an optional transport serves HTTP traffic.
func testDeps(t *testing.T, conf string, rt ...http.RoundTripper) Deps {
	t.Helper()

	fs := afero.NewMemMapFs()
	cfg := &config.Config{}
	if conf != "" {
		if err := afero.WriteFile(fs, "/config.toml", []byte(conf), 0o644); err != nil {
			t.Fatal(err)
		}
		loaded, err := config.Load(fs, "/config.toml")
		if err != nil {
			t.Fatalf("loading test config: %v", err)
		}
		cfg = loaded
	}

	transport := http.RoundTripper(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("unexpected request to %s", req.URL)
	}))
	if len(rt) > 0 {
		transport = rt[0]
	}

	return Deps{
		Config:   cfg,
		Fs:       fs,
		Metadata: &fakeSearcher{result: &metadata.Result{Title: "Test", Year: 2020, IMDB: "tt0000001"}},
		Prompter: &fakePrompter{confirm: true},
		NewSession: func(name, username string) (*session.Session, error) {
			return session.New(name, username, session.Options{Fs: fs, Transport: transport})
		},
	}
}

func TestPassThePopcornLogin(t *testing.T) {
	var loginForm string
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch {
		case req.Method == http.MethodGet && strings.Contains(req.URL.Path, "user.php"):
			return response(302, ""), nil
		case req.Method == http.MethodPost && strings.Contains(req.URL.RawQuery, "action=login"):
			body, _ := io.ReadAll(req.Body)
			loginForm = string(body)
			return response(200, `{"Result":"Ok","AntiCsrfToken":"token123"}`), nil
		}
		return nil, fmt.Errorf("unexpected request %s %s", req.Method, req.URL)
	})

	deps := testDeps(t, `
[passthepopcorn]
username = "user"
password = "hunter2"
passkey = "abcdef"
`, transport)

	tracker, err := Resolve("ptp", deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := tracker.Login(context.Background()); err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	for _, want := range []string{"username=user", "passkey=abcdef", "keeplogged=1"} {
		if !strings.Contains(loginForm, want) {
			t.Errorf("login form missing %q: %s", want, loginForm)
		}
	}
	if token := tracker.(*passThePopcorn).antiCsrfToken; token != "token123" {
		t.Errorf("antiCsrfToken = %q, want token123", token)
	}
}

func TestPassThePopcornLoginRejected(t *testing.T) {
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodGet {
			return response(302, ""), nil
		}
		return response(200, `{"Result":"Error"}`), nil
	})

	deps := testDeps(t, `
[ptp]
username = "user"
password = "hunter2"
passkey = "abcdef"
`, transport)

	tracker, err := Resolve("passthepopcorn", deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := tracker.Login(context.Background()); !errors.Is(err, domain.ErrLoginFailed) {
		t.Fatalf("Login() error = %v, want ErrLoginFailed", err)
	}
}

func TestUploadConfirmHoldsInAutoMode(t *testing.T) {
	deps := testDeps(t, "")
	deps.Prompter = &fakePrompter{confirm: false}

	tracker := newPassThePopcorn(deps)
	tracker.form = &ptpUpload{}

	err := tracker.Upload(context.Background(), &domain.UploadRequest{Auto: true, Confirm: true})
	if err == nil || !strings.Contains(err.Error(), "declined") {
		t.Fatalf("Upload() error = %v, want a decline before anything is submitted", err)
	}
}

func TestNCoreUploadDuplicate(t *testing.T) {
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodPost && strings.Contains(req.URL.Path, "upload.php") {
			return response(200, "<html>"+ncoreDuplicateMarker+"</html>"), nil
		}
		return nil, fmt.Errorf("unexpected request %s %s", req.Method, req.URL)
	})

	deps := testDeps(t, "", transport)
	for _, path := range []string{"/t.torrent", "/01.png", "/02.png", "/03.png"} {
		if err := afero.WriteFile(deps.Fs, path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tracker := newNCore(deps)
	tracker.form = &ncoreUpload{
		Unique:      "u",
		Type:        "hd",
		ReleaseName: "Movie.Name.2020.1080p.BluRay.x264-GRP",
		IMDBID:      "tt0000001",
	}

	err := tracker.Upload(context.Background(), &domain.UploadRequest{
		Item:        &domain.MediaItem{Name: "Movie.Name.2020.1080p.BluRay.x264-GRP"},
		TorrentPath: "/t.torrent",
		Snapshots:   []string{"/01.png", "/02.png", "/03.png"},
	})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("Upload() error = %v, want ErrDuplicate", err)
	}
}
