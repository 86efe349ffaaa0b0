package session

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestSession(t *testing.T, rt roundTripFunc) *Session {
	t.Helper()
	prev := retryBaseDelay
	retryBaseDelay = 0
	t.Cleanup(func() { retryBaseDelay = prev })
	s, err := New("testtracker", "user", Options{Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.client.Transport = &retryTransport{base: rt}
	return s
}

func TestRetryTransportRetriesTransientStatuses(t *testing.T) {
	var calls int
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return textResponse(http.StatusServiceUnavailable, ""), nil
		}
		return textResponse(http.StatusOK, "ok"), nil
	})

	resp, err := s.Get(context.Background(), "https://example.org/")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	body, err := ReadBody(resp)
	if err != nil {
		t.Fatalf("ReadBody() error = %v", err)
	}
	if body != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}
	if calls != 3 {
		t.Errorf("transport called %d times, want 3", calls)
	}
}

func TestRetryTransportGivesUpAfterAttempts(t *testing.T) {
	var calls int
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		calls++
		return textResponse(http.StatusBadGateway, ""), nil
	})

	if _, err := s.Get(context.Background(), "https://example.org/"); err == nil {
		t.Fatal("Get() error = nil, want retry exhaustion error")
	}
	if calls != retryAttempts {
		t.Errorf("transport called %d times, want %d", calls, retryAttempts)
	}
}

func TestRetryTransportDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		calls++
		return textResponse(http.StatusForbidden, ""), nil
	})

	resp, err := s.Get(context.Background(), "https://example.org/")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403 passed through", resp.StatusCode)
	}
	if calls != 1 {
		t.Errorf("transport called %d times, want 1", calls)
	}
}

func TestPostFormBodyRewoundBetweenRetries(t *testing.T) {
	var bodies []string
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		data, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(data))
		if len(bodies) < 2 {
			return textResponse(http.StatusTooManyRequests, ""), nil
		}
		return textResponse(http.StatusOK, ""), nil
	})

	form := map[string][]string{"username": {"someone"}}
	resp, err := s.PostForm(context.Background(), "https://example.org/login", form)
	if err != nil {
		t.Fatalf("PostForm() error = %v", err)
	}
	resp.Body.Close()

	if len(bodies) != 2 {
		t.Fatalf("transport called %d times, want 2", len(bodies))
	}
	for i, body := range bodies {
		if body != "username=someone" {
			t.Errorf("attempt %d body = %q, want full form body", i+1, body)
		}
	}
}

func TestPostMultipartAttachesFilesWithSniffedType(t *testing.T) {
	fs := afero.NewMemMapFs()
	pngHeader := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	if err := afero.WriteFile(fs, "/snaps/01.png", pngHeader, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	var captured *http.Request
	var body []byte
	s, err := New("testtracker", "user", Options{Fs: fs})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.client.Transport = &retryTransport{base: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		body, _ = io.ReadAll(req.Body)
		return textResponse(http.StatusOK, ""), nil
	})}

	fields := map[string][]string{"gallery": {"Some.Release"}}
	files := []FilePart{{Field: "images[]", Path: "/snaps/01.png"}}
	resp, err := s.PostMultipart(context.Background(), "https://img.example.org/upload", fields, files)
	if err != nil {
		t.Fatalf("PostMultipart() error = %v", err)
	}
	resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(captured.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("Content-Type = %q, err = %v", captured.Header.Get("Content-Type"), err)
	}
	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])

	var sawField, sawFile bool
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading multipart body: %v", err)
		}
		switch part.FormName() {
		case "gallery":
			sawField = true
		case "images[]":
			sawFile = true
			if part.FileName() != "01.png" {
				t.Errorf("filename = %q, want 01.png", part.FileName())
			}
			if ct := part.Header.Get("Content-Type"); ct != "image/png" {
				t.Errorf("part content type = %q, want image/png", ct)
			}
		}
	}
	if !sawField || !sawFile {
		t.Errorf("multipart body missing parts: field=%v file=%v", sawField, sawFile)
	}
}

func TestCookiePathKeyedByAccount(t *testing.T) {
	fs := afero.NewMemMapFs()
	a, err := New("HDBits", "alice", Options{Fs: fs, CookieDir: "/data/cookies"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b, err := New("HDBits", "bob", Options{Fs: fs, CookieDir: "/data/cookies"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if a.cookiesPath == b.cookiesPath {
		t.Errorf("different accounts share cookie path %q", a.cookiesPath)
	}
	if !strings.HasPrefix(strings.TrimPrefix(a.cookiesPath, "/data/cookies/"), "hdbits_") {
		t.Errorf("cookie path %q not keyed by lowercased tracker name", a.cookiesPath)
	}
}
