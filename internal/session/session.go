package session

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"
	requestTimeout   = 60 * time.Second
)

// Options tunes session construction.
type Options struct {
	// Proxy is an optional proxy URL applied to every request.
	Proxy string
	// CookieDir is where the persisted jar lives. Empty disables persistence.
	CookieDir string
	// Fs is the filesystem cookie jars are read from and written to.
	// Defaults to the OS filesystem.
	Fs afero.Fs
	// Transport overrides the underlying round tripper. Proxy settings only
	// apply to the default transport.
	Transport http.RoundTripper
}

// Session is an HTTP client bound to one tracker account: persistent
// cookies, transparent retry and a browser user agent.
type Session struct {
	client      *http.Client
	jar         *Jar
	fs          afero.Fs
	cookiesPath string
	userAgent   string
}

// New builds a session for the named tracker and account. The cookie file is
// keyed by tracker name and a digest of the username so multiple accounts on
// one tracker never share a jar.
func New(name, username string, opts Options) (*Session, error) {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	var transport http.RoundTripper = opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if opts.Proxy != "" {
			proxyURL, err := url.Parse(opts.Proxy)
			if err != nil {
				return nil, fmt.Errorf("parsing proxy url: %w", err)
			}
			t.Proxy = http.ProxyURL(proxyURL)
		}
		transport = t
	}

	jar := NewJar()
	s := &Session{
		client: &http.Client{
			Transport: &retryTransport{base: transport},
			Jar:       jar,
			Timeout:   requestTimeout,
		},
		jar:       jar,
		fs:        fs,
		userAgent: defaultUserAgent,
	}

	if opts.CookieDir != "" {
		digest := sha1.Sum([]byte(username))
		file := fmt.Sprintf("%s_%x.txt", strings.ToLower(name), digest[:4])
		s.cookiesPath = filepath.Join(opts.CookieDir, file)
		if err := jar.Load(fs, s.cookiesPath); err != nil && !os.IsNotExist(err) {
			log.WithFields(log.Fields{
				"path":  s.cookiesPath,
				"error": err,
			}).Warn("Failed to load cookie jar, starting empty")
		}
	}
	return s, nil
}

// Jar exposes the session cookie jar.
func (s *Session) Jar() *Jar {
	return s.jar
}

// HasCookies reports whether any cookies were loaded or set.
func (s *Session) HasCookies() bool {
	return !s.jar.Empty()
}

// SaveCookies persists the jar to disk. A session built without a cookie
// directory is a no-op.
func (s *Session) SaveCookies() error {
	if s.cookiesPath == "" {
		return nil
	}
	return s.jar.Save(s.fs, s.cookiesPath)
}

// Do sends a prepared request with the session user agent.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	return s.client.Do(req)
}

// Get fetches url, following redirects.
func (s *Session) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	return s.Do(req)
}

// GetNoFollow fetches url but returns the first response instead of
// following redirects, so callers can inspect Location headers.
func (s *Session) GetNoFollow(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	client := &http.Client{
		Transport: s.client.Transport,
		Jar:       s.client.Jar,
		Timeout:   s.client.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return client.Do(req)
}

// PostForm submits an application/x-www-form-urlencoded body.
func (s *Session) PostForm(ctx context.Context, url string, form url.Values) (*http.Response, error) {
	body := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.Do(req)
}

// FilePart is one file attached to a multipart upload.
type FilePart struct {
	Field string
	Path  string
	// Data is inline content used instead of reading Path.
	Data []byte
	// Name overrides the filename sent to the server; defaults to the
	// basename of Path.
	Name string
	// ContentType overrides sniffed content detection.
	ContentType string
}

// PostMultipart submits fields and files as multipart/form-data. File
// content types are sniffed when not supplied.
func (s *Session) PostMultipart(ctx context.Context, url string, fields url.Values, files []FilePart) (*http.Response, error) {
	return s.PostMultipartHeaders(ctx, url, nil, fields, files)
}

// PostMultipartHeaders is PostMultipart with extra request headers, for
// hosts wanting bearer tokens or referers.
func (s *Session) PostMultipartHeaders(ctx context.Context, url string, headers map[string]string, fields url.Values, files []FilePart) (*http.Response, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, values := range fields {
		for _, value := range values {
			if err := writer.WriteField(key, value); err != nil {
				return nil, fmt.Errorf("writing form field %q: %w", key, err)
			}
		}
	}
	for _, file := range files {
		if err := s.writeFilePart(writer, file); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return s.Do(req)
}

func (s *Session) writeFilePart(writer *multipart.Writer, file FilePart) error {
	data := file.Data
	if data == nil {
		var err error
		data, err = afero.ReadFile(s.fs, file.Path)
		if err != nil {
			return fmt.Errorf("reading upload file: %w", err)
		}
	}

	name := file.Name
	if name == "" {
		name = filepath.Base(file.Path)
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, name))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("creating multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("writing multipart part: %w", err)
	}
	return nil
}

// Document fetches url and parses the response body as HTML.
func (s *Session) Document(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := s.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ParseDocument(resp)
}

// ParseDocument parses an HTML response body and closes it.
func ParseDocument(resp *http.Response) (*goquery.Document, error) {
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing html response: %w", err)
	}
	return doc, nil
}

// ReadBody drains and closes the response body.
func ReadBody(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}
	return string(data), nil
}

// DecodeJSON decodes the response body into v and closes it.
func DecodeJSON(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding json response: %w", err)
	}
	return nil
}
