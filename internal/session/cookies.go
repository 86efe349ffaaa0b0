package session

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Jar is a serializable cookie jar in Mozilla cookies.txt format. Unlike
// net/http/cookiejar it can enumerate its cookies for persistence and does
// not drop entries whose expiry lies in the past: the tracker is the source
// of truth on cookie validity, not the local clock.
type Jar struct {
	mu      sync.Mutex
	cookies map[string]*entry
}

type entry struct {
	Domain  string
	Path    string
	Secure  bool
	Expires int64
	Name    string
	Value   string
}

// NewJar returns an empty jar.
func NewJar() *Jar {
	return &Jar{cookies: make(map[string]*entry)}
}

func (e *entry) key() string {
	return e.Domain + "\x00" + e.Path + "\x00" + e.Name
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, c := range cookies {
		domain := c.Domain
		if domain == "" {
			domain = u.Hostname()
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		e := &entry{
			Domain: strings.ToLower(domain),
			Path:   path,
			Secure: c.Secure,
			Name:   c.Name,
			Value:  c.Value,
		}
		if !c.Expires.IsZero() {
			e.Expires = c.Expires.Unix()
		}
		if c.MaxAge < 0 || c.Value == "" {
			delete(j.cookies, e.key())
			continue
		}
		j.cookies[e.key()] = e
	}
}

// Cookies implements http.CookieJar. Matching is by domain suffix and path
// prefix; expiry is deliberately ignored.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	host := strings.ToLower(u.Hostname())
	path := u.Path
	if path == "" {
		path = "/"
	}

	var matched []*entry
	for _, e := range j.cookies {
		if !domainMatch(host, e.Domain) {
			continue
		}
		if !strings.HasPrefix(path, e.Path) {
			continue
		}
		if e.Secure && u.Scheme != "https" {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(a, b int) bool {
		if len(matched[a].Path) != len(matched[b].Path) {
			return len(matched[a].Path) > len(matched[b].Path)
		}
		return matched[a].Name < matched[b].Name
	})

	out := make([]*http.Cookie, 0, len(matched))
	for _, e := range matched {
		out = append(out, &http.Cookie{Name: e.Name, Value: e.Value})
	}
	return out
}

func domainMatch(host, domain string) bool {
	domain = strings.TrimPrefix(domain, ".")
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// All returns every stored cookie, for tests and diagnostics.
func (j *Jar) All() []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]*http.Cookie, 0, len(j.cookies))
	for _, e := range j.cookies {
		out = append(out, &http.Cookie{
			Name:   e.Name,
			Value:  e.Value,
			Domain: e.Domain,
			Path:   e.Path,
			Secure: e.Secure,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Empty reports whether the jar holds no cookies at all.
func (j *Jar) Empty() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.cookies) == 0
}

// RewriteDomain replaces from with to in every cookie domain. Some sites
// accept cookies issued for a sibling domain.
func (j *Jar) RewriteDomain(from, to string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rewritten := make(map[string]*entry, len(j.cookies))
	for _, e := range j.cookies {
		e.Domain = strings.Replace(e.Domain, from, to, 1)
		rewritten[e.key()] = e
	}
	j.cookies = rewritten
}

const cookieHeader = "# Netscape HTTP Cookie File\n"

// Load merges the cookies.txt file at path into the jar. Expired entries
// are kept.
func (j *Jar) Load(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("opening cookie file: %w", err)
	}
	defer f.Close()

	j.mu.Lock()
	defer j.mu.Unlock()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			continue
		}
		expires, _ := strconv.ParseInt(fields[4], 10, 64)
		e := &entry{
			Domain:  strings.ToLower(fields[0]),
			Path:    fields[2],
			Secure:  fields[3] == "TRUE",
			Expires: expires,
			Name:    fields[5],
			Value:   fields[6],
		}
		j.cookies[e.key()] = e
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading cookie file: %w", err)
	}
	return nil
}

// Save writes the jar to path in cookies.txt format. The write goes through
// a temporary file renamed into place so an interrupted save never clobbers
// a previously valid jar.
func (j *Jar) Save(fs afero.Fs, path string) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cookie dir: %w", err)
	}

	j.mu.Lock()
	entries := make([]*entry, 0, len(j.cookies))
	for _, e := range j.cookies {
		entries = append(entries, e)
	}
	j.mu.Unlock()

	sort.Slice(entries, func(a, b int) bool { return entries[a].key() < entries[b].key() })

	var b strings.Builder
	b.WriteString(cookieHeader)
	for _, e := range entries {
		includeSub := "FALSE"
		if strings.HasPrefix(e.Domain, ".") {
			includeSub = "TRUE"
		}
		secure := "FALSE"
		if e.Secure {
			secure = "TRUE"
		}
		expires := e.Expires
		if expires == 0 {
			// Session cookies still get persisted; give them a far future
			// expiry so other tools keep them too.
			expires = time.Now().Add(365 * 24 * time.Hour).Unix()
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.Domain, includeSub, e.Path, secure, expires, e.Name, e.Value)
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing cookie file: %w", err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing cookie file: %w", err)
	}
	return nil
}
