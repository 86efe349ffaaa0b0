package session

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parsing %q: %v", raw, err)
	}
	return u
}

func TestJarDomainAndPathMatching(t *testing.T) {
	jar := NewJar()
	jar.SetCookies(mustParse(t, "https://example.org/"), []*http.Cookie{
		{Name: "session", Value: "abc", Domain: ".example.org", Path: "/"},
		{Name: "scoped", Value: "xyz", Path: "/forum"},
	})

	tests := []struct {
		name string
		url  string
		want []string
	}{
		{
			name: "root path gets only root cookie",
			url:  "https://example.org/",
			want: []string{"session"},
		},
		{
			name: "subdomain matches dot-prefixed domain",
			url:  "https://tracker.example.org/",
			want: []string{"session"},
		},
		{
			name: "path-scoped cookie needs matching prefix",
			url:  "https://example.org/forum/thread",
			want: []string{"scoped", "session"},
		},
		{
			name: "unrelated domain gets nothing",
			url:  "https://other.org/",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jar.Cookies(mustParse(t, tt.url))
			var names []string
			for _, c := range got {
				names = append(names, c.Name)
			}
			if len(names) != len(tt.want) {
				t.Fatalf("Cookies(%s) = %v, want %v", tt.url, names, tt.want)
			}
			for i := range names {
				if names[i] != tt.want[i] {
					t.Errorf("Cookies(%s)[%d] = %q, want %q", tt.url, i, names[i], tt.want[i])
				}
			}
		})
	}
}

func TestJarKeepsExpiredCookies(t *testing.T) {
	fs := afero.NewMemMapFs()
	jar := NewJar()
	jar.SetCookies(mustParse(t, "https://example.org/"), []*http.Cookie{
		{Name: "stale", Value: "v", Expires: time.Now().Add(-24 * time.Hour)},
	})
	if err := jar.Save(fs, "/cookies/example.txt"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded := NewJar()
	if err := loaded.Load(fs, "/cookies/example.txt"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cookies := loaded.Cookies(mustParse(t, "https://example.org/"))
	if len(cookies) != 1 || cookies[0].Name != "stale" {
		t.Fatalf("expired cookie not preserved through save/load, got %v", cookies)
	}
}

func TestJarSaveRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	jar := NewJar()
	jar.SetCookies(mustParse(t, "https://example.org/"), []*http.Cookie{
		{Name: "uid", Value: "42", Domain: ".example.org", Path: "/", Secure: true},
	})
	if err := jar.Save(fs, "/cookies/example.txt"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := afero.ReadFile(fs, "/cookies/example.txt")
	if err != nil {
		t.Fatalf("reading saved jar: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# Netscape HTTP Cookie File") {
		t.Errorf("saved jar missing magic header:\n%s", content)
	}
	if !strings.Contains(content, ".example.org\tTRUE\t/\tTRUE\t") {
		t.Errorf("saved jar missing cookie line:\n%s", content)
	}

	if exists, _ := afero.Exists(fs, "/cookies/example.txt.tmp"); exists {
		t.Error("temporary file left behind after save")
	}
}

func TestJarRewriteDomain(t *testing.T) {
	jar := NewJar()
	jar.SetCookies(mustParse(t, "https://primary.net/"), []*http.Cookie{
		{Name: "session", Value: "abc", Domain: ".primary.net"},
	})
	jar.RewriteDomain("primary.net", "backup.example.tv")

	if got := jar.Cookies(mustParse(t, "https://backup.example.tv/")); len(got) != 1 {
		t.Fatalf("rewritten cookie not served for new domain, got %v", got)
	}
	if got := jar.Cookies(mustParse(t, "https://primary.net/")); len(got) != 0 {
		t.Fatalf("cookie still served for old domain after rewrite, got %v", got)
	}
}

func TestJarDeletesOnNegativeMaxAge(t *testing.T) {
	u := mustParse(t, "https://example.org/")
	jar := NewJar()
	jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: "abc"}})
	jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: "gone", MaxAge: -1}})

	if got := jar.Cookies(u); len(got) != 0 {
		t.Fatalf("cookie survived deletion, got %v", got)
	}
}
