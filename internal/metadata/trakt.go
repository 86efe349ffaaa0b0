package metadata

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jacklaaa89/trakt"
	"github.com/jacklaaa89/trakt/search"
	log "github.com/sirupsen/logrus"

	"github.com/amaumene/uploadarr/internal/domain"
)

// TraktSearcher resolves releases through the Trakt catalog.
type TraktSearcher struct{}

// NewTraktSearcher configures the Trakt client with the given API key.
func NewTraktSearcher(apiKey string) *TraktSearcher {
	trakt.Key = apiKey
	trakt.WithConfig(&trakt.BackendConfig{
		MaxNetworkRetries: 3,
		HTTPClient: &http.Client{
			Timeout: 80 * time.Second,
		},
	})
	return &TraktSearcher{}
}

// Search implements Searcher. Movies resolve to an IMDb id, shows to a TVDB
// id; candidates are disambiguated by release year.
func (s *TraktSearcher) Search(ctx context.Context, release *domain.Release) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	searchType := trakt.TypeShow
	if release.IsMovie() {
		searchType = trakt.TypeMovie
	}

	log.WithFields(log.Fields{
		"title": release.Title,
		"year":  release.Year,
		"type":  string(searchType),
	}).Info("Searching catalog")

	it := search.TextQuery(&trakt.SearchQueryParams{
		Type:  searchType,
		Query: release.Title,
	})

	var candidates []Result
	for it.Next() {
		r, err := it.Result()
		if err != nil {
			return nil, fmt.Errorf("reading search result: %w", err)
		}
		if c, ok := toResult(r); ok {
			candidates = append(candidates, c)
		}
		if len(candidates) >= 10 {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("searching catalog for %q: %w", release.Title, err)
	}

	picked, err := PickByYear(candidates, int(release.Year))
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", release.Title, err)
	}

	log.WithFields(log.Fields{
		"title": picked.Title,
		"year":  picked.Year,
		"imdb":  picked.IMDB,
		"tvdb":  picked.TVDB,
	}).Info("Resolved catalog match")

	return picked, nil
}

func toResult(r *trakt.SearchResult) (Result, bool) {
	switch {
	case r.Movie != nil:
		return Result{
			Title: r.Movie.Title,
			Year:  int(r.Movie.Year),
			IMDB:  string(r.Movie.IMDB),
			Trakt: int64(r.Movie.Trakt),
		}, true
	case r.Show != nil:
		return Result{
			Title: r.Show.Title,
			Year:  int(r.Show.Year),
			IMDB:  string(r.Show.IMDB),
			TVDB:  int64(r.Show.TVDB),
			Trakt: int64(r.Show.Trakt),
		}, true
	}
	return Result{}, false
}
