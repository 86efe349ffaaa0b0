package metadata

import (
	"context"
	"fmt"

	"github.com/amaumene/uploadarr/internal/domain"
)

// Result is a catalog match for a release.
type Result struct {
	Title string
	Year  int
	IMDB  string
	TVDB  int64
	Trakt int64
}

// Searcher looks a release up in an external catalog.
type Searcher interface {
	Search(ctx context.Context, release *domain.Release) (*Result, error)
}

// PickByYear selects the best candidate: an exact year match wins,
// otherwise the first candidate is taken.
func PickByYear(candidates []Result, year int) (*Result, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no catalog matches: %w", domain.ErrNoCandidates)
	}
	if year != 0 {
		for i := range candidates {
			if candidates[i].Year == year {
				return &candidates[i], nil
			}
		}
	}
	return &candidates[0], nil
}
