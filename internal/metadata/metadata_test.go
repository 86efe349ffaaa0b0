package metadata

import (
	"errors"
	"testing"

	"github.com/amaumene/uploadarr/internal/domain"
)

func TestPickByYear(t *testing.T) {
	candidates := []Result{
		{Title: "Remake", Year: 2019, IMDB: "tt0000001"},
		{Title: "Original", Year: 1975, IMDB: "tt0000002"},
		{Title: "Other", Year: 2019, IMDB: "tt0000003"},
	}

	tests := []struct {
		name     string
		year     int
		wantIMDB string
	}{
		{
			name:     "exact year wins over order",
			year:     1975,
			wantIMDB: "tt0000002",
		},
		{
			name:     "first of equal-year matches",
			year:     2019,
			wantIMDB: "tt0000001",
		},
		{
			name:     "no year falls back to first candidate",
			year:     0,
			wantIMDB: "tt0000001",
		},
		{
			name:     "unmatched year falls back to first candidate",
			year:     1999,
			wantIMDB: "tt0000001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PickByYear(candidates, tt.year)
			if err != nil {
				t.Fatalf("PickByYear() error = %v", err)
			}
			if got.IMDB != tt.wantIMDB {
				t.Errorf("PickByYear(year=%d) = %s, want %s", tt.year, got.IMDB, tt.wantIMDB)
			}
		})
	}
}

func TestPickByYearEmpty(t *testing.T) {
	_, err := PickByYear(nil, 2020)
	if !errors.Is(err, domain.ErrNoCandidates) {
		t.Errorf("PickByYear(nil) error = %v, want ErrNoCandidates", err)
	}
}
