package release

import (
	"errors"
	"testing"

	"github.com/amaumene/uploadarr/internal/domain"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		release string
		want    domain.Release
	}{
		{
			name:    "single episode",
			release: "Show.Name.S02E05.1080p.WEB.mkv",
			want: domain.Release{
				Kind:    domain.KindEpisode,
				Title:   "Show Name",
				Season:  2,
				Episode: 5,
			},
		},
		{
			name:    "double episode reports the first",
			release: "Show.Name.S01E01E02.1080p.WEB.mkv",
			want: domain.Release{
				Kind:    domain.KindEpisode,
				Title:   "Show Name",
				Season:  1,
				Episode: 1,
			},
		},
		{
			name:    "movie with year",
			release: "Movie.Name.2020.1080p.BluRay.mkv",
			want: domain.Release{
				Kind:  domain.KindMovie,
				Title: "Movie Name",
				Year:  2020,
			},
		},
		{
			name:    "season pack",
			release: "Show.Name.S03.2160p.WEB-DL.x265",
			want: domain.Release{
				Kind:   domain.KindSeason,
				Title:  "Show Name",
				Season: 3,
			},
		},
		{
			name:    "multi season pack",
			release: "Show.Name.S01-S03.1080p.BluRay.x264",
			want: domain.Release{
				Kind:   domain.KindSeries,
				Title:  "Show Name",
				Season: 1,
			},
		},
		{
			name:    "show with year before season",
			release: "Show.Name.2019.S01E01.720p.WEB.mkv",
			want: domain.Release{
				Kind:    domain.KindEpisode,
				Title:   "Show Name",
				Year:    2019,
				Season:  1,
				Episode: 1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.release)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.release, err)
			}
			if got.Kind != tt.want.Kind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.want.Kind)
			}
			if got.Title != tt.want.Title {
				t.Errorf("Title = %q, want %q", got.Title, tt.want.Title)
			}
			if got.Year != tt.want.Year {
				t.Errorf("Year = %d, want %d", got.Year, tt.want.Year)
			}
			if got.Season != tt.want.Season {
				t.Errorf("Season = %d, want %d", got.Season, tt.want.Season)
			}
			if got.Episode != tt.want.Episode {
				t.Errorf("Episode = %d, want %d", got.Episode, tt.want.Episode)
			}
		})
	}
}

func TestParseTechnicalAttributes(t *testing.T) {
	got, err := Parse("Movie.Name.2020.1080p.BluRay.x264-GROUP.mkv")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Resolution != "1080p" {
		t.Errorf("Resolution = %q, want 1080p", got.Resolution)
	}
	if got.Source == "" {
		t.Error("Source empty, want a bluray source tag")
	}
	if got.Codec == "" {
		t.Error("Codec empty, want an x264 codec tag")
	}
}

func TestParseUnknownRelease(t *testing.T) {
	_, err := Parse("not-a-release")
	if !errors.Is(err, domain.ErrUnknownRelease) {
		t.Errorf("Parse() error = %v, want ErrUnknownRelease", err)
	}
}
