package release

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	tnp "github.com/ProfChaos/torrent-name-parser"

	"github.com/amaumene/uploadarr/internal/domain"
)

var (
	// Multi-episode names like S01E01E02 report the first episode.
	episodeRe     = regexp.MustCompile(`(?i)\.S(\d+)E(\d+)(?:E\d+)*\.`)
	seasonRe      = regexp.MustCompile(`(?i)\.S(\d+)\.`)
	multiSeasonRe = regexp.MustCompile(`(?i)\.S(\d+)-S?(\d+)\.`)

	// Title runs up to the season marker for shows, or through the year for
	// movies.
	showTitleRe  = regexp.MustCompile(`(?i)^(.+?)\.S\d+(?:E\d+|\.|-)`)
	movieTitleRe = regexp.MustCompile(`^(.+?\.(\d{4}))\.`)

	trailingYearRe = regexp.MustCompile(`\.(\d{4})$`)
)

// Parse classifies name and extracts its attributes. Names that fit neither
// the show nor the movie shape return domain.ErrUnknownRelease.
func Parse(name string) (*domain.Release, error) {
	r := &domain.Release{Name: name}

	switch {
	case multiSeasonRe.MatchString(name):
		r.Kind = domain.KindSeries
		m := multiSeasonRe.FindStringSubmatch(name)
		r.Season, _ = strconv.ParseInt(m[1], 10, 64)
	case episodeRe.MatchString(name):
		r.Kind = domain.KindEpisode
		m := episodeRe.FindStringSubmatch(name)
		r.Season, _ = strconv.ParseInt(m[1], 10, 64)
		r.Episode, _ = strconv.ParseInt(m[2], 10, 64)
	case seasonRe.MatchString(name):
		r.Kind = domain.KindSeason
		m := seasonRe.FindStringSubmatch(name)
		r.Season, _ = strconv.ParseInt(m[1], 10, 64)
	default:
		r.Kind = domain.KindMovie
	}

	if r.IsMovie() {
		m := movieTitleRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("classifying %q: %w", name, domain.ErrUnknownRelease)
		}
		r.Year, _ = strconv.ParseInt(m[2], 10, 64)
		r.Title = cleanTitle(strings.TrimSuffix(m[1], "."+m[2]))
	} else {
		m := showTitleRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("classifying %q: %w", name, domain.ErrUnknownRelease)
		}
		title := m[1]
		if ym := trailingYearRe.FindStringSubmatch(title); ym != nil {
			r.Year, _ = strconv.ParseInt(ym[1], 10, 64)
			title = strings.TrimSuffix(title, "."+ym[1])
		}
		r.Title = cleanTitle(title)
	}

	parsed, err := tnp.ParseName(name)
	if err == nil {
		r.Resolution = string(parsed.Resolution)
		r.Source = string(parsed.Source)
		r.Codec = string(parsed.Codec)
		r.Group = parsed.Group
	}

	return r, nil
}

func cleanTitle(raw string) string {
	return strings.Join(strings.Split(raw, "."), " ")
}
