package domain

// ReleaseKind classifies what a release name describes.
type ReleaseKind string

const (
	KindMovie   ReleaseKind = "movie"
	KindEpisode ReleaseKind = "episode"
	KindSeason  ReleaseKind = "season"
	KindSeries  ReleaseKind = "series"
)

// Release holds everything derivable from a release name alone.
// Season and Episode are zero when not applicable to the kind.
type Release struct {
	Name       string
	Kind       ReleaseKind
	Title      string
	Year       int64
	Season     int64
	Episode    int64
	Resolution string
	Source     string
	Codec      string
	Group      string
}

// IsMovie reports whether the release is a feature rather than TV content.
func (r *Release) IsMovie() bool {
	return r.Kind == KindMovie
}
