package trackers

import (
	"reflect"
	"testing"
)

func TestHDBitsCodec(t *testing.T) {
	tests := []struct {
		name    string
		release string
		want    string
		wantErr bool
	}{
		{name: "x264", release: "Movie.2020.1080p.BluRay.x264-GRP", want: "H.264"},
		{name: "avc", release: "Movie.2020.1080p.BluRay.AVC-GRP", want: "H.264"},
		{name: "hevc", release: "Movie.2020.2160p.WEB-DL.HEVC-GRP", want: "HEVC"},
		{name: "x265", release: "Movie.2020.2160p.WEB-DL.x265-GRP", want: "HEVC"},
		{name: "vc-1", release: "Movie.2008.1080p.BluRay.VC-1.REMUX-GRP", want: "VC-1"},
		{name: "xvid", release: "Movie.2004.DVDRip.XviD-GRP", want: "XviD"},
		{name: "unknown", release: "Movie.2020.1080p.BluRay-GRP", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hdbitsCodec(tt.release)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("hdbitsCodec(%q) = %q, want error", tt.release, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("hdbitsCodec(%q) error: %v", tt.release, err)
			}
			if got != tt.want {
				t.Errorf("hdbitsCodec(%q) = %q, want %q", tt.release, got, tt.want)
			}
		})
	}
}

func TestHDBitsMedium(t *testing.T) {
	tests := []struct {
		name    string
		release string
		want    string
		wantErr bool
	}{
		{name: "remux wins over bluray", release: "Movie.2020.1080p.BluRay.REMUX.AVC-GRP", want: "Remux"},
		{name: "bluray", release: "Movie.2020.1080p.BluRay.x264-GRP", want: "Blu-ray/HD-DVD"},
		{name: "brrip", release: "Movie.2020.1080p.BRRip.x264-GRP", want: "Blu-ray/HD-DVD"},
		{name: "hdtv", release: "Show.S01E01.720p.HDTV.x264-GRP", want: "Capture"},
		{name: "webrip", release: "Movie.2020.1080p.WEBRip.x264-GRP", want: "Encode"},
		{name: "webdl", release: "Movie.2020.1080p.WEB-DL.x264-GRP", want: "WEB-DL"},
		{name: "bare web", release: "Movie.2020.1080p.WEB.x264-GRP", want: "WEB-DL"},
		{name: "unknown", release: "Movie.2020.1080p.x264-GRP", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hdbitsMedium(tt.release)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("hdbitsMedium(%q) = %q, want error", tt.release, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("hdbitsMedium(%q) error: %v", tt.release, err)
			}
			if got != tt.want {
				t.Errorf("hdbitsMedium(%q) = %q, want %q", tt.release, got, tt.want)
			}
		})
	}
}

func TestHDBitsName(t *testing.T) {
	tests := []struct {
		name    string
		release string
		want    string
	}{
		{
			name:    "streaming service stripped",
			release: "Movie.2020.1080p.AMZN.WEB-DL.DDP5.1.x264-GRP",
			want:    "Movie.2020.1080p.WEB-DL.DDP5.1.x264-GRP",
		},
		{
			name:    "atmos stripped",
			release: "Movie.2020.2160p.BluRay.TrueHD.Atmos.7.1.HEVC-GRP",
			want:    "Movie.2020.2160p.BluRay.TrueHD.7.1.HEVC-GRP",
		},
		{
			name:    "hdr10plus collapses",
			release: "Movie.2020.2160p.WEB-DL.HDR10+.HEVC-GRP",
			want:    "Movie.2020.2160p.WEB-DL.HDR.HEVC-GRP",
		},
		{
			name:    "dv hdr becomes dovi",
			release: "Movie.2020.2160p.WEB-DL.DV.HDR.HEVC-GRP",
			want:    "Movie.2020.2160p.WEB-DL.DoVi.HEVC-GRP",
		},
		{
			name:    "dubbed stripped",
			release: "Movie.2020.1080p.BluRay.DUBBED.x264-GRP",
			want:    "Movie.2020.1080p.BluRay.x264-GRP",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hdbitsName(tt.release); got != tt.want {
				t.Errorf("hdbitsName(%q) = %q, want %q", tt.release, got, tt.want)
			}
		})
	}
}

func TestHDBitsThumbWidth(t *testing.T) {
	tests := []struct {
		rowWidth int
		columns  int
		want     int
	}{
		{900, 2, 350},
		{900, 4, 200},
		{660, 3, 200},
		{300, 3, 100},
	}
	for _, tt := range tests {
		if got := hdbitsThumbWidth(tt.rowWidth, tt.columns); got != tt.want {
			t.Errorf("hdbitsThumbWidth(%d, %d) = %d, want %d", tt.rowWidth, tt.columns, got, tt.want)
		}
	}
}

func TestHDBitsTagIDs(t *testing.T) {
	name := "Movie.2020.2160p.AMZN.WEB-DL.DDP5.1.Atmos.DV.HDR.HEVC-GRP"
	got := hdbitsTagIDs(name)
	want := []int{5, 6, 9, 28}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("hdbitsTagIDs(%q) = %v, want %v", name, got, want)
	}
}
