package imghost

import "strings"

// Image is one hosted snapshot: the full-size link and optionally a
// thumbnail to embed instead.
type Image struct {
	URL      string
	ThumbURL string
}

// Grid lays hosted images out in rows of the given column count, BBCode
// style: thumbnails linked to the full image, a line break after every full
// row. A non-positive column count yields a single row.
func Grid(images []Image, columns int) string {
	var b strings.Builder
	for i, img := range images {
		if img.ThumbURL != "" {
			b.WriteString("[url=")
			b.WriteString(img.URL)
			b.WriteString("][img]")
			b.WriteString(img.ThumbURL)
			b.WriteString("[/img][/url]")
		} else {
			b.WriteString("[img]")
			b.WriteString(img.URL)
			b.WriteString("[/img]")
		}
		if columns > 0 && (i+1)%columns == 0 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Links renders bare URLs with the same row layout, for trackers that
// expect plain links instead of BBCode.
func Links(urls []string, columns int) string {
	var b strings.Builder
	for i, u := range urls {
		b.WriteString(u)
		if columns > 0 && (i+1)%columns == 0 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
	return strings.TrimRight(b.String(), " ")
}
