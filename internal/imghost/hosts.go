package imghost

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/amaumene/uploadarr/internal/domain"
	"github.com/amaumene/uploadarr/internal/session"
)

// Host uploads snapshot files and returns one URL per file, in order.
type Host interface {
	Name() string
	Upload(ctx context.Context, files []string) ([]string, error)
}

// PTPImg uploads to ptpimg.me with an API key.
type PTPImg struct {
	Session *session.Session
	APIKey  string
}

func (h *PTPImg) Name() string { return "ptpimg" }

func (h *PTPImg) Upload(ctx context.Context, files []string) ([]string, error) {
	if h.APIKey == "" {
		return nil, fmt.Errorf("ptpimg: %w", domain.ErrMissingCredentials)
	}

	var urls []string
	for _, file := range files {
		resp, err := h.Session.PostMultipartHeaders(ctx,
			"https://ptpimg.me/upload.php",
			map[string]string{"Referer": "https://ptpimg.me/index.php"},
			url.Values{"api_key": {h.APIKey}},
			[]session.FilePart{{Field: "file-upload[]", Path: file}},
		)
		if err != nil {
			return nil, fmt.Errorf("uploading to ptpimg: %w", err)
		}

		var results []struct {
			Code string `json:"code"`
			Ext  string `json:"ext"`
		}
		if err := session.DecodeJSON(resp, &results); err != nil {
			return nil, fmt.Errorf("ptpimg response: %w", err)
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("ptpimg returned no image for %s", file)
		}
		urls = append(urls, fmt.Sprintf("https://ptpimg.me/%s.%s", results[0].Code, results[0].Ext))
	}

	log.WithFields(log.Fields{"host": h.Name(), "count": len(urls)}).Info("Uploaded snapshots")
	return urls, nil
}

// KekSH uploads to kek.sh; the API key is optional.
type KekSH struct {
	Session *session.Session
	APIKey  string
}

func (h *KekSH) Name() string { return "keksh" }

func (h *KekSH) Upload(ctx context.Context, files []string) ([]string, error) {
	headers := map[string]string{}
	if h.APIKey != "" {
		headers["x-kek-auth"] = h.APIKey
	}

	var urls []string
	for _, file := range files {
		resp, err := h.Session.PostMultipartHeaders(ctx,
			"https://kek.sh/api/v1/posts", headers, nil,
			[]session.FilePart{{Field: "file", Path: file}},
		)
		if err != nil {
			return nil, fmt.Errorf("uploading to kek.sh: %w", err)
		}

		var result struct {
			Filename string `json:"filename"`
		}
		if err := session.DecodeJSON(resp, &result); err != nil {
			return nil, fmt.Errorf("kek.sh response: %w", err)
		}
		if result.Filename == "" {
			return nil, fmt.Errorf("kek.sh returned no filename for %s", file)
		}
		urls = append(urls, "https://i.kek.sh/"+result.Filename)
	}

	log.WithFields(log.Fields{"host": h.Name(), "count": len(urls)}).Info("Uploaded snapshots")
	return urls, nil
}

// ImgBin uploads to the broadcasthe.net image bin with a bearer token.
type ImgBin struct {
	Session *session.Session
	APIKey  string
}

func (h *ImgBin) Name() string { return "imgbin" }

func (h *ImgBin) Upload(ctx context.Context, files []string) ([]string, error) {
	if h.APIKey == "" {
		return nil, fmt.Errorf("imgbin: %w", domain.ErrMissingCredentials)
	}

	var urls []string
	for _, file := range files {
		resp, err := h.Session.PostMultipartHeaders(ctx,
			"https://imgbin.broadcasthe.net/upload",
			map[string]string{"Authorization": "Bearer " + h.APIKey},
			nil,
			[]session.FilePart{{Field: "file", Path: file}},
		)
		if err != nil {
			return nil, fmt.Errorf("uploading to imgbin: %w", err)
		}

		// Response keys on the uploaded filename; only the hotlink matters.
		var result map[string]struct {
			Hotlink string `json:"hotlink"`
		}
		if err := session.DecodeJSON(resp, &result); err != nil {
			return nil, fmt.Errorf("imgbin response: %w", err)
		}
		var hotlink string
		for _, v := range result {
			hotlink = v.Hotlink
			break
		}
		if hotlink == "" {
			return nil, fmt.Errorf("imgbin returned no hotlink for %s", file)
		}
		urls = append(urls, hotlink)
	}

	log.WithFields(log.Fields{"host": h.Name(), "count": len(urls)}).Info("Uploaded snapshots")
	return urls, nil
}

// HDBImg is the HDBits gallery host. One request uploads every snapshot and
// the response body is a whitespace-separated list of ready-made BBCode
// thumbnail links.
type HDBImg struct {
	Session *session.Session
}

func (h *HDBImg) Name() string { return "hdbimg" }

// UploadGallery uploads files into a named gallery with server-rendered
// thumbnails of the given width.
func (h *HDBImg) UploadGallery(ctx context.Context, files []string, thumbWidth int, galleryName string) ([]string, error) {
	parts := make([]session.FilePart, 0, len(files))
	for i, file := range files {
		parts = append(parts, session.FilePart{
			Field: fmt.Sprintf("images_files[%d]", i),
			Path:  file,
		})
	}

	resp, err := h.Session.PostMultipart(ctx,
		"https://img.hdbits.org/upload_api.php",
		url.Values{
			"thumbsize":     {fmt.Sprintf("w%d", thumbWidth)},
			"galleryoption": {"1"},
			"galleryname":   {galleryName},
		},
		parts,
	)
	if err != nil {
		return nil, fmt.Errorf("uploading gallery: %w", err)
	}

	body, err := session.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(body, "error") {
		msg := strings.TrimPrefix(body, "error: ")
		return nil, fmt.Errorf("gallery upload rejected: %s", strings.TrimSpace(msg))
	}

	links := strings.Fields(body)
	log.WithFields(log.Fields{"host": h.Name(), "count": len(links)}).Info("Uploaded gallery")
	return links, nil
}
