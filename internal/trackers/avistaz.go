package trackers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/amaumene/uploadarr/internal/domain"
	"github.com/amaumene/uploadarr/internal/release"
	"github.com/amaumene/uploadarr/internal/session"
)

func init() {
	Register(func(d Deps) domain.Tracker {
		t := newAvistaZNetwork(d, "AvistaZ", "AvZ")
		t.yearInSeriesName = true
		t.keepDubbedDualTags = true
		return t
	}, "AvistaZ", "AvZ")
	Register(func(d Deps) domain.Tracker {
		return newAvistaZNetwork(d, "CinemaZ", "CZ")
	}, "CinemaZ", "CZ")
}

// collection ids the network uses for non-movie uploads.
var avistazCollections = map[domain.ReleaseKind]string{
	domain.KindEpisode: "1",
	domain.KindSeason:  "2",
	domain.KindSeries:  "3",
}

const avistazMaxCaptchaAttempts = 5

// avistaZNetwork drives the shared upload flow of the AvistaZ family of
// sites. The sites differ only in domain and branding.
type avistaZNetwork struct {
	deps    Deps
	name    string
	abbrev  string
	sess    *session.Session
	sessErr error

	// yearInSeriesName marks sites that keep the year as part of a series
	// title, so searches must include it.
	yearInSeriesName bool
	// keepDubbedDualTags marks sites whose display names keep the
	// DUBBED/DUAL markers instead of stripping them.
	keepDubbedDualTags bool

	// prepare output consumed by Upload
	uploadURL string
	form      *avistazUpload
}

// avistazUpload is the final submission form.
type avistazUpload struct {
	Token           string
	InfoHash        string
	TypeID          string
	TaskID          string
	FileName        string
	MovieID         string
	RipTypeID       string
	VideoQualityID  string
	VideoResolution string
	TVCollection    string
	TVSeason        string
	TVEpisode       string
	Languages       []string
	Subtitles       []string
	Screenshots     []string
	MediaInfo       string
	Anonymous       bool
}

func (f *avistazUpload) validate() error {
	switch {
	case f.Token == "":
		return fmt.Errorf("missing csrf token")
	case f.InfoHash == "":
		return fmt.Errorf("missing info hash")
	case f.MovieID == "":
		return fmt.Errorf("missing movie id")
	case f.RipTypeID == "":
		return fmt.Errorf("missing rip type")
	case f.VideoQualityID == "":
		return fmt.Errorf("missing video quality")
	}
	return nil
}

func (f *avistazUpload) values() url.Values {
	v := url.Values{
		"_token":           {f.Token},
		"info_hash":        {f.InfoHash},
		"torrent_id":       {""},
		"type_id":          {f.TypeID},
		"task_id":          {f.TaskID},
		"file_name":        {f.FileName},
		"description":      {""},
		"qqfile":           {""},
		"rip_type_id":      {f.RipTypeID},
		"video_quality_id": {f.VideoQualityID},
		"video_resolution": {f.VideoResolution},
		"movie_id":         {f.MovieID},
		"media_info":       {f.MediaInfo},
	}
	if f.Anonymous {
		v.Set("anon_upload", "1")
	}
	if f.TVCollection != "" {
		v.Set("tv_collection", f.TVCollection)
		v.Set("tv_season", f.TVSeason)
		v.Set("tv_episode", f.TVEpisode)
	}
	for _, s := range f.Screenshots {
		v.Add("screenshots[]", s)
	}
	for _, l := range f.Languages {
		v.Add("languages[]", l)
	}
	for _, s := range f.Subtitles {
		v.Add("subtitles[]", s)
	}
	return v
}

func newAvistaZNetwork(deps Deps, name, abbrev string) *avistaZNetwork {
	t := &avistaZNetwork{deps: deps, name: name, abbrev: abbrev}
	t.sess, t.sessErr = deps.session(t)
	return t
}

func (t *avistaZNetwork) Name() string   { return t.name }
func (t *avistaZNetwork) Abbrev() string { return t.abbrev }

func (t *avistaZNetwork) baseURL() string {
	return fmt.Sprintf("https://%s.to", strings.ToLower(t.name))
}

func (t *avistaZNetwork) AnnounceURL() string {
	return fmt.Sprintf("https://tracker.%s.to/{passkey}/announce", strings.ToLower(t.name))
}

func (t *avistaZNetwork) Source() string { return "" }

func (t *avistaZNetwork) Options() domain.Options {
	return domain.Options{MinSnapshots: 3}
}

func (t *avistaZNetwork) PersistCookies() error {
	if t.sess == nil {
		return nil
	}
	return t.sess.SaveCookies()
}

// Passkey scrapes the account page for the personal announce id.
func (t *avistaZNetwork) Passkey(ctx context.Context) (string, error) {
	doc, err := t.sess.Document(ctx, t.baseURL()+"/account")
	if err != nil {
		return "", err
	}
	passkey := strings.TrimSpace(doc.Find(".current_pid").Text())
	if passkey == "" {
		return "", fmt.Errorf("%s: %w", t.name, domain.ErrMissingPasskey)
	}
	return passkey, nil
}

func (t *avistaZNetwork) Login(ctx context.Context) error {
	if t.sessErr != nil {
		return t.sessErr
	}

	resp, err := t.sess.GetNoFollow(ctx, t.baseURL()+"/account")
	if err != nil {
		return fmt.Errorf("checking %s session: %w", t.name, err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.logInfo("Existing session still valid")
		return nil
	}

	t.logInfo("Cookies missing or expired, logging in")

	username, password, err := t.deps.credentials(t)
	if err != nil {
		return err
	}
	captchaKey := t.deps.Config.GetString(t, "2captcha_api_key", "")
	if captchaKey == "" {
		return fmt.Errorf("%s: no 2captcha_api_key configured: %w", t.name, domain.ErrMissingCredentials)
	}
	solver := newCaptchaSolver(t.sess, captchaKey)

	var landed *http.Response
	for attempt := 1; ; attempt++ {
		doc, err := t.sess.Document(ctx, t.baseURL()+"/auth/login")
		if err != nil {
			return fmt.Errorf("loading login page: %w", err)
		}
		token, _ := doc.Find("input[name='_token']").Attr("value")
		captchaURL, ok := doc.Find(".img-captcha").Attr("src")
		if !ok {
			return fmt.Errorf("%s login page without captcha image: %w", t.name, domain.ErrLoginFailed)
		}

		imgResp, err := t.sess.Get(ctx, captchaURL)
		if err != nil {
			return fmt.Errorf("fetching captcha image: %w", err)
		}
		image, err := io.ReadAll(imgResp.Body)
		imgResp.Body.Close()
		if err != nil {
			return fmt.Errorf("reading captcha image: %w", err)
		}

		answer, captchaID, err := solver.Solve(ctx, image)
		if err != nil {
			return err
		}

		resp, err := t.sess.PostForm(ctx, t.baseURL()+"/auth/login", url.Values{
			"_token":         {token},
			"email_username": {username},
			"password":       {password},
			"captcha":        {answer},
		})
		if err != nil {
			return fmt.Errorf("submitting login: %w", err)
		}
		body, err := session.ReadBody(resp)
		if err != nil {
			return err
		}

		finalURL := resp.Request.URL.String()
		if strings.Contains(finalURL, "/captcha") || strings.Contains(body, "Verification failed. You might be a robot!") {
			solver.Report(ctx, captchaID, false)
			if attempt >= avistazMaxCaptchaAttempts {
				return fmt.Errorf("%s: captcha rejected %d times: %w", t.name, attempt, domain.ErrLoginFailed)
			}
			t.logWarn("Captcha answer rejected, retrying")
			continue
		}
		solver.Report(ctx, captchaID, true)

		if strings.Contains(finalURL, "/auth/twofa") {
			landed, err = t.submitTwoFA(ctx, finalURL, body)
			if err != nil {
				return err
			}
			finalURL = landed.Request.URL.String()
			landed.Body.Close()
			if strings.Contains(finalURL, "/auth/twofa") {
				return fmt.Errorf("%s: totp code rejected: %w", t.name, domain.ErrLoginFailed)
			}
		}
		if strings.TrimSuffix(finalURL, "/") != t.baseURL() {
			return fmt.Errorf("%s: login landed on %s: %w", t.name, finalURL, domain.ErrLoginFailed)
		}
		break
	}

	if err := t.sess.SaveCookies(); err != nil {
		return fmt.Errorf("saving %s cookies: %w", t.name, err)
	}
	t.logInfo("Logged in")
	return nil
}

func (t *avistaZNetwork) submitTwoFA(ctx context.Context, twofaURL, body string) (*http.Response, error) {
	t.logInfo("2FA challenge detected")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing 2fa page: %w", err)
	}
	token, _ := doc.Find("input[name='_token']").Attr("value")

	code, err := t.deps.twoFACode(t)
	if err != nil {
		return nil, err
	}
	resp, err := t.sess.PostForm(ctx, twofaURL, url.Values{
		"_token":     {token},
		"twofa_code": {code},
	})
	if err != nil {
		return nil, fmt.Errorf("submitting 2fa code: %w", err)
	}
	return resp, nil
}

func (t *avistaZNetwork) Prepare(ctx context.Context, req *domain.UploadRequest) error {
	rel, err := release.Parse(req.Item.Name)
	if err != nil {
		return err
	}

	doc, err := t.sess.Document(ctx, t.baseURL())
	if err != nil {
		return fmt.Errorf("loading %s home: %w", t.name, err)
	}
	token, _ := doc.Find(`meta[name="_token"]`).Attr("content")

	movieID, err := t.searchTitle(ctx, rel)
	if err != nil {
		return err
	}

	typeID := "1"
	if !rel.IsMovie() {
		typeID = "2"
	}

	if !req.Auto || req.Confirm {
		ok, err := t.deps.Prompter.Confirm(fmt.Sprintf("Continue with %s upload", t.name))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s upload declined", t.name)
		}
	}

	uploadPath := "movie"
	if !rel.IsMovie() {
		uploadPath = "tv"
	}
	uploadPage := fmt.Sprintf("%s/upload/%s", t.baseURL(), uploadPath)
	resp, err := t.sess.PostMultipartHeaders(ctx, uploadPage,
		map[string]string{"Referer": uploadPage},
		url.Values{
			"_token":     {token},
			"type_id":    {typeID},
			"movie_id":   {movieID},
			"media_info": {firstOrEmpty(req.MediaInfo)},
		},
		[]session.FilePart{{
			Field:       "torrent_file",
			Path:        req.TorrentPath,
			ContentType: "application/x-bittorrent",
		}},
	)
	if err != nil {
		return fmt.Errorf("starting %s upload task: %w", t.name, err)
	}
	t.uploadURL = resp.Request.URL.String()
	page, err := session.ParseDocument(resp)
	if err != nil {
		return err
	}

	if errs := page.Find(".form-error"); errs.Length() > 0 {
		var msgs []string
		errs.Each(func(_ int, s *goquery.Selection) {
			msgs = append(msgs, strings.TrimSpace(s.Text()))
		})
		return fmt.Errorf("%s rejected upload task: %s: %w", t.name, strings.Join(msgs, "; "), domain.ErrRejected)
	}

	screenshots, err := t.uploadSnapshots(ctx, token, req.Snapshots)
	if err != nil {
		return err
	}

	infoHash, _ := page.Find(`input[name="info_hash"]`).Attr("value")
	ripType, _ := page.Find(`select[name="rip_type_id"] option[selected]`).Attr("value")
	quality, _ := page.Find(`select[name="video_quality_id"] option[selected]`).Attr("value")
	resolution, _ := page.Find(`input[name="video_resolution"]`).Attr("value")

	form := &avistazUpload{
		Token:           token,
		InfoHash:        infoHash,
		TypeID:          typeID,
		TaskID:          t.uploadURL[strings.LastIndex(t.uploadURL, "/")+1:],
		FileName:        avistazDisplayName(req.Item, t.keepDubbedDualTags),
		MovieID:         movieID,
		RipTypeID:       ripType,
		VideoQualityID:  quality,
		VideoResolution: resolution,
		Screenshots:     screenshots,
		MediaInfo:       firstOrEmpty(req.MediaInfo),
		Anonymous:       t.deps.Config.GetBool(t, "anonymous_upload", true),
	}
	if !rel.IsMovie() {
		form.TVCollection = avistazCollections[rel.Kind]
		form.TVSeason = strconv.FormatInt(rel.Season, 10)
		if rel.Episode > 0 {
			form.TVEpisode = strconv.FormatInt(rel.Episode, 10)
		}
	}
	page.Find(`select[name="languages[]"] option[selected]`).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("value"); ok {
			form.Languages = append(form.Languages, v)
		}
	})
	page.Find(`select[name="subtitles[]"] option[selected]`).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("value"); ok {
			form.Subtitles = append(form.Subtitles, v)
		}
	})

	if err := form.validate(); err != nil {
		return fmt.Errorf("%s upload form: %w", t.name, err)
	}
	t.form = form
	return nil
}

// searchTitle resolves the site-internal movie id for the release.
func (t *avistaZNetwork) searchTitle(ctx context.Context, rel *domain.Release) (string, error) {
	kind := "1"
	if !rel.IsMovie() {
		kind = "2"
	}

	searchURL := fmt.Sprintf("%s/ajax/movies/%s?term=%s", t.baseURL(), kind, url.QueryEscape(t.searchTerm(rel)))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return "", fmt.Errorf("building search request: %w", err)
	}
	httpReq.Header.Set("x-requested-with", "XMLHttpRequest")
	resp, err := t.sess.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("searching %s: %w", t.name, err)
	}

	var result struct {
		Data []struct {
			ID          int    `json:"id"`
			Title       string `json:"title"`
			ReleaseYear int    `json:"release_year"`
		} `json:"data"`
	}
	if err := session.DecodeJSON(resp, &result); err != nil {
		return "", fmt.Errorf("%s search response: %w", t.name, err)
	}
	if len(result.Data) == 0 {
		return "", fmt.Errorf("%s has no title matching %q: %w", t.name, rel.Title, domain.ErrNoCandidates)
	}

	picked := result.Data[0]
	if rel.Year != 0 {
		for _, c := range result.Data {
			if int64(c.ReleaseYear) == rel.Year {
				picked = c
				break
			}
		}
	}
	log.WithFields(log.Fields{
		"tracker": t.name,
		"title":   picked.Title,
		"year":    picked.ReleaseYear,
	}).Info("Matched site title")
	return strconv.Itoa(picked.ID), nil
}

// searchTerm is the text queried against the site catalog. Sites that fold
// the year into series names need it in the term or the lookup misses.
func (t *avistaZNetwork) searchTerm(rel *domain.Release) string {
	if t.yearInSeriesName && !rel.IsMovie() && rel.Year != 0 {
		return fmt.Sprintf("%s %d", rel.Title, rel.Year)
	}
	return rel.Title
}

// uploadSnapshots pushes images through the site's ajax uploader. The site
// renders rows of three, so the count is truncated to a multiple of three.
func (t *avistaZNetwork) uploadSnapshots(ctx context.Context, token string, snapshots []string) ([]string, error) {
	snapshots = snapshots[:len(snapshots)-len(snapshots)%3]

	var ids []string
	for _, snap := range snapshots {
		info, err := t.deps.Fs.Stat(snap)
		if err != nil {
			return nil, fmt.Errorf("statting snapshot: %w", err)
		}
		resp, err := t.sess.PostMultipartHeaders(ctx,
			t.baseURL()+"/ajax/image/upload",
			map[string]string{"x-requested-with": "XMLHttpRequest"},
			url.Values{
				"_token":          {token},
				"qquuid":          {uuid.NewString()},
				"qqfilename":      {baseName(snap)},
				"qqtotalfilesize": {strconv.FormatInt(info.Size(), 10)},
			},
			[]session.FilePart{{Field: "qqfile", Path: snap, ContentType: "image/png"}},
		)
		if err != nil {
			return nil, fmt.Errorf("uploading snapshot: %w", err)
		}
		var result struct {
			ImageID string `json:"imageId"`
		}
		if err := session.DecodeJSON(resp, &result); err != nil {
			return nil, fmt.Errorf("snapshot upload response: %w", err)
		}
		ids = append(ids, result.ImageID)
	}
	return ids, nil
}

func (t *avistaZNetwork) Upload(ctx context.Context, req *domain.UploadRequest) error {
	if t.form == nil {
		return fmt.Errorf("%s: upload without prepare", t.name)
	}

	if !req.Auto || req.Confirm {
		ok, err := t.deps.Prompter.Confirm("Upload torrent")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s upload declined", t.name)
		}
	}

	resp, err := t.sess.PostForm(ctx, t.uploadURL, t.form.values())
	if err != nil {
		return fmt.Errorf("submitting %s upload: %w", t.name, err)
	}
	page, err := session.ParseDocument(resp)
	if err != nil {
		return err
	}

	href, ok := page.Find(`a[href*="/download/"]`).Attr("href")
	if !ok {
		return fmt.Errorf("%s upload finished without download link: %w", t.name, domain.ErrRejected)
	}
	dl, err := t.sess.Get(ctx, href)
	if err != nil {
		return fmt.Errorf("fetching published torrent: %w", err)
	}
	dl.Body.Close()

	t.logInfo("Upload complete")
	return nil
}

func (t *avistaZNetwork) logInfo(msg string) {
	log.WithFields(log.Fields{"tracker": t.name}).Info(msg)
}

func (t *avistaZNetwork) logWarn(msg string) {
	log.WithFields(log.Fields{"tracker": t.name}).Warn(msg)
}

func firstOrEmpty(xs []string) string {
	if len(xs) == 0 {
		return ""
	}
	return xs[0]
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// avistazDisplayName renders the release name the way the site displays it:
// dots become spaces except inside codec and channel tags. DUBBED and DUAL
// markers are dropped unless the site keeps them.
func avistazDisplayName(item *domain.MediaItem, keepDubbedDual bool) string {
	name := strings.ReplaceAll(item.ReleaseName(), ".", " ")
	if !keepDubbedDual {
		name = strings.ReplaceAll(name, " DUBBED", "")
		name = strings.ReplaceAll(name, " DUAL", "")
	}
	for old, fixed := range map[string]string{
		"H 264": "H.264",
		"H 265": "H.265",
		"2 0 ":  "2.0 ",
		"5 1 ":  "5.1 ",
		"7 1 ":  "7.1 ",
	} {
		name = strings.ReplaceAll(name, old, fixed)
	}
	return name
}

var _ domain.PasskeyProvider = (*avistaZNetwork)(nil)
var _ domain.CookiePersister = (*avistaZNetwork)(nil)
