package trackers

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/amaumene/uploadarr/internal/domain"
	"github.com/amaumene/uploadarr/internal/imghost"
	"github.com/amaumene/uploadarr/internal/release"
	"github.com/amaumene/uploadarr/internal/session"
)

func init() {
	Register(func(d Deps) domain.Tracker { return newPassThePopcorn(d) }, "PassThePopcorn", "PTP")
}

const ptpBase = "https://passthepopcorn.me"

var ptpSourceRules = []struct {
	pattern *regexp.Regexp
	source  string
}{
	{regexp.MustCompile(`(?i)\b(?:b[dr]-?rip|blu-?ray)\b`), "Blu-ray"},
	{regexp.MustCompile(`(?i)\bhd-?dvd\b`), "HD-DVD"},
	{regexp.MustCompile(`(?i)\bdvd(?:rip)?\b`), "DVD"},
	{regexp.MustCompile(`(?i)\bweb-?(?:dl|rip)?\b`), "WEB"},
	{regexp.MustCompile(`(?i)\bhdtv\b`), "HDTV"},
	{regexp.MustCompile(`(?i)\bpdtv\b|\.ts$`), "TV"},
	{regexp.MustCompile(`(?i)\bvhs(?:rip)?\b`), "VHS"},
}

// ptpUpload is the final submission form.
type ptpUpload struct {
	AntiCsrfToken string
	Type          string
	IMDB          string
	Title         string
	Year          string
	Source        string
	ReleaseDesc   string
	NoEngSubs     bool
}

func (f *ptpUpload) validate() error {
	switch {
	case f.AntiCsrfToken == "":
		return fmt.Errorf("missing anti-csrf token")
	case f.Type == "":
		return fmt.Errorf("missing upload type")
	case f.IMDB == "":
		return fmt.Errorf("missing imdb link")
	case f.ReleaseDesc == "":
		return fmt.Errorf("missing release description")
	}
	return nil
}

func (f *ptpUpload) values() url.Values {
	v := url.Values{
		"AntiCsrfToken":           {f.AntiCsrfToken},
		"type":                    {f.Type},
		"imdb":                    {f.IMDB},
		"title":                   {f.Title},
		"year":                    {f.Year},
		"remaster_title":          {""},
		"remaster_year":           {""},
		"internalrip":             {"on"},
		"source":                  {f.Source},
		"other_source":            {""},
		"codec":                   {"* Auto-detect"},
		"container":               {"* Auto-detect"},
		"resolution":              {"* Auto-detect"},
		"other_resolution_width":  {""},
		"other_resolution_height": {""},
		"release_desc":            {f.ReleaseDesc},
		"nfo_text":                {""},
		"uploadtoken":             {""},
	}
	if f.NoEngSubs {
		v.Add("trumpable[]", "14")
	}
	return v
}

type passThePopcorn struct {
	deps    Deps
	sess    *session.Session
	sessErr error

	antiCsrfToken string
	groupID       string
	form          *ptpUpload
}

func newPassThePopcorn(deps Deps) *passThePopcorn {
	t := &passThePopcorn{deps: deps}
	t.sess, t.sessErr = deps.session(t)
	return t
}

func (t *passThePopcorn) Name() string   { return "PassThePopcorn" }
func (t *passThePopcorn) Abbrev() string { return "PTP" }
func (t *passThePopcorn) AnnounceURL() string {
	return "http://please.passthepopcorn.me:2710/{passkey}/announce"
}
func (t *passThePopcorn) Source() string { return "PTP" }

func (t *passThePopcorn) Options() domain.Options {
	// Every file of a multi-file release gets its own report and snapshot.
	return domain.Options{MinSnapshots: 3, AllFiles: true}
}

func (t *passThePopcorn) PersistCookies() error {
	if t.sess == nil {
		return nil
	}
	return t.sess.SaveCookies()
}

// Passkey scrapes the upload page's announce URL.
func (t *passThePopcorn) Passkey(ctx context.Context) (string, error) {
	doc, err := t.sess.Document(ctx, ptpBase+"/upload.php")
	if err != nil {
		return "", err
	}
	value, ok := doc.Find("input[value$='/announce']").Attr("value")
	if !ok {
		return "", fmt.Errorf("passthepopcorn: %w", domain.ErrMissingPasskey)
	}
	parts := strings.Split(value, "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("passthepopcorn: malformed announce url %q", value)
	}
	return parts[len(parts)-2], nil
}

func (t *passThePopcorn) Login(ctx context.Context) error {
	if t.sessErr != nil {
		return t.sessErr
	}

	resp, err := t.sess.GetNoFollow(ctx, ptpBase+"/user.php?action=edit")
	if err != nil {
		return fmt.Errorf("checking passthepopcorn session: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == 200 {
		log.WithFields(log.Fields{"tracker": "PassThePopcorn"}).Info("Existing session still valid")
		return nil
	}

	log.WithFields(log.Fields{"tracker": "PassThePopcorn"}).Info("Cookies missing or expired, logging in")

	username, password, err := t.deps.credentials(t)
	if err != nil {
		return err
	}
	passkey := t.deps.Config.GetString(t, "passkey", "")
	if passkey == "" {
		return fmt.Errorf("passthepopcorn: %w", domain.ErrMissingPasskey)
	}

	form := url.Values{
		"Popcron":         {""},
		"username":        {username},
		"password":        {password},
		"passkey":         {passkey},
		"WhatsYourSecret": {"Hacker! Do you really have nothing better to do than this?"},
		"keeplogged":      {"1"},
	}
	if secret := t.deps.Config.GetString(t, "totp_secret", ""); secret != "" {
		code, err := GenerateTOTP(secret)
		if err != nil {
			return err
		}
		form.Set("TfaType", "normal")
		form.Set("TfaCode", code)
	}

	result, err := t.postLogin(ctx, form)
	if err != nil {
		return err
	}

	if result.Result == "TfaRequired" {
		code, err := t.deps.Prompter.Ask("Enter 2FA code")
		if err != nil {
			return err
		}
		form.Set("TfaType", "normal")
		form.Set("TfaCode", code)
		if result, err = t.postLogin(ctx, form); err != nil {
			return err
		}
	}

	if result.Result != "Ok" {
		return fmt.Errorf("passthepopcorn login rejected (%s): %w", result.Result, domain.ErrLoginFailed)
	}
	t.antiCsrfToken = result.AntiCsrfToken

	if err := t.sess.SaveCookies(); err != nil {
		return fmt.Errorf("saving passthepopcorn cookies: %w", err)
	}
	log.WithFields(log.Fields{"tracker": "PassThePopcorn"}).Info("Logged in")
	return nil
}

type ptpLoginResult struct {
	Result        string `json:"Result"`
	AntiCsrfToken string `json:"AntiCsrfToken"`
}

func (t *passThePopcorn) postLogin(ctx context.Context, form url.Values) (*ptpLoginResult, error) {
	resp, err := t.sess.PostForm(ctx, ptpBase+"/ajax.php?action=login", form)
	if err != nil {
		return nil, fmt.Errorf("submitting login: %w", err)
	}
	var result ptpLoginResult
	if err := session.DecodeJSON(resp, &result); err != nil {
		return nil, fmt.Errorf("login response: %w", err)
	}
	return &result, nil
}

func (t *passThePopcorn) Prepare(ctx context.Context, req *domain.UploadRequest) error {
	rel, err := release.Parse(req.Item.Name)
	if err != nil {
		return err
	}

	result, err := t.deps.Metadata.Search(ctx, rel)
	if err != nil {
		return err
	}
	imdbURL := fmt.Sprintf("https://www.imdb.com/title/%s/", result.IMDB)

	info, err := t.torrentInfo(ctx, imdbURL)
	if err != nil {
		return err
	}
	t.groupID = info.GroupID

	if t.antiCsrfToken == "" {
		doc, err := t.sess.Document(ctx, ptpBase+"/upload.php?groupid="+url.QueryEscape(t.groupID))
		if err != nil {
			return fmt.Errorf("loading upload page: %w", err)
		}
		t.antiCsrfToken, _ = doc.Find("[name='AntiCsrfToken']").Attr("value")
	}

	host := &imghost.PTPImg{
		Session: t.sess,
		APIKey:  t.deps.Config.GetString(t, "ptpimg_api_key", ""),
	}
	snapURLs, err := host.Upload(ctx, req.Snapshots)
	if err != nil {
		return err
	}

	uploadType, desc := ptpDescription(rel, req.MediaInfo, snapURLs)

	noEngSubs, err := t.noEnglishStreams(ctx, req)
	if err != nil {
		return err
	}

	form := &ptpUpload{
		AntiCsrfToken: t.antiCsrfToken,
		Type:          uploadType,
		IMDB:          imdbURL,
		Title:         info.Title,
		Year:          info.Year,
		Source:        ptpSource(req.Item.Name),
		ReleaseDesc:   desc,
		NoEngSubs:     noEngSubs,
	}
	if form.Title == "" {
		form.Title = result.Title
	}
	if form.Year == "" && result.Year != 0 {
		form.Year = fmt.Sprint(result.Year)
	}

	if err := form.validate(); err != nil {
		return fmt.Errorf("passthepopcorn upload form: %w", err)
	}
	t.form = form
	return nil
}

type ptpTorrentInfo struct {
	GroupID string `json:"groupid"`
	Title   string `json:"title"`
	Year    string `json:"year"`
}

// torrentInfo asks the site what it knows about the film, including the
// group an existing release belongs to.
func (t *passThePopcorn) torrentInfo(ctx context.Context, imdbURL string) (*ptpTorrentInfo, error) {
	infoURL := fmt.Sprintf("%s/ajax.php?action=torrent_info&imdb=%s&fast=1", ptpBase, url.QueryEscape(imdbURL))
	resp, err := t.sess.Get(ctx, infoURL)
	if err != nil {
		return nil, fmt.Errorf("fetching torrent info: %w", err)
	}
	var results []ptpTorrentInfo
	if err := session.DecodeJSON(resp, &results); err != nil {
		return nil, fmt.Errorf("torrent info response: %w", err)
	}
	if len(results) == 0 {
		return &ptpTorrentInfo{}, nil
	}
	return &results[0], nil
}

// ptpDescription renders the release description. Miniseries get one [mi]
// block and snapshot per file; films get one block with every snapshot.
func ptpDescription(rel *domain.Release, mediaInfo, snapshots []string) (string, string) {
	if !rel.IsMovie() {
		var b strings.Builder
		for i, mi := range mediaInfo {
			snap := ""
			if i < len(snapshots) {
				snap = snapshots[i]
			}
			fmt.Fprintf(&b, "[mi]\n%s\n[/mi]\n%s\n\n", mi, snap)
		}
		return "Miniseries", strings.TrimSpace(b.String())
	}
	desc := fmt.Sprintf("[mi]\n%s\n[/mi]\n%s", firstOrEmpty(mediaInfo), strings.Join(snapshots, "\n"))
	return "Feature Film", strings.TrimSpace(desc)
}

func ptpSource(name string) string {
	for _, rule := range ptpSourceRules {
		if rule.pattern.MatchString(name) {
			return rule.source
		}
	}
	return "Other"
}

// noEnglishStreams reports whether neither audio nor subtitles carry
// English, which the site lets reporters flag.
func (t *passThePopcorn) noEnglishStreams(ctx context.Context, req *domain.UploadRequest) (bool, error) {
	info, err := t.deps.MediaInfo.ExtractJSON(ctx, req.Item.FirstFile())
	if err != nil {
		return false, err
	}
	for _, lang := range append(info.AudioLanguages(), info.TextLanguages()...) {
		if strings.HasPrefix(strings.ToLower(lang), "en") {
			return false, nil
		}
	}
	return true, nil
}

func (t *passThePopcorn) Upload(ctx context.Context, req *domain.UploadRequest) error {
	if t.form == nil {
		return fmt.Errorf("passthepopcorn: upload without prepare")
	}

	if !req.Auto || req.Confirm {
		ok, err := t.deps.Prompter.Confirm("Upload torrent")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("passthepopcorn upload declined")
		}
	}

	uploadURL := ptpBase + "/upload.php"
	if t.groupID != "" {
		uploadURL += "?groupid=" + url.QueryEscape(t.groupID)
	}
	resp, err := t.sess.PostMultipart(ctx, uploadURL,
		t.form.values(),
		[]session.FilePart{{
			Field:       "file_input",
			Path:        req.TorrentPath,
			ContentType: "application/x-bittorrent",
		}},
	)
	if err != nil {
		return fmt.Errorf("submitting passthepopcorn upload: %w", err)
	}
	page, err := session.ParseDocument(resp)
	if err != nil {
		return err
	}

	if alert := page.Find(".alert--error"); alert.Length() > 0 {
		msg := strings.TrimSpace(alert.First().Text())
		if strings.Contains(strings.ToLower(msg), "already") {
			return fmt.Errorf("passthepopcorn: %s: %w", msg, domain.ErrDuplicate)
		}
		return fmt.Errorf("passthepopcorn rejected upload: %s: %w", msg, domain.ErrRejected)
	}

	log.WithFields(log.Fields{"tracker": "PassThePopcorn", "title": t.form.Title}).Info("Upload complete")
	return nil
}

var _ domain.PasskeyProvider = (*passThePopcorn)(nil)
var _ domain.CookiePersister = (*passThePopcorn)(nil)
