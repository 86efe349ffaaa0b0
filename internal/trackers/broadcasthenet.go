package trackers

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"github.com/amaumene/uploadarr/internal/domain"
	"github.com/amaumene/uploadarr/internal/imghost"
	"github.com/amaumene/uploadarr/internal/release"
	"github.com/amaumene/uploadarr/internal/session"
)

func init() {
	Register(func(d Deps) domain.Tracker { return newBroadcasTheNet(d) }, "BroadcasTheNet", "BTN")
}

const btnBase = "https://backup.landof.tv"

// btnCountries maps ISO region codes to the site's country ids.
var btnCountries = map[string]int{
	"AD": 65, "AF": 51, "AG": 86, "AL": 62, "AO": 33, "AR": 19, "AT": 34,
	"AU": 20, "BA": 64, "BB": 82, "BD": 83, "BE": 16, "BF": 57, "BG": 100,
	"BN": 113, "BR": 18, "BS": 79, "BZ": 31, "CA": 5, "CD": 50, "CH": 54,
	"CL": 48, "CN": 8, "CO": 95, "CR": 98, "CU": 49, "CZ": 43, "DE": 7,
	"DK": 10, "DO": 38, "DZ": 32, "EC": 78, "EE": 94, "EG": 99, "ES": 22,
	"FI": 4, "FJ": 102, "FR": 6, "GB": 12, "GR": 39, "GT": 40, "HK": 30,
	"HN": 76, "HR": 93, "HU": 71, "IL": 41, "IS": 13, "IT": 9, "JM": 28,
	"JP": 17, "KH": 81, "KP": 92, "KR": 27, "KW": 104, "LB": 96, "LK": 105,
	"LT": 66, "LU": 29, "LV": 97, "MK": 103, "MX": 24, "MY": 37, "NG": 58,
	"NL": 15, "NO": 11, "NZ": 21, "PE": 80, "PH": 56, "PK": 42, "PL": 14,
	"PR": 47, "PT": 23, "PY": 87, "RO": 72, "RS": 44, "RU": 3, "SA": 108,
	"SE": 1, "SG": 25, "SK": 110, "TR": 52, "TT": 75, "TW": 46, "UA": 69,
	"US": 2, "UY": 85, "UZ": 53, "VE": 70, "VN": 74, "ZA": 26,
}

// btnUpload is the final submission form.
type btnUpload struct {
	Type        string
	SceneName   string
	SeriesID    string
	Artist      string
	Title       string
	Actors      string
	Origin      string
	Foreign     bool
	Country     int
	Year        string
	Tags        string
	Image       string
	AlbumDesc   string
	FastTorrent bool
	Format      string
	Bitrate     string
	Media       string
	Resolution  string
	ReleaseDesc string
}

func (f *btnUpload) validate() error {
	switch {
	case f.Type == "":
		return fmt.Errorf("missing upload type")
	case f.SceneName == "":
		return fmt.Errorf("missing release name")
	case f.Artist == "" || f.Title == "":
		return fmt.Errorf("missing artist or title")
	}
	return nil
}

func (f *btnUpload) values() url.Values {
	v := url.Values{
		"submit":       {"true"},
		"type":         {f.Type},
		"scenename":    {f.SceneName},
		"seriesid":     {f.SeriesID},
		"artist":       {f.Artist},
		"title":        {f.Title},
		"actors":       {f.Actors},
		"origin":       {f.Origin},
		"year":         {f.Year},
		"tags":         {f.Tags},
		"image":        {f.Image},
		"album_desc":   {f.AlbumDesc},
		"format":       {f.Format},
		"bitrate":      {f.Bitrate},
		"media":        {f.Media},
		"resolution":   {f.Resolution},
		"release_desc": {f.ReleaseDesc},
		"tvdb":         {"autofilled"},
	}
	if f.Foreign {
		v.Set("foreign", "on")
	}
	if f.Country != 0 {
		v.Set("country", fmt.Sprint(f.Country))
	}
	if f.FastTorrent {
		v.Set("fasttorrent", "on")
	}
	return v
}

type broadcasTheNet struct {
	deps    Deps
	sess    *session.Session
	sessErr error
	form    *btnUpload
}

func newBroadcasTheNet(deps Deps) *broadcasTheNet {
	t := &broadcasTheNet{deps: deps}
	t.sess, t.sessErr = deps.session(t)
	return t
}

func (t *broadcasTheNet) Name() string        { return "BroadcasTheNet" }
func (t *broadcasTheNet) Abbrev() string      { return "BTN" }
func (t *broadcasTheNet) AnnounceURL() string { return "http://landof.tv/{passkey}/announce" }
func (t *broadcasTheNet) Source() string      { return "" }

func (t *broadcasTheNet) Options() domain.Options {
	return domain.Options{MinSnapshots: 2}
}

func (t *broadcasTheNet) PersistCookies() error {
	if t.sess == nil {
		return nil
	}
	return t.sess.SaveCookies()
}

// Passkey scrapes the upload page's announce URL.
func (t *broadcasTheNet) Passkey(ctx context.Context) (string, error) {
	doc, err := t.sess.Document(ctx, btnBase+"/upload.php")
	if err != nil {
		return "", err
	}
	value, ok := doc.Find("input[value$='/announce']").Attr("value")
	if !ok {
		return "", fmt.Errorf("broadcasthenet: %w", domain.ErrMissingPasskey)
	}
	parts := strings.Split(value, "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("broadcasthenet: malformed announce url %q", value)
	}
	return parts[len(parts)-2], nil
}

func (t *broadcasTheNet) Login(ctx context.Context) error {
	if t.sessErr != nil {
		return t.sessErr
	}

	// Cookies issued for the primary domain work on the backup domain.
	t.sess.Jar().RewriteDomain("broadcasthe.net", "backup.landof.tv")

	resp, err := t.sess.Get(ctx, btnBase+"/user.php")
	if err != nil {
		return fmt.Errorf("checking broadcasthenet session: %w", err)
	}
	resp.Body.Close()
	if !strings.Contains(resp.Request.URL.String(), "login.php") {
		log.WithFields(log.Fields{"tracker": "BroadcasTheNet"}).Info("Existing session still valid")
		return nil
	}

	log.WithFields(log.Fields{"tracker": "BroadcasTheNet"}).Info("Cookies missing or expired, logging in")

	username, password, err := t.deps.credentials(t)
	if err != nil {
		return err
	}

	resp, err = t.sess.PostForm(ctx, btnBase+"/login.php", url.Values{
		"username":   {username},
		"password":   {password},
		"keeplogged": {"1"},
		"login":      {"Log In!"},
	})
	if err != nil {
		return fmt.Errorf("submitting login: %w", err)
	}
	resp.Body.Close()

	if strings.Contains(resp.Request.URL.String(), "login.php") {
		code, err := t.deps.twoFACode(t)
		if err != nil {
			return err
		}
		resp, err = t.sess.PostForm(ctx, btnBase+"/login.php", url.Values{
			"code": {code},
			"act":  {"authenticate"},
		})
		if err != nil {
			return fmt.Errorf("submitting 2fa code: %w", err)
		}
		resp.Body.Close()
	}

	if strings.Contains(resp.Request.URL.String(), "login.php") {
		return fmt.Errorf("broadcasthenet: %w", domain.ErrLoginFailed)
	}

	if err := t.sess.SaveCookies(); err != nil {
		return fmt.Errorf("saving broadcasthenet cookies: %w", err)
	}
	log.WithFields(log.Fields{"tracker": "BroadcasTheNet"}).Info("Logged in")
	return nil
}

func (t *broadcasTheNet) Prepare(ctx context.Context, req *domain.UploadRequest) error {
	rel, err := release.Parse(req.Item.Name)
	if err != nil {
		return err
	}

	uploadType := "Episode"
	if rel.Kind == domain.KindSeason {
		uploadType = "Season"
	}

	sceneName := btnName(req.Item.ReleaseName())

	// The autofill POST makes the site identify the series from the name
	// and hand back a prefilled form.
	resp, err := t.sess.PostForm(ctx, btnBase+"/upload.php", url.Values{
		"type":        {uploadType},
		"scene_yesno": {"yes"},
		"autofill":    {sceneName},
		"tvdb":        {"Get Info"},
	})
	if err != nil {
		return fmt.Errorf("requesting autofill: %w", err)
	}
	page, err := session.ParseDocument(resp)
	if err != nil {
		return err
	}

	artist, title, err := t.autofillNames(page, req.Auto)
	if err != nil {
		return err
	}

	foreign, country, err := t.audioOrigin(ctx, req)
	if err != nil {
		return err
	}

	gallery, err := t.uploadSnapshots(ctx, req)
	if err != nil {
		return err
	}

	form := &btnUpload{
		Type:        uploadType,
		SceneName:   sceneName,
		Artist:      artist,
		Title:       title,
		Origin:      btnOrigin(sceneName),
		Foreign:     foreign,
		Country:     country,
		Tags:        "action",
		Resolution:  "SD",
		FastTorrent: t.deps.Config.GetBool(t, "fasttorrent", false),
		ReleaseDesc: strings.TrimSpace(fmt.Sprintf("%s\n\n\n%s", firstOrEmpty(req.MediaInfo), gallery)),
	}

	// The prefilled form carries the site's own values for everything it
	// recognized; take them as-is.
	form.SeriesID = inputValue(page, "seriesid")
	form.Actors = inputValue(page, "actors")
	form.Year = inputValue(page, "year")
	form.Image = inputValue(page, "image")
	form.AlbumDesc = inputValue(page, "album_desc")
	form.Format = selectedValue(page, "format")
	form.Bitrate = selectedValue(page, "bitrate")
	form.Media = selectedValue(page, "media")
	if v := selectedValue(page, "resolution"); v != "" {
		form.Resolution = v
	}
	if v := inputValue(page, "tags"); v != "" {
		form.Tags = v
	}

	if err := form.validate(); err != nil {
		return fmt.Errorf("broadcasthenet upload form: %w", err)
	}
	t.form = form
	return nil
}

// autofillNames extracts the artist and title the site guessed, prompting
// when the site could not identify the release.
func (t *broadcasTheNet) autofillNames(page *goquery.Document, auto bool) (string, string, error) {
	artist := "AutoFill Fail"
	title := "AutoFill Fail"
	if v, ok := page.Find("[name=artist]").Attr("value"); ok {
		artist = v
	}
	if v, ok := page.Find("[name=title]").Attr("value"); ok {
		title = v
	}
	if artist != "AutoFill Fail" && title != "AutoFill Fail" {
		return artist, title, nil
	}
	if auto {
		return "", "", fmt.Errorf("broadcasthenet could not identify the release: %w", domain.ErrNoCandidates)
	}

	var err error
	if artist, err = t.deps.Prompter.Ask("Series Title"); err != nil {
		return "", "", err
	}
	if title, err = t.deps.Prompter.Ask("Season/Episode"); err != nil {
		return "", "", err
	}
	return artist, title, nil
}

// audioOrigin determines whether the release is foreign and which country
// id applies, from the primary audio track language.
func (t *broadcasTheNet) audioOrigin(ctx context.Context, req *domain.UploadRequest) (bool, int, error) {
	info, err := t.deps.MediaInfo.ExtractJSON(ctx, req.Item.FirstFile())
	if err != nil {
		return false, 0, err
	}
	langs := info.AudioLanguages()
	if len(langs) == 0 {
		return false, 0, fmt.Errorf("unable to determine audio language of %s", req.Item.Name)
	}

	tag, err := language.Parse(langs[0])
	if err != nil {
		return false, 0, fmt.Errorf("parsing audio language %q: %w", langs[0], err)
	}
	base, _ := tag.Base()
	region, _ := tag.Region()

	territory := region.String()
	// Latin America is a UN region, not a country; pick Spain unattended.
	if territory == "419" {
		if req.Auto {
			territory = "ES"
		} else {
			territory, err = t.deps.Prompter.Ask("Enter country code")
			if err != nil {
				return false, 0, err
			}
		}
	}

	log.WithFields(log.Fields{
		"tracker":  "BroadcasTheNet",
		"language": base.String(),
		"country":  territory,
	}).Info("Detected audio origin")

	return base.String() != "en", btnCountries[territory], nil
}

// uploadSnapshots pushes snapshots and their thumbnails to the site's image
// bin and lays them out as a grid.
func (t *broadcasTheNet) uploadSnapshots(ctx context.Context, req *domain.UploadRequest) (string, error) {
	apiKey := t.deps.Config.GetString(t, "imgbin_api_key", "")
	if apiKey == "" {
		log.WithFields(log.Fields{"tracker": "BroadcasTheNet"}).Warn("No imgbin API key configured, skipping snapshots")
		return "", nil
	}

	rowWidth := t.deps.Config.GetInt(t, "snapshot_row_width", 530)
	if rowWidth > 530 {
		rowWidth = 530
	}
	columns := t.deps.Config.GetInt(t, "snapshot_columns", 2)
	thumbWidth := rowWidth/columns - 5

	thumbs, err := t.deps.Snapshots.Thumbnails(ctx, req.Snapshots, thumbWidth)
	if err != nil {
		return "", err
	}

	host := &imghost.ImgBin{Session: t.sess, APIKey: apiKey}
	snapURLs, err := host.Upload(ctx, req.Snapshots)
	if err != nil {
		return "", err
	}
	thumbURLs, err := host.Upload(ctx, thumbs)
	if err != nil {
		return "", err
	}

	images := make([]imghost.Image, len(snapURLs))
	for i := range snapURLs {
		images[i] = imghost.Image{URL: snapURLs[i], ThumbURL: thumbURLs[i]}
	}
	return imghost.Grid(images, columns), nil
}

func btnOrigin(name string) string {
	for _, suffix := range []string{"-BTW", "-NTb", "-TVSmash"} {
		if strings.HasSuffix(name, suffix) {
			return "Internal"
		}
	}
	return "P2P"
}

var (
	btnAtmosRe = regexp.MustCompile(`(?i)\.([a-z]+)\.?([\d.]+)\.Atmos`)
	btnDoViRe  = regexp.MustCompile(`(?i)\.(?:DV|DoVi)(?:\.HDR(?:10(?:\+|P|Plus))?)?\b`)
	btnHLGRe   = regexp.MustCompile(`(?i)\.HLG\b`)
	btnResRe   = regexp.MustCompile(`\.(\d+p)`)
)

// btnName rewrites a release name to site conventions: Atmos folds into the
// audio codec tag and dynamic range markers move in front of the
// resolution.
func btnName(name string) string {
	name = btnAtmosRe.ReplaceAllString(name, ".${1}A$2")
	if m := btnDoViRe.FindString(name); m != "" {
		name = strings.Replace(name, m, "", 1)
		name = btnResRe.ReplaceAllString(name, ".DV.$1")
	} else if m := btnHLGRe.FindString(name); m != "" {
		name = strings.Replace(name, m, "", 1)
		name = btnResRe.ReplaceAllString(name, ".HLG.$1")
	}
	name = strings.ReplaceAll(name, ".DUBBED", "")
	name = strings.ReplaceAll(name, ".DUAL", "")
	return name
}

func inputValue(page *goquery.Document, name string) string {
	v, _ := page.Find("[name=" + name + "]").Attr("value")
	return v
}

func selectedValue(page *goquery.Document, name string) string {
	v, _ := page.Find("[name="+name+"] [selected]").Attr("value")
	return v
}

func (t *broadcasTheNet) Upload(ctx context.Context, req *domain.UploadRequest) error {
	if t.form == nil {
		return fmt.Errorf("broadcasthenet: upload without prepare")
	}

	resp, err := t.sess.PostMultipart(ctx, btnBase+"/upload.php",
		t.form.values(),
		[]session.FilePart{{
			Field:       "file_input",
			Path:        req.TorrentPath,
			ContentType: "application/x-bittorrent",
		}},
	)
	if err != nil {
		return fmt.Errorf("submitting broadcasthenet upload: %w", err)
	}
	resp.Body.Close()

	log.WithFields(log.Fields{"tracker": "BroadcasTheNet", "name": t.form.SceneName}).Info("Upload complete")
	return nil
}

var _ domain.PasskeyProvider = (*broadcasTheNet)(nil)
var _ domain.CookiePersister = (*broadcasTheNet)(nil)
