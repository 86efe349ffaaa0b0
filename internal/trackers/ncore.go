package trackers

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/text/language"

	"github.com/amaumene/uploadarr/internal/domain"
	"github.com/amaumene/uploadarr/internal/imghost"
	"github.com/amaumene/uploadarr/internal/release"
	"github.com/amaumene/uploadarr/internal/session"
)

func init() {
	Register(func(d Deps) domain.Tracker { return newNCore(d) }, "nCore", "nC")
}

const (
	ncoreBase = "https://ncore.pro"
	// The site answers duplicate submissions with this message.
	ncoreDuplicateMarker = "A feltöltött torrent már létezik"
)

var (
	ncoreUniqueRe   = regexp.MustCompile(`<a href="exit\.php\?q=(.*)" id="menu_11" class="menu_link">`)
	ncoreNFOLinkRe  = regexp.MustCompile(`https?://[^ ░▒▓█▄▌▐─│\n]+`)
	ncoreIMDBPathRe = regexp.MustCompile(`(.+tt\d+)(.+)`)
)

// ncoreDatabases are the catalog sites whose links are lifted from NFOs.
var ncoreDatabases = []string{
	"imdb.com", "tvmaze.com", "thetvdb.com", "port.hu",
	"rottentomatoes.com", "myanimelist.net", "netflix.com", "mafab.hu",
}

// ncoreUpload is the final submission form. Field names follow the site's
// Hungarian form keys.
type ncoreUpload struct {
	Unique      string
	Type        string
	ReleaseName string
	Description string
	IMDBID      string
	Database    string
	InfobarPic  string
	InfobarRank string
	Genres      string
	ReleaseYear string
	Country     string
	Runtime     string
	HunTitle    string
	EngTitle    string
	Director    string
	Cast        string
	Anonymous   bool
}

func (f *ncoreUpload) validate() error {
	switch {
	case f.Unique == "":
		return fmt.Errorf("missing session unique id")
	case f.Type == "":
		return fmt.Errorf("missing upload type")
	case f.ReleaseName == "":
		return fmt.Errorf("missing release name")
	case f.IMDBID == "":
		return fmt.Errorf("missing imdb id")
	}
	return nil
}

func (f *ncoreUpload) values() url.Values {
	v := url.Values{
		"getUnique":        {f.Unique},
		"eredeti":          {"igen"},
		"infobar_site":     {"imdb"},
		"tipus":            {f.Type},
		"torrent_nev":      {f.ReleaseName},
		"szoveg":           {f.Description},
		"imdb_id":          {f.IMDBID},
		"film_adatbazis":   {f.Database},
		"infobar_picture":  {f.InfobarPic},
		"infobar_rank":     {f.InfobarRank},
		"infobar_genres":   {f.Genres},
		"megjelent":        {f.ReleaseYear},
		"orszag":           {f.Country},
		"hossz":            {f.Runtime},
		"film_magyar_cim":  {f.HunTitle},
		"film_angol_cim":   {f.EngTitle},
		"film_idegen_cim":  {f.HunTitle},
		"rendezo":          {f.Director},
		"szereplok":        {f.Cast},
		"szezon":           {""},
		"epizod_szamok":    {""},
		"keresre":          {"nem"},
		"elrejt":           {"nem"},
		"mindent_tud1":     {"szabalyzat"},
		"mindent_tud3":     {"seedeles"},
	}
	if f.Anonymous {
		v.Set("anonymous", "1")
	}
	return v
}

type ncore struct {
	deps    Deps
	sess    *session.Session
	sessErr error

	form    *ncoreUpload
	nfoPath string
}

func newNCore(deps Deps) *ncore {
	t := &ncore{deps: deps}
	t.sess, t.sessErr = deps.session(t)
	return t
}

func (t *ncore) Name() string        { return "nCore" }
func (t *ncore) Abbrev() string      { return "nC" }
func (t *ncore) AnnounceURL() string { return "http://t.ncore.sh:2710/announce" }
func (t *ncore) Source() string      { return "" }

func (t *ncore) Options() domain.Options {
	// Three submission snapshots plus a full description gallery.
	columns := t.deps.Config.GetInt(t, "snapshot_columns", 2)
	rows := t.deps.Config.GetInt(t, "snapshot_rows", 3)
	return domain.Options{MinSnapshots: 3 + columns*rows}
}

func (t *ncore) PersistCookies() error {
	if t.sess == nil {
		return nil
	}
	return t.sess.SaveCookies()
}

func (t *ncore) Login(ctx context.Context) error {
	if t.sessErr != nil {
		return t.sessErr
	}

	resp, err := t.sess.Get(ctx, ncoreBase+"/")
	if err != nil {
		return fmt.Errorf("checking ncore session: %w", err)
	}
	resp.Body.Close()
	if !strings.Contains(resp.Request.URL.String(), "login.php") {
		log.WithFields(log.Fields{"tracker": "nCore"}).Info("Existing session still valid")
		return nil
	}

	log.WithFields(log.Fields{"tracker": "nCore"}).Info("Cookies missing or expired, logging in")

	username, password, err := t.deps.credentials(t)
	if err != nil {
		return err
	}
	code, err := t.deps.twoFACode(t)
	if err != nil {
		return err
	}

	resp, err = t.sess.PostForm(ctx, ncoreBase+"/login.php?2fa", url.Values{
		"set_lang":          {"hu"},
		"submitted":         {"1"},
		"nev":               {username},
		"pass":              {password},
		"2factor":           {code},
		"ne_leptessen_ki":   {"1"},
	})
	if err != nil {
		return fmt.Errorf("submitting login: %w", err)
	}
	resp.Body.Close()

	resp, err = t.sess.Get(ctx, ncoreBase+"/")
	if err != nil {
		return fmt.Errorf("verifying login: %w", err)
	}
	resp.Body.Close()
	if strings.Contains(resp.Request.URL.String(), "login.php") {
		return fmt.Errorf("ncore: %w", domain.ErrLoginFailed)
	}

	if err := t.sess.SaveCookies(); err != nil {
		return fmt.Errorf("saving ncore cookies: %w", err)
	}
	log.WithFields(log.Fields{"tracker": "nCore"}).Info("Logged in")
	return nil
}

func (t *ncore) Prepare(ctx context.Context, req *domain.UploadRequest) error {
	rel, err := release.Parse(req.Item.Name)
	if err != nil {
		return err
	}

	unique, err := t.sessionUnique(ctx)
	if err != nil {
		return err
	}

	imdbID, database, err := t.resolveDatabases(ctx, req, rel)
	if err != nil {
		return err
	}

	infobar, err := t.fetchInfobar(ctx, imdbID)
	if err != nil {
		return err
	}

	uploadType, err := t.uploadType(ctx, req, rel)
	if err != nil {
		return err
	}

	description, err := t.buildDescription(ctx, req)
	if err != nil {
		return err
	}

	form := &ncoreUpload{
		Unique:      unique,
		Type:        uploadType,
		ReleaseName: req.Item.ReleaseName(),
		Description: description,
		IMDBID:      imdbID,
		Database:    database,
		InfobarPic:  infobar["movie_picture"],
		InfobarRank: infobar["movie_rank"],
		Genres:      infobar["movie_genres"],
		ReleaseYear: infobar["movie_megjelenes_eve"],
		Country:     infobar["movie_orszag"],
		Runtime:     infobar["movie_hossz"],
		HunTitle:    infobar["movie_magyar_cim"],
		EngTitle:    infobar["movie_angol_cim"],
		Director:    infobar["movie_rendezo"],
		Cast:        infobar["movie_szereplok"],
		Anonymous:   t.deps.Config.GetBool(t, "anonymous_upload", false),
	}

	if err := form.validate(); err != nil {
		return fmt.Errorf("ncore upload form: %w", err)
	}
	t.form = form
	return nil
}

// sessionUnique scrapes the per-session id every form post must echo.
func (t *ncore) sessionUnique(ctx context.Context) (string, error) {
	resp, err := t.sess.Get(ctx, ncoreBase+"/")
	if err != nil {
		return "", fmt.Errorf("loading ncore home: %w", err)
	}
	body, err := session.ReadBody(resp)
	if err != nil {
		return "", err
	}
	m := ncoreUniqueRe.FindStringSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("ncore session id not found on home page")
	}
	return m[1], nil
}

// resolveDatabases finds the IMDb id and a secondary catalog link, looking
// first in a bundled NFO, then in the metadata catalog. Releases without an
// NFO get one generated from the mediainfo report.
func (t *ncore) resolveDatabases(ctx context.Context, req *domain.UploadRequest, rel *domain.Release) (string, string, error) {
	var urls []string
	if req.Item.IsDir {
		nfos, _ := afero.Glob(t.deps.Fs, filepath.Join(req.Item.Path, "*.nfo"))
		sort.Strings(nfos)
		if len(nfos) > 0 {
			t.nfoPath = nfos[0]
			data, err := afero.ReadFile(t.deps.Fs, t.nfoPath)
			if err != nil {
				return "", "", fmt.Errorf("reading nfo: %w", err)
			}
			urls = ncoreDatabaseURLs(string(data))
		} else {
			t.nfoPath = filepath.Join(req.Item.Path, req.Item.ReleaseName()+".nfo")
			if err := writeFile(t.deps.Fs, t.nfoPath, []byte(firstOrEmpty(req.MediaInfo))); err != nil {
				return "", "", err
			}
		}
	}

	imdbID := ""
	for _, u := range urls {
		if strings.Contains(u, "imdb.com") {
			parts := strings.Split(strings.TrimRight(u, "/"), "/")
			imdbID = parts[len(parts)-1]
			break
		}
	}
	if imdbID == "" {
		result, err := t.deps.Metadata.Search(ctx, rel)
		if err != nil {
			return "", "", err
		}
		imdbID = result.IMDB
	}
	if imdbID == "" {
		answer, err := t.deps.Prompter.Ask("Enter IMDb ID")
		if err != nil {
			return "", "", err
		}
		imdbID = answer
	}
	if imdbID == "" {
		return "", "", fmt.Errorf("ncore: no imdb id: %w", domain.ErrNoCandidates)
	}

	database := ""
	for _, u := range urls {
		if !strings.Contains(u, "imdb.com") {
			database = ncoreShortenLink(u)
			break
		}
	}
	return imdbID, database, nil
}

// ncoreDatabaseURLs extracts catalog links from NFO text, which is usually
// drawn with box characters around the URLs.
func ncoreDatabaseURLs(nfo string) []string {
	var out []string
	for _, u := range ncoreNFOLinkRe.FindAllString(nfo, -1) {
		for _, db := range ncoreDatabases {
			if strings.Contains(u, db) {
				out = append(out, u)
				break
			}
		}
	}
	return out
}

// ncoreShortenLink canonicalizes catalog links to their shortest form.
func ncoreShortenLink(u string) string {
	u = strings.Replace(u, "www.", "", 1)
	u = strings.Replace(u, "http://", "https://", 1)
	if !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	if strings.Contains(u, "imdb.com") {
		u = ncoreIMDBPathRe.ReplaceAllString(u, "$1")
	}
	return u
}

// fetchInfobar pulls the site's own IMDb summary fields used to prefill
// the upload form.
func (t *ncore) fetchInfobar(ctx context.Context, imdbID string) (map[string]string, error) {
	resp, err := t.sess.Get(ctx, fmt.Sprintf(
		"%s/ajax.php?action=imdb_movie&imdb_movie=%s", ncoreBase, url.QueryEscape(strings.TrimPrefix(imdbID, "tt"))))
	if err != nil {
		return nil, fmt.Errorf("fetching imdb infobar: %w", err)
	}
	body, err := session.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	for _, key := range []string{
		"movie_picture", "movie_rank", "movie_genres", "movie_megjelenes_eve",
		"movie_orszag", "movie_hossz", "movie_magyar_cim", "movie_angol_cim",
		"movie_rendezo", "movie_szereplok",
	} {
		re := regexp.MustCompile(`id="` + key + `" value="(.*)">`)
		if m := re.FindStringSubmatch(body); m != nil {
			fields[key] = m[1]
		}
	}
	return fields, nil
}

// uploadType classifies the release in the site's vocabulary: hd or xvid by
// height, ser for shows, _hun suffix for Hungarian audio.
func (t *ncore) uploadType(ctx context.Context, req *domain.UploadRequest, rel *domain.Release) (string, error) {
	info, err := t.deps.MediaInfo.ExtractJSON(ctx, req.Item.FirstFile())
	if err != nil {
		return "", err
	}

	kind := ""
	if !rel.IsMovie() {
		kind = "ser"
	}

	prefix := "hd"
	if v := info.Video(); v != nil {
		if height, err := strconv.Atoi(strings.TrimSpace(v.Height)); err == nil && height < 720 {
			prefix = "xvid"
		}
	}
	uploadType := prefix + kind

	name := req.Item.ReleaseName()
	hunTagged := strings.Contains(name, ".HUN.") || strings.Contains(name, ".HUN-")
	for _, lang := range info.AudioLanguages() {
		tag, err := language.Parse(lang)
		if err != nil {
			continue
		}
		base, _ := tag.Base()
		if base.String() == "hu" && hunTagged {
			uploadType += "_hun"
			break
		}
	}
	return uploadType, nil
}

// buildDescription uploads the gallery snapshots to kek.sh and renders the
// spoiler block. The last three snapshots are reserved for the submission
// itself.
func (t *ncore) buildDescription(ctx context.Context, req *domain.UploadRequest) (string, error) {
	var b strings.Builder

	name := req.Item.ReleaseName()
	if len(name) > 83 {
		fmt.Fprintf(&b, "[center][highlight][size=10pt]%s[/size][/highlight][/center]\n\n\n", name)
	}
	if req.Note != "" {
		fmt.Fprintf(&b, "[quote]%s[/quote]\n\n", req.Note)
	}

	gallery := req.Snapshots
	if len(gallery) > 3 {
		gallery = gallery[:len(gallery)-3]
	} else {
		gallery = nil
	}
	if len(gallery) == 0 {
		return strings.TrimSpace(b.String()), nil
	}

	columns := t.deps.Config.GetInt(t, "snapshot_columns", 3)
	rowWidth := t.deps.Config.GetInt(t, "snapshot_row_width", 660)
	if rowWidth > 660 {
		rowWidth = 660
	}
	thumbWidth := rowWidth / columns

	thumbs, err := t.deps.Snapshots.Thumbnails(ctx, gallery, thumbWidth)
	if err != nil {
		return "", err
	}

	host := &imghost.KekSH{
		Session: t.sess,
		APIKey:  t.deps.Config.GetString(t, "keksh_api_key", ""),
	}
	snapURLs, err := host.Upload(ctx, gallery)
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

	b.WriteString("[spoiler=Screenshots][center]")
	b.WriteString(imghost.Grid(images, columns))
	b.WriteString("[i] (Kattints a képekre a teljes felbontásban való megtekintéshez.)[/i][/center][/spoiler]")
	return strings.TrimSpace(b.String()), nil
}

func (t *ncore) Upload(ctx context.Context, req *domain.UploadRequest) error {
	if t.form == nil {
		return fmt.Errorf("ncore: upload without prepare")
	}
	if len(req.Snapshots) < 3 {
		return fmt.Errorf("ncore needs at least three snapshots, got %d", len(req.Snapshots))
	}

	last := req.Snapshots[len(req.Snapshots)-3:]
	files := []session.FilePart{
		{Field: "torrent_fajl", Path: req.TorrentPath, ContentType: "application/x-bittorrent"},
		{Field: "kep1", Path: last[0], ContentType: "image/png"},
		{Field: "kep2", Path: last[1], ContentType: "image/png"},
		{Field: "kep3", Path: last[2], ContentType: "image/png"},
	}
	if t.nfoPath != "" {
		files = append(files, session.FilePart{
			Field: "nfo_fajl", Path: t.nfoPath, ContentType: "application/octet-stream",
		})
	}

	resp, err := t.sess.PostMultipart(ctx, ncoreBase+"/upload.php", t.form.values(), files)
	if err != nil {
		return fmt.Errorf("submitting ncore upload: %w", err)
	}
	finalURL := resp.Request.URL.String()
	body, err := session.ReadBody(resp)
	if err != nil {
		return err
	}

	if strings.Contains(body, ncoreDuplicateMarker) {
		return fmt.Errorf("ncore: torrent already exists: %w", domain.ErrDuplicate)
	}
	if strings.Contains(finalURL, "upload.php") {
		return fmt.Errorf("ncore rejected upload: %w", domain.ErrRejected)
	}

	log.WithFields(log.Fields{
		"tracker": "nCore",
		"link":    strings.Replace(finalURL, "/torrents.php?action=details&id=", "/t/", 1),
	}).Info("Upload complete")
	return nil
}

var _ domain.CookiePersister = (*ncore)(nil)
