package trackers

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/amaumene/uploadarr/internal/config"
	"github.com/amaumene/uploadarr/internal/domain"
	"github.com/amaumene/uploadarr/internal/mediainfo"
	"github.com/amaumene/uploadarr/internal/metadata"
	"github.com/amaumene/uploadarr/internal/session"
	"github.com/amaumene/uploadarr/internal/snapshot"
)

// Deps carries the shared services adapters are built from.
type Deps struct {
	Config    *config.Config
	Fs        afero.Fs
	Metadata  metadata.Searcher
	MediaInfo *mediainfo.Extractor
	Snapshots *snapshot.Generator
	Prompter  domain.Prompter

	// NewSession builds the per-tracker HTTP session. Injected so tests can
	// swap the transport.
	NewSession func(name, username string) (*session.Session, error)
}

// session builds the adapter's session from its configured username.
func (d Deps) session(scope config.Scoped) (*session.Session, error) {
	username := d.Config.GetString(scope, "username", "")
	s, err := d.NewSession(scope.Name(), username)
	if err != nil {
		return nil, fmt.Errorf("building %s session: %w", scope.Name(), err)
	}
	return s, nil
}

// credentials returns the configured username and password or
// domain.ErrMissingCredentials.
func (d Deps) credentials(scope config.Scoped) (string, string, error) {
	username := d.Config.GetString(scope, "username", "")
	password := d.Config.GetString(scope, "password", "")
	if username == "" || password == "" {
		return "", "", fmt.Errorf("%s: %w", scope.Name(), domain.ErrMissingCredentials)
	}
	return username, password, nil
}

func writeFile(fs afero.Fs, path string, data []byte) error {
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// twoFACode answers a 2FA challenge: a configured TOTP secret wins,
// otherwise the prompter is asked.
func (d Deps) twoFACode(scope config.Scoped) (string, error) {
	if secret := d.Config.GetString(scope, "totp_secret", ""); secret != "" {
		return GenerateTOTP(secret)
	}
	return d.Prompter.Ask("Enter 2FA code")
}
