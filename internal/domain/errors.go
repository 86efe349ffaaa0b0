package domain

import "errors"

var (
	ErrNoVideoFiles       = errors.New("no video files found")
	ErrUnknownRelease     = errors.New("unable to classify release name")
	ErrMissingCredentials = errors.New("missing credentials in config")
	ErrMissingPasskey     = errors.New("passkey not configured and not retrievable")
	ErrLoginFailed        = errors.New("login failed")
	ErrUnattended         = errors.New("interactive input required in unattended mode")
	ErrDuplicate          = errors.New("release already exists on tracker")
	ErrRejected           = errors.New("upload rejected by tracker")
	ErrNoCandidates       = errors.New("no metadata candidates found")
	ErrUnknownTracker     = errors.New("unknown tracker")
)
