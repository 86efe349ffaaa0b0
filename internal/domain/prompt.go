package domain

// Prompter supplies interactive answers where classification or lookup
// cannot proceed automatically. The unattended implementation fails every
// call with ErrUnattended so business logic stays free of terminal I/O.
type Prompter interface {
	Ask(label string) (string, error)
	Confirm(label string) (bool, error)
}
