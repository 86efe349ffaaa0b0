// Package prompt implements the interactive and unattended answers to
// questions adapters ask mid-flow, like 2FA codes or a missing artist name.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/amaumene/uploadarr/internal/domain"
)

// Terminal asks questions on an interactive terminal.
type Terminal struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewTerminal returns a prompter reading from in and writing to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{reader: bufio.NewReader(in), out: out}
}

// Ask prints label and returns the entered line.
func (t *Terminal) Ask(label string) (string, error) {
	fmt.Fprintf(t.out, "%s: ", label)
	line, err := t.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question, defaulting to yes on an empty answer.
func (t *Terminal) Confirm(label string) (bool, error) {
	answer, err := t.Ask(label + " [Y/n]")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "" || answer == "y" || answer == "yes", nil
}

// ConfirmOnly answers confirmations interactively but refuses free-form
// questions. Auto runs with a final confirmation step use it so only the
// yes/no before a submission reaches the terminal.
type ConfirmOnly struct {
	Terminal *Terminal
}

// Ask implements domain.Prompter.
func (ConfirmOnly) Ask(label string) (string, error) {
	return Unattended{}.Ask(label)
}

// Confirm implements domain.Prompter.
func (c ConfirmOnly) Confirm(label string) (bool, error) {
	return c.Terminal.Confirm(label)
}

// Unattended refuses every question. Automated runs use it so a flow that
// would block on input fails fast instead.
type Unattended struct{}

// Ask implements domain.Prompter.
func (Unattended) Ask(label string) (string, error) {
	return "", fmt.Errorf("%q needs an answer: %w", label, domain.ErrUnattended)
}

// Confirm implements domain.Prompter.
func (Unattended) Confirm(label string) (bool, error) {
	return false, fmt.Errorf("%q needs an answer: %w", label, domain.ErrUnattended)
}
