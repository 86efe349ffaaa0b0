package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/amaumene/uploadarr/internal/domain"
)

func TestTerminalAsk(t *testing.T) {
	var out bytes.Buffer
	p := NewTerminal(strings.NewReader("  123456  \n"), &out)

	got, err := p.Ask("Enter 2FA code")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if got != "123456" {
		t.Errorf("Ask() = %q, want trimmed answer", got)
	}
	if !strings.Contains(out.String(), "Enter 2FA code") {
		t.Errorf("prompt label not written: %q", out.String())
	}
}

func TestTerminalConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "empty defaults to yes", input: "\n", want: true},
		{name: "y accepts", input: "y\n", want: true},
		{name: "no declines", input: "no\n", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewTerminal(strings.NewReader(tt.input), &bytes.Buffer{})
			got, err := p.Confirm("Proceed with upload")
			if err != nil {
				t.Fatalf("Confirm() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestConfirmOnly(t *testing.T) {
	p := ConfirmOnly{Terminal: NewTerminal(strings.NewReader("y\n"), &bytes.Buffer{})}

	if _, err := p.Ask("Enter TVDB id"); !errors.Is(err, domain.ErrUnattended) {
		t.Errorf("Ask() error = %v, want ErrUnattended", err)
	}
	got, err := p.Confirm("Proceed with upload")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if !got {
		t.Error("Confirm() = false, want interactive yes")
	}
}

func TestUnattendedRefuses(t *testing.T) {
	var p Unattended
	if _, err := p.Ask("Enter country code"); !errors.Is(err, domain.ErrUnattended) {
		t.Errorf("Ask() error = %v, want ErrUnattended", err)
	}
	if _, err := p.Confirm("Proceed"); !errors.Is(err, domain.ErrUnattended) {
		t.Errorf("Confirm() error = %v, want ErrUnattended", err)
	}
}
