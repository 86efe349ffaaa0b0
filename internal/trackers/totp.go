package trackers

import (
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
)

// GenerateTOTP returns the current time-based one-time code for secret.
func GenerateTOTP(secret string) (string, error) {
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		return "", fmt.Errorf("generating totp code: %w", err)
	}
	return code, nil
}
