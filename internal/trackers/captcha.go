package trackers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/amaumene/uploadarr/internal/session"
)

const twoCaptchaBase = "https://2captcha.com"

// captchaSolver submits image captchas to the 2captcha service and polls for
// the human-provided answer.
type captchaSolver struct {
	session  *session.Session
	apiKey   string
	interval time.Duration
}

func newCaptchaSolver(s *session.Session, apiKey string) *captchaSolver {
	return &captchaSolver{session: s, apiKey: apiKey, interval: 5 * time.Second}
}

type captchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// Solve uploads the captcha image and waits for an answer. The returned id
// is used to report the answer's quality back.
func (c *captchaSolver) Solve(ctx context.Context, image []byte) (answer, id string, err error) {
	resp, err := c.session.PostMultipart(ctx,
		twoCaptchaBase+"/in.php",
		url.Values{"key": {c.apiKey}, "json": {"1"}},
		[]session.FilePart{{Field: "file", Data: image, Name: "captcha.jpg", ContentType: "image/jpeg"}},
	)
	if err != nil {
		return "", "", fmt.Errorf("submitting captcha: %w", err)
	}

	var submitted captchaResponse
	if err := session.DecodeJSON(resp, &submitted); err != nil {
		return "", "", fmt.Errorf("captcha submit response: %w", err)
	}
	if submitted.Status != 1 {
		return "", "", fmt.Errorf("captcha service rejected submission: %s", submitted.Request)
	}
	id = submitted.Request

	log.WithFields(log.Fields{"captcha_id": id}).Info("Waiting for captcha solution")

	for {
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(c.interval):
		}

		resp, err := c.session.Get(ctx, fmt.Sprintf(
			"%s/res.php?key=%s&action=get&id=%s&json=1", twoCaptchaBase, url.QueryEscape(c.apiKey), url.QueryEscape(id)))
		if err != nil {
			return "", "", fmt.Errorf("polling captcha solution: %w", err)
		}
		var polled captchaResponse
		if err := session.DecodeJSON(resp, &polled); err != nil {
			return "", "", fmt.Errorf("captcha poll response: %w", err)
		}
		if polled.Request == "CAPCHA_NOT_READY" {
			continue
		}
		if polled.Status != 1 {
			return "", "", fmt.Errorf("captcha service error: %s", polled.Request)
		}
		return polled.Request, id, nil
	}
}

// Report tells the service whether the answer worked, improving future
// accuracy and refunding bad answers.
func (c *captchaSolver) Report(ctx context.Context, id string, good bool) {
	action := "reportbad"
	if good {
		action = "reportgood"
	}
	resp, err := c.session.Get(ctx, fmt.Sprintf(
		"%s/res.php?key=%s&action=%s&id=%s", twoCaptchaBase, url.QueryEscape(c.apiKey), action, url.QueryEscape(id)))
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("Failed to report captcha answer")
		return
	}
	resp.Body.Close()
}
