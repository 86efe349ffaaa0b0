package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

const retryAttempts = 5

// retryBaseDelay is the first backoff interval; doubled each attempt.
var retryBaseDelay = 500 * time.Millisecond

var retryStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var retryMethods = map[string]bool{
	http.MethodDelete:  true,
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodTrace:   true,
}

// retryTransport retries transient failures with exponential backoff before
// handing the response to the caller. Request bodies are rewound through
// GetBody between attempts; a request without GetBody is sent once.
type retryTransport struct {
	base http.RoundTripper
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if !retryMethods[req.Method] || (req.Body != nil && req.GetBody == nil) {
		return base.RoundTrip(req)
	}

	resp, err := retry.DoWithData(
		func() (*http.Response, error) {
			attempt := req
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, retry.Unrecoverable(fmt.Errorf("rewinding request body: %w", err))
				}
				attempt = req.Clone(req.Context())
				attempt.Body = body
			}
			resp, err := base.RoundTrip(attempt)
			if err != nil {
				return nil, err
			}
			if retryStatuses[resp.StatusCode] {
				resp.Body.Close()
				return nil, fmt.Errorf("server returned %s", resp.Status)
			}
			return resp, nil
		},
		retry.Attempts(retryAttempts),
		retry.Delay(retryBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(req.Context()),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
