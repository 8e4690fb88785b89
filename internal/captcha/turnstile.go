// Package captcha verifies Cloudflare Turnstile challenge responses.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/notepid/twilight_forum/internal/domain"
)

// DefaultVerifyURL is Cloudflare's siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// FormField is the form field the Turnstile widget submits.
const FormField = "cf-turnstile-response"

// Verifier checks a client's challenge token. A disabled verifier accepts
// everything; an enabled one rejects whenever the remote check does not
// positively succeed.
type Verifier struct {
	enabled    bool
	secret     string
	siteKey    string
	endpoint   string
	httpClient *http.Client
}

// Config holds the Turnstile settings.
type Config struct {
	Enabled   bool
	Secret    string
	SiteKey   string
	VerifyURL string
	Timeout   time.Duration
}

// New creates a verifier from cfg.
func New(cfg Config) *Verifier {
	endpoint := cfg.VerifyURL
	if endpoint == "" {
		endpoint = DefaultVerifyURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Verifier{
		enabled:    cfg.Enabled,
		secret:     cfg.Secret,
		siteKey:    cfg.SiteKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether challenges are checked.
func (v *Verifier) Enabled() bool {
	return v.enabled
}

// SiteKey returns the public key clients render the widget with.
func (v *Verifier) SiteKey() string {
	return v.siteKey
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify returns nil when token passes, or domain.ErrVerificationFailed.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if !v.enabled {
		return nil
	}
	if token == "" {
		return domain.ErrVerificationFailed
	}

	ok, err := v.check(ctx, token, remoteIP)
	if err != nil {
		slog.Warn("captcha verification unavailable", "error", err)
		return fmt.Errorf("%w: %v", domain.ErrVerificationFailed, err)
	}
	if !ok {
		return domain.ErrVerificationFailed
	}
	return nil
}

func (v *Verifier) check(ctx context.Context, token, remoteIP string) (bool, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("creating siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("calling siteverify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("siteverify returned %d", resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decoding siteverify response: %w", err)
	}
	if !body.Success {
		slog.Debug("captcha rejected", "codes", body.ErrorCodes)
	}
	return body.Success, nil
}
