package telemetry_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/notepid/twilight_forum/internal/access"
	"github.com/notepid/twilight_forum/internal/domain"
	"github.com/notepid/twilight_forum/internal/telemetry"
)

func TestSetupAndShutdown(t *testing.T) {
	tel, err := telemetry.Setup(context.Background())
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestForumMetrics(t *testing.T) {
	tel, err := telemetry.Setup(context.Background())
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer tel.Shutdown(context.Background())

	m, err := tel.NewForumMetrics()
	if err != nil {
		t.Fatalf("NewForumMetrics failed: %v", err)
	}

	ctx := context.Background()
	m.RecordHTTPRequest(ctx, "GET", "/areas", 200, 0.05)
	m.RecordAuthAttempt(ctx, "login", "success")
	m.RecordDecision(ctx, access.ReadArea, domain.ErrNotFound)
	m.RecordDecision(ctx, access.DeleteArea, nil)
	m.RecordCaptcha(ctx, "failure")
	m.RecordRateLimitDecision(ctx, "allowed")

	rec := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	output := string(body)
	for _, want := range []string{
		"forum_http_requests_total",
		"forum_http_request_duration_seconds",
		"forum_auth_attempts_total",
		"forum_policy_decisions_total",
		"forum_captcha_checks_total",
		"forum_ratelimit_decisions_total",
		`action="read_area"`,
		`result="hidden"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
