package telemetry

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/notepid/twilight_forum/internal/access"
)

// ShutdownFunc releases telemetry resources.
type ShutdownFunc func(ctx context.Context) error

// Telemetry owns a meter provider exported through its own Prometheus registry.
type Telemetry struct {
	registry *promclient.Registry
	provider *sdkmetric.MeterProvider
}

// Setup initializes OpenTelemetry with a Prometheus exporter.
func Setup(ctx context.Context) (*Telemetry, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return &Telemetry{registry: registry, provider: provider}, nil
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
func (t *Telemetry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// ForumMetrics holds all OTel instruments for the forum.
type ForumMetrics struct {
	httpRequestsTotal       otelmetric.Int64Counter
	httpRequestDuration     otelmetric.Float64Histogram
	authAttemptsTotal       otelmetric.Int64Counter
	policyDecisionsTotal    otelmetric.Int64Counter
	captchaChecksTotal      otelmetric.Int64Counter
	rateLimitDecisionsTotal otelmetric.Int64Counter
}

// NewForumMetrics creates and registers all forum metrics.
func (t *Telemetry) NewForumMetrics() (*ForumMetrics, error) {
	meter := t.provider.Meter("forum")
	m := &ForumMetrics{}
	var err error

	latencyBuckets := otelmetric.WithExplicitBucketBoundaries(
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
	)

	if m.httpRequestsTotal, err = meter.Int64Counter("forum_http_requests_total",
		otelmetric.WithDescription("Total HTTP requests")); err != nil {
		return nil, fmt.Errorf("creating http_requests_total: %w", err)
	}
	if m.httpRequestDuration, err = meter.Float64Histogram("forum_http_request_duration_seconds",
		otelmetric.WithDescription("HTTP request duration"), latencyBuckets); err != nil {
		return nil, fmt.Errorf("creating http_request_duration: %w", err)
	}
	if m.authAttemptsTotal, err = meter.Int64Counter("forum_auth_attempts_total",
		otelmetric.WithDescription("Total login and registration attempts")); err != nil {
		return nil, fmt.Errorf("creating auth_attempts_total: %w", err)
	}
	if m.policyDecisionsTotal, err = meter.Int64Counter("forum_policy_decisions_total",
		otelmetric.WithDescription("Total access policy decisions")); err != nil {
		return nil, fmt.Errorf("creating policy_decisions_total: %w", err)
	}
	if m.captchaChecksTotal, err = meter.Int64Counter("forum_captcha_checks_total",
		otelmetric.WithDescription("Total captcha verifications")); err != nil {
		return nil, fmt.Errorf("creating captcha_checks_total: %w", err)
	}
	if m.rateLimitDecisionsTotal, err = meter.Int64Counter("forum_ratelimit_decisions_total",
		otelmetric.WithDescription("Total rate limit decisions")); err != nil {
		return nil, fmt.Errorf("creating ratelimit_decisions_total: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric.
func (m *ForumMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, durationSec float64) {
	attrs := otelmetric.WithAttributes(
		methodAttr(method),
		routeAttr(route),
		statusAttr(status),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, durationSec, attrs)
}

// RecordAuthAttempt records a login or registration outcome.
func (m *ForumMetrics) RecordAuthAttempt(ctx context.Context, kind, result string) {
	m.authAttemptsTotal.Add(ctx, 1, otelmetric.WithAttributes(kindAttr(kind), resultAttr(result)))
}

// RecordDecision records an access policy decision. It has the shape of
// forum.DecisionObserver.
func (m *ForumMetrics) RecordDecision(ctx context.Context, action access.Action, err error) {
	m.policyDecisionsTotal.Add(ctx, 1, otelmetric.WithAttributes(
		actionAttr(action.String()),
		resultAttr(decisionResult(err)),
	))
}

// RecordCaptcha records a captcha verification result.
func (m *ForumMetrics) RecordCaptcha(ctx context.Context, result string) {
	m.captchaChecksTotal.Add(ctx, 1, otelmetric.WithAttributes(resultAttr(result)))
}

// RecordRateLimitDecision records a rate limit decision.
func (m *ForumMetrics) RecordRateLimitDecision(ctx context.Context, result string) {
	m.rateLimitDecisionsTotal.Add(ctx, 1, otelmetric.WithAttributes(resultAttr(result)))
}
