package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/notepid/twilight_forum/internal/captcha"
	"github.com/notepid/twilight_forum/internal/forum"
	"github.com/notepid/twilight_forum/internal/media"
	"github.com/notepid/twilight_forum/internal/session"
	"github.com/notepid/twilight_forum/internal/telemetry"
	"github.com/notepid/twilight_forum/internal/user"
)

// bodyOverhead is the allowance for form fields on top of an image upload.
const bodyOverhead = 1 << 20

// Deps is everything the router needs. Captcha, Images, Metrics,
// MetricsHandler, LoginLimiter and Health are optional.
type Deps struct {
	Users          *user.Service
	Forum          *forum.Service
	Sessions       *session.Manager
	Captcha        *captcha.Verifier
	Images         *media.Store
	Metrics        *telemetry.ForumMetrics
	MetricsHandler http.Handler
	LoginLimiter   *LimiterPool
	Logger         *slog.Logger
	Health         func(context.Context) error
}

// NewRouter builds the HTTP handler for the forum API.
func NewRouter(d Deps) http.Handler {
	h := &Handler{
		users:    d.Users,
		forum:    d.Forum,
		sessions: d.Sessions,
		captcha:  d.Captcha,
		images:   d.Images,
		metrics:  d.Metrics,
		health:   d.Health,
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limited := func(hf http.HandlerFunc) http.Handler {
		if d.LoginLimiter == nil {
			return hf
		}
		return RateLimit(d.LoginLimiter, d.Metrics)(hf)
	}

	r := mux.NewRouter()
	r.Use(Metrics(d.Metrics))

	r.Handle("/register", limited(h.verified(h.register))).Methods(http.MethodPost)
	r.Handle("/login", limited(h.login)).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.logout).Methods(http.MethodPost)

	r.HandleFunc("/areas", h.listAreas).Methods(http.MethodGet)
	r.HandleFunc("/areas", h.verified(h.createArea)).Methods(http.MethodPost)
	r.HandleFunc("/areas/{id:[0-9]+}", h.getArea).Methods(http.MethodGet)
	r.HandleFunc("/areas/{id:[0-9]+}", h.deleteArea).Methods(http.MethodDelete)
	r.HandleFunc("/areas/{id:[0-9]+}/threads", h.verified(h.createThread)).Methods(http.MethodPost)
	r.HandleFunc("/areas/{id:[0-9]+}/access", h.accessList).Methods(http.MethodGet)
	r.HandleFunc("/areas/{id:[0-9]+}/access", h.grant).Methods(http.MethodPost)
	r.HandleFunc("/areas/{id:[0-9]+}/access/{username}", h.revoke).Methods(http.MethodDelete)

	r.HandleFunc("/threads/{id:[0-9]+}", h.getThread).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id:[0-9]+}", h.deleteThread).Methods(http.MethodDelete)
	r.HandleFunc("/threads/{id:[0-9]+}/messages", h.verified(h.postMessage)).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id:[0-9]+}", h.deleteMessage).Methods(http.MethodDelete)

	r.HandleFunc("/search", h.search).Methods(http.MethodGet)
	r.HandleFunc("/notifications", h.notifications).Methods(http.MethodGet)
	r.HandleFunc(media.URLPrefix+"{name}", h.upload).Methods(http.MethodGet)

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	if d.MetricsHandler != nil {
		r.Handle("/metrics", d.MetricsHandler).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	maxBody := int64(media.DefaultMaxBytes)
	if d.Images != nil {
		maxBody = d.Images.MaxBytes()
	}

	return Chain(r,
		RequestID,
		Recovery,
		MaxBodySize(maxBody+bodyOverhead),
		Sessions(d.Sessions),
		Logging(logger),
	)
}
