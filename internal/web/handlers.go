package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/notepid/twilight_forum/internal/access"
	"github.com/notepid/twilight_forum/internal/captcha"
	"github.com/notepid/twilight_forum/internal/domain"
	"github.com/notepid/twilight_forum/internal/forum"
	"github.com/notepid/twilight_forum/internal/media"
	"github.com/notepid/twilight_forum/internal/session"
	"github.com/notepid/twilight_forum/internal/telemetry"
	"github.com/notepid/twilight_forum/internal/user"
)

// Handler serves the forum's JSON API.
type Handler struct {
	users    *user.Service
	forum    *forum.Service
	sessions *session.Manager
	captcha  *captcha.Verifier
	images   *media.Store
	metrics  *telemetry.ForumMetrics
	health   func(context.Context) error
}

func principal(r *http.Request) domain.Principal {
	return access.PrincipalFromContext(r.Context())
}

func pathID(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil || id <= 0 {
		return 0, domain.ErrNotFound
	}
	return id, nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if tooLarge(err) {
			return errBodyTooLarge
		}
		return domain.Invalid("body", "invalid JSON body")
	}
	return nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func (h *Handler) recordAuth(ctx context.Context, kind string, err error) {
	if h.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	h.metrics.RecordAuthAttempt(ctx, kind, result)
}

// verified gates a mutation behind the captcha check when it is enabled.
func (h *Handler) verified(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.captcha == nil || !h.captcha.Enabled() {
			next(w, r)
			return
		}
		token := r.Header.Get("CF-Turnstile-Response")
		if token == "" {
			token = r.FormValue(captcha.FormField)
		}
		ip := r.Header.Get("CF-Connecting-IP")
		if ip == "" {
			ip = clientIP(r)
		}
		err := h.captcha.Verify(r.Context(), token, ip)
		if h.metrics != nil {
			result := "success"
			if err != nil {
				result = "failure"
			}
			h.metrics.RecordCaptcha(r.Context(), result)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r)
	}
}

type registerRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.Register(r.Context(), in.Username, in.Password, in.ConfirmPassword)
	h.recordAuth(r.Context(), "register", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": u.ID, "username": u.Username})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.users.Authenticate(r.Context(), in.Username, in.Password)
	h.recordAuth(r.Context(), "login", err)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			slog.Warn("login failed", "remote_addr", clientIP(r), "request_id", RequestIDFromContext(r.Context()))
		}
		writeError(w, r, err)
		return
	}

	token, expires, err := h.sessions.Issue(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Info("login", "user_id", p.UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"username":   p.Username,
		"role":       p.Role.String(),
		"expires_at": expires.UTC(),
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if err := h.sessions.Revoke(r.Context(), c.Value); err != nil {
			writeError(w, r, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.forum.ListAreas(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]areaView, 0, len(areas))
	for _, a := range areas {
		out = append(out, newAreaView(a))
	}
	writeJSON(w, http.StatusOK, out)
}

type createAreaRequest struct {
	Topic    string `json:"topic"`
	IsSecret bool   `json:"is_secret"`
}

func (h *Handler) createArea(w http.ResponseWriter, r *http.Request) {
	var in createAreaRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	area, err := h.forum.CreateArea(r.Context(), principal(r), in.Topic, in.IsSecret)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAreaView(area))
}

func (h *Handler) getArea(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	area, err := h.forum.GetArea(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAreaView(area))
}

func (h *Handler) deleteArea(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.forum.DeleteArea(r.Context(), principal(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type postRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// readPost accepts either a JSON body or a multipart form with an optional
// "image" file.
func (h *Handler) readPost(r *http.Request) (postRequest, []byte, error) {
	var in postRequest
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return in, nil, decodeJSON(r, &in)
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		if tooLarge(err) {
			return in, nil, errBodyTooLarge
		}
		return in, nil, domain.Invalid("body", "invalid form body")
	}
	in.Title = r.FormValue("title")
	in.Message = r.FormValue("message")

	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil, nil
	}
	if err != nil {
		return in, nil, domain.Invalid("image", "invalid image upload")
	}
	defer file.Close()

	limit := int64(media.DefaultMaxBytes)
	if h.images != nil {
		limit = h.images.MaxBytes()
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return in, nil, domain.Invalid("image", "invalid image upload")
	}
	return in, data, nil
}

func (h *Handler) createThread(w http.ResponseWriter, r *http.Request) {
	areaID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, image, err := h.readPost(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	thread, err := h.forum.CreateThread(r.Context(), principal(r), areaID, in.Title,
		forum.Post{Text: in.Message, Image: image})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newThreadView(thread))
}

func (h *Handler) getThread(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	thread, err := h.forum.GetThread(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newThreadView(thread))
}

func (h *Handler) deleteThread(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.forum.DeleteThread(r.Context(), principal(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	threadID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, image, err := h.readPost(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.forum.PostMessage(r.Context(), principal(r), threadID, forum.Post{Text: in.Message, Image: image})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newMessageView(msg))
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	threadDeleted, err := h.forum.DeleteMessage(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"thread_deleted": threadDeleted})
}

func (h *Handler) accessList(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	names, err := h.forum.AccessList(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"usernames": names})
}

type grantRequest struct {
	Username string `json:"username"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in grantRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.forum.Grant(r.Context(), principal(r), id, in.Username); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.forum.Revoke(r.Context(), principal(r), id, mux.Vars(r)["username"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	res, err := h.forum.Search(r.Context(), principal(r), r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSearchView(res))
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	notes, err := h.forum.Notifications(r.Context(), principal(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]notificationView, 0, len(notes))
	for _, n := range notes {
		out = append(out, newNotificationView(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		writeError(w, r, domain.ErrNotFound)
		return
	}
	name := mux.Vars(r)["name"]
	path, err := h.images.Path(name)
	if err != nil {
		writeError(w, r, domain.ErrNotFound)
		return
	}
	if err := h.forum.AuthorizeImage(r.Context(), principal(r), media.URLPrefix+name); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeFile(w, r, path)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
