package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/notepid/twilight_forum/internal/captcha"
	"github.com/notepid/twilight_forum/internal/credential"
	"github.com/notepid/twilight_forum/internal/db"
	"github.com/notepid/twilight_forum/internal/forum"
	"github.com/notepid/twilight_forum/internal/media"
	"github.com/notepid/twilight_forum/internal/session"
	"github.com/notepid/twilight_forum/internal/user"
)

const strongPassword = "violet-harbor-tango-91"

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

type testEnv struct {
	srv     *httptest.Server
	handler http.Handler
	users   *user.Service
	images  *media.Store
	db      *db.DB
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Open(filepath.Join(dir, "forum.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	images, err := media.NewStore(filepath.Join(dir, "uploads"), 1<<16)
	if err != nil {
		t.Fatalf("media store: %v", err)
	}
	users := user.NewService(user.NewRepo(database), credential.NewService(4, 2))
	sessions, err := session.NewManager(session.NewStore(database), "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}

	deps := Deps{
		Users:    users,
		Forum:    forum.NewService(database, forum.WithImages(images)),
		Sessions: sessions,
		Images:   images,
		Health:   func(ctx context.Context) error { return database.PingContext(ctx) },
	}
	if mutate != nil {
		mutate(&deps)
	}

	handler := NewRouter(deps)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, handler: handler, users: users, images: images, db: database}
}

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func (e *testEnv) client(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &client{t: t, base: e.srv.URL, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, rdr)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *client) send(req *http.Request, out any) int {
	c.t.Helper()
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s: %v", req.Method, req.URL.Path, err)
		}
	}
	return resp.StatusCode
}

func (c *client) signUp(name string) {
	c.t.Helper()
	if code := c.do(http.MethodPost, "/register", map[string]string{
		"username": name, "password": strongPassword, "confirm_password": strongPassword,
	}, nil); code != http.StatusCreated {
		c.t.Fatalf("register %s: status %d", name, code)
	}
	if code := c.do(http.MethodPost, "/login", map[string]string{
		"username": name, "password": strongPassword,
	}, nil); code != http.StatusOK {
		c.t.Fatalf("login %s: status %d", name, code)
	}
}

func (e *testEnv) promote(t *testing.T, name string) {
	t.Helper()
	ctx := context.Background()
	u, err := e.users.Repo().GetByUsername(ctx, name)
	if err != nil {
		t.Fatalf("lookup %s: %v", name, err)
	}
	if err := e.users.Repo().SetAdmin(ctx, u.ID, true); err != nil {
		t.Fatalf("promote %s: %v", name, err)
	}
}

func TestForumFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.client(t)
	admin.signUp("admin")
	env.promote(t, "admin")
	alice := env.client(t)
	alice.signUp("alice")

	var area areaView
	if code := admin.do(http.MethodPost, "/areas", map[string]any{"topic": "General"}, &area); code != http.StatusCreated {
		t.Fatalf("create area: status %d", code)
	}

	var thread threadView
	path := fmt.Sprintf("/areas/%d/threads", area.ID)
	if code := alice.do(http.MethodPost, path, map[string]string{"title": "Hello", "message": "first"}, &thread); code != http.StatusCreated {
		t.Fatalf("create thread: status %d", code)
	}
	if thread.Owner != "alice" || thread.Title != "Hello" {
		t.Fatalf("unexpected thread %+v", thread)
	}

	var msg messageView
	path = fmt.Sprintf("/threads/%d/messages", thread.ID)
	if code := admin.do(http.MethodPost, path, map[string]string{"message": "welcome"}, &msg); code != http.StatusCreated {
		t.Fatalf("post message: status %d", code)
	}

	var got threadView
	if code := alice.do(http.MethodGet, fmt.Sprintf("/threads/%d", thread.ID), nil, &got); code != http.StatusOK {
		t.Fatalf("get thread: status %d", code)
	}
	if len(got.Messages) != 2 || got.Messages[1].Sender != "admin" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}

	var notes []notificationView
	if code := alice.do(http.MethodGet, "/notifications", nil, &notes); code != http.StatusOK {
		t.Fatalf("notifications: status %d", code)
	}
	if len(notes) != 1 || notes[0].Sender != "admin" || notes[0].Message != "welcome" {
		t.Fatalf("unexpected notifications %+v", notes)
	}

	var results searchView
	if code := alice.do(http.MethodGet, "/search?query=welc", nil, &results); code != http.StatusOK {
		t.Fatalf("search: status %d", code)
	}
	if len(results.Messages) != 1 || len(results.Areas) != 0 {
		t.Fatalf("unexpected search results %+v", results)
	}

	var del map[string]bool
	if code := admin.do(http.MethodDelete, fmt.Sprintf("/messages/%d", msg.ID), nil, &del); code != http.StatusOK {
		t.Fatalf("delete message: status %d", code)
	}
	if del["thread_deleted"] {
		t.Fatal("thread should survive while it still has messages")
	}

	var areas []areaView
	if code := alice.do(http.MethodGet, "/areas", nil, &areas); code != http.StatusOK {
		t.Fatalf("list areas: status %d", code)
	}
	if len(areas) != 1 || areas[0].ThreadCount != 1 || areas[0].MessageCount != 1 {
		t.Fatalf("unexpected areas %+v", areas)
	}
}

func TestSecretAreaAccess(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.client(t)
	admin.signUp("admin")
	env.promote(t, "admin")
	alice := env.client(t)
	alice.signUp("alice")

	var area areaView
	admin.do(http.MethodPost, "/areas", map[string]any{"topic": "Staff", "is_secret": true}, &area)
	if !area.IsSecret {
		t.Fatal("expected secret area")
	}

	areaPath := fmt.Sprintf("/areas/%d", area.ID)
	if code := alice.do(http.MethodGet, areaPath, nil, nil); code != http.StatusNotFound {
		t.Fatalf("hidden area should 404, got %d", code)
	}

	if code := admin.do(http.MethodPost, areaPath+"/access", map[string]string{"username": "alice"}, nil); code != http.StatusNoContent {
		t.Fatalf("grant: status %d", code)
	}
	if code := admin.do(http.MethodPost, areaPath+"/access", map[string]string{"username": "nobody"}, nil); code != http.StatusNotFound {
		t.Fatalf("grant to unknown user: status %d", code)
	}

	var list map[string][]string
	admin.do(http.MethodGet, areaPath+"/access", nil, &list)
	if len(list["usernames"]) != 1 || list["usernames"][0] != "alice" {
		t.Fatalf("unexpected access list %+v", list)
	}
	if code := alice.do(http.MethodGet, areaPath, nil, nil); code != http.StatusOK {
		t.Fatalf("granted area should be visible, got %d", code)
	}

	if code := admin.do(http.MethodDelete, areaPath+"/access/alice", nil, nil); code != http.StatusNoContent {
		t.Fatalf("revoke: status %d", code)
	}
	if code := alice.do(http.MethodGet, areaPath, nil, nil); code != http.StatusNotFound {
		t.Fatalf("revoked area should 404, got %d", code)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)
	anon := env.client(t)
	alice := env.client(t)
	alice.signUp("alice")

	tests := []struct {
		name   string
		c      *client
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"anonymous create", anon, http.MethodPost, "/areas", map[string]string{"topic": "x"}, http.StatusUnauthorized, "unauthorized"},
		{"non-admin create", alice, http.MethodPost, "/areas", map[string]string{"topic": "x"}, http.StatusForbidden, "forbidden"},
		{"missing area", alice, http.MethodGet, "/areas/999", nil, http.StatusNotFound, "not_found"},
		{"unknown route", alice, http.MethodGet, "/nope", nil, http.StatusNotFound, "not_found"},
		{"short query", alice, http.MethodGet, "/search?query=%20", nil, http.StatusBadRequest, "validation_error"},
		{"taken", anon, http.MethodPost, "/register", map[string]string{
			"username": "alice", "password": strongPassword, "confirm_password": strongPassword,
		}, http.StatusConflict, "username_taken"},
		{"weak", anon, http.MethodPost, "/register", map[string]string{
			"username": "bob", "password": "password", "confirm_password": "password",
		}, http.StatusBadRequest, "weak_password"},
		{"mismatch", anon, http.MethodPost, "/register", map[string]string{
			"username": "bob", "password": strongPassword, "confirm_password": strongPassword + "x",
		}, http.StatusBadRequest, "password_mismatch"},
		{"bad login", anon, http.MethodPost, "/login", map[string]string{
			"username": "alice", "password": "wrong",
		}, http.StatusUnauthorized, "invalid_credentials"},
		{"unknown login", anon, http.MethodPost, "/login", map[string]string{
			"username": "ghost", "password": "wrong",
		}, http.StatusUnauthorized, "invalid_credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorEnvelope
			code := tt.c.do(tt.method, tt.path, tt.body, &body)
			if code != tt.status || body.Error != tt.code {
				t.Fatalf("expected %d %s, got %d %+v", tt.status, tt.code, code, body)
			}
		})
	}
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func TestFailedLoginLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	env := newTestEnv(t, nil)
	alice := env.client(t)
	alice.signUp("alice")
	buf.Reset()

	creds := map[string]string{"username": "alice", "password": "wrong"}
	if code := env.client(t).do(http.MethodPost, "/login", creds, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if n := strings.Count(buf.String(), "login failed"); n != 1 {
		t.Fatalf("expected one login failure record, got %d:\n%s", n, buf.String())
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.client(t)
	alice.signUp("alice")

	if code := alice.do(http.MethodGet, "/notifications", nil, nil); code != http.StatusOK {
		t.Fatalf("expected session to work, got %d", code)
	}
	if code := alice.do(http.MethodPost, "/logout", nil, nil); code != http.StatusNoContent {
		t.Fatalf("logout: status %d", code)
	}
	if code := alice.do(http.MethodGet, "/notifications", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", code)
	}
}

func multipartPost(t *testing.T, url string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "pic.png")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		fw.Write(image)
	}
	mw.Close()
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImageUpload(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.client(t)
	admin.signUp("admin")
	env.promote(t, "admin")

	var area areaView
	admin.do(http.MethodPost, "/areas", map[string]any{"topic": "Pics"}, &area)

	req := multipartPost(t, fmt.Sprintf("%s/areas/%d/threads", env.srv.URL, area.ID),
		map[string]string{"title": "Look", "message": "a picture"}, pngBytes)
	var thread threadView
	if code := admin.send(req, &thread); code != http.StatusCreated {
		t.Fatalf("create thread: status %d", code)
	}

	var got threadView
	admin.do(http.MethodGet, fmt.Sprintf("/threads/%d", thread.ID), nil, &got)
	if len(got.Messages) != 1 || !strings.HasPrefix(got.Messages[0].ImageURL, media.URLPrefix) {
		t.Fatalf("expected image url, got %+v", got.Messages)
	}

	ref := got.Messages[0].ImageURL
	if code, data := admin.fetch(ref); code != http.StatusOK || !bytes.Equal(data, pngBytes) {
		t.Fatalf("unexpected image response %d (%d bytes)", code, len(data))
	}
	if code, _ := env.client(t).fetch(ref); code != http.StatusUnauthorized {
		t.Fatalf("expected anonymous image fetch to 401, got %d", code)
	}

	req = multipartPost(t, fmt.Sprintf("%s/threads/%d/messages", env.srv.URL, thread.ID),
		map[string]string{"message": "not an image"}, []byte("plain text"))
	var body errorEnvelope
	if code := admin.send(req, &body); code != http.StatusBadRequest || body.Error != "validation_error" {
		t.Fatalf("expected rejected upload, got %d %+v", code, body)
	}

	req = multipartPost(t, fmt.Sprintf("/threads/%d/messages", thread.ID),
		map[string]string{"message": "huge"}, bytes.Repeat([]byte{1}, 3<<20))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}

	if code := admin.do(http.MethodGet, media.URLPrefix+"..%2Fforum.db", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected traversal to 404, got %d", code)
	}
}

func (c *client) fetch(path string) (int, []byte) {
	c.t.Helper()
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		c.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func TestSecretAreaImages(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.client(t)
	admin.signUp("admin")
	env.promote(t, "admin")
	alice := env.client(t)
	alice.signUp("alice")

	var area areaView
	admin.do(http.MethodPost, "/areas", map[string]any{"topic": "Staff", "is_secret": true}, &area)
	req := multipartPost(t, fmt.Sprintf("%s/areas/%d/threads", env.srv.URL, area.ID),
		map[string]string{"title": "Plans", "message": "floor plan"}, pngBytes)
	var thread threadView
	if code := admin.send(req, &thread); code != http.StatusCreated {
		t.Fatalf("create thread: status %d", code)
	}
	var got threadView
	admin.do(http.MethodGet, fmt.Sprintf("/threads/%d", thread.ID), nil, &got)
	ref := got.Messages[0].ImageURL

	if code, _ := alice.fetch(ref); code != http.StatusNotFound {
		t.Fatalf("image in hidden area should 404, got %d", code)
	}

	areaPath := fmt.Sprintf("/areas/%d", area.ID)
	admin.do(http.MethodPost, areaPath+"/access", map[string]string{"username": "alice"}, nil)
	if code, data := alice.fetch(ref); code != http.StatusOK || !bytes.Equal(data, pngBytes) {
		t.Fatalf("granted user should see image, got %d", code)
	}

	admin.do(http.MethodDelete, areaPath+"/access/alice", nil, nil)
	if code, _ := alice.fetch(ref); code != http.StatusNotFound {
		t.Fatalf("revoked user should lose the image, got %d", code)
	}

	// a file on disk that no message references is not served
	orphan, err := env.images.Store(context.Background(), pngBytes)
	if err != nil {
		t.Fatalf("store orphan: %v", err)
	}
	if code, _ := admin.fetch(orphan); code != http.StatusNotFound {
		t.Fatalf("unattached image should 404, got %d", code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	now := time.Now()
	pool := NewLimiterPool(0.1, 2, func() time.Time { return now })
	env := newTestEnv(t, func(d *Deps) { d.LoginLimiter = pool })
	c := env.client(t)

	creds := map[string]string{"username": "ghost", "password": "wrong"}
	for i := 0; i < 2; i++ {
		if code := c.do(http.MethodPost, "/login", creds, nil); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, code)
		}
	}

	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/login", strings.NewReader(`{}`))
	resp, err := c.http.Do(req)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	// other routes are not throttled
	if code := c.do(http.MethodGet, "/healthz", nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestLimiterPool(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	pool := NewLimiterPool(1, 1, func() time.Time { return now })

	if ok, _ := pool.Allow("a"); !ok {
		t.Fatal("first request should pass")
	}
	ok, retry := pool.Allow("a")
	if ok || retry != 1 {
		t.Fatalf("expected denial with retry 1, got %v %d", ok, retry)
	}
	if ok, _ := pool.Allow("b"); !ok {
		t.Fatal("keys are limited independently")
	}

	now = now.Add(time.Second)
	if ok, _ := pool.Allow("a"); !ok {
		t.Fatal("bucket should refill")
	}

	now = now.Add(staleThreshold + time.Second)
	pool.Cleanup()
	if pool.Len() != 0 {
		t.Fatalf("expected stale limiters dropped, got %d", pool.Len())
	}
}

func TestCaptchaGate(t *testing.T) {
	var success atomic.Bool
	verify := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"success": success.Load()})
	}))
	defer verify.Close()

	env := newTestEnv(t, func(d *Deps) {
		d.Captcha = captcha.New(captcha.Config{Enabled: true, Secret: "s", VerifyURL: verify.URL})
	})
	c := env.client(t)
	in := map[string]string{"username": "alice", "password": strongPassword, "confirm_password": strongPassword}

	var body errorEnvelope
	if code := c.do(http.MethodPost, "/register", in, &body); code != http.StatusServiceUnavailable || body.Error != "verification_failed" {
		t.Fatalf("expected captcha rejection, got %d %+v", code, body)
	}

	success.Store(true)
	data, _ := json.Marshal(in)
	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/register", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("CF-Turnstile-Response", "token")
	if code := c.send(req, nil); code != http.StatusCreated {
		t.Fatalf("expected registration with captcha token, got %d", code)
	}

	// login is never captcha gated
	if code := c.do(http.MethodPost, "/login", map[string]string{"username": "alice", "password": strongPassword}, nil); code != http.StatusOK {
		t.Fatalf("login: status %d", code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, err := http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected healthz %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	env.db.Close()
	resp, err = http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with closed db, got %d", resp.StatusCode)
	}
}

func TestRecovery(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), RequestID, Recovery)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id on recovered response")
	}
}
