package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"prepmate/internal/aiclient"
	"prepmate/internal/app"
	"prepmate/internal/ratelimit"
	"prepmate/internal/store"
)

func newTestServer(t *testing.T, aiURL string, opts Options) http.Handler {
	t.Helper()
	st := store.NewMemoryStore()
	sessions := store.NewJWTSessionStore("0123456789abcdef0123456789abcdef", time.Hour)
	a := app.New(app.Config{
		Store:    st,
		Sessions: sessions,
		AI:       aiclient.New(aiURL),
	})
	if opts.SessionTTL == 0 {
		opts.SessionTTL = time.Hour
	}
	return New(a, opts).Router()
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestHealth(t *testing.T) {
	handler := newTestServer(t, "http://localhost:0", Options{})
	rec := doJSON(t, handler, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "OK" {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestSignupThenMe(t *testing.T) {
	handler := newTestServer(t, "http://localhost:0", Options{})

	rec := doJSON(t, handler, "POST", "/auth/signup",
		`{"name":"Ana","email":"ana@x.com","password":"secret1"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", rec.Code, rec.Body.String())
	}
	cookie := sessionCookie(t, rec)
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("password leaked: %s", rec.Body.String())
	}

	rec = doJSON(t, handler, "GET", "/auth/me", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}
	var me map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &me)
	if me["name"] != "Ana" || me["email"] != "ana@x.com" || me["id"] == "" {
		t.Fatalf("me body = %s", rec.Body.String())
	}

	// Duplicate email conflicts.
	rec = doJSON(t, handler, "POST", "/auth/signup",
		`{"name":"Ana2","email":"ana@x.com","password":"secret2"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate signup status = %d", rec.Code)
	}
}

func TestLoginFailuresIdentical(t *testing.T) {
	handler := newTestServer(t, "http://localhost:0", Options{})
	doJSON(t, handler, "POST", "/auth/signup",
		`{"name":"Ana","email":"ana@x.com","password":"secret1"}`, nil)

	wrongPassword := doJSON(t, handler, "POST", "/auth/login",
		`{"email":"ana@x.com","password":"nope"}`, nil)
	unknownEmail := doJSON(t, handler, "POST", "/auth/login",
		`{"email":"ghost@x.com","password":"nope"}`, nil)
	if wrongPassword.Code != http.StatusBadRequest || unknownEmail.Code != http.StatusBadRequest {
		t.Fatalf("statuses = %d, %d", wrongPassword.Code, unknownEmail.Code)
	}
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("failure bodies differ: %s vs %s",
			wrongPassword.Body.String(), unknownEmail.Body.String())
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	handler := newTestServer(t, "http://localhost:0", Options{})
	for _, route := range []struct{ method, path string }{
		{"GET", "/auth/me"},
		{"POST", "/resume/analyze"},
		{"GET", "/resume/history"},
		{"POST", "/interview/generate"},
		{"POST", "/interview/feedback"},
		{"GET", "/interview/history"},
	} {
		rec := doJSON(t, handler, route.method, route.path, "{}", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s without cookie = %d", route.method, route.path, rec.Code)
		}
		bad := &http.Cookie{Name: SessionCookieName, Value: "garbage"}
		rec = doJSON(t, handler, route.method, route.path, "{}", bad)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s with bad cookie = %d", route.method, route.path, rec.Code)
		}
	}
}

func TestAnalyzeVerbatimAndHistory(t *testing.T) {
	const upstream = `{"ats_score":{"total_score":78,"final_assessment":"Good fit"},"strengths":["Go"],"suggestions":["More tests"]}`
	ai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(upstream))
	}))
	defer ai.Close()
	handler := newTestServer(t, ai.URL, Options{})

	rec := doJSON(t, handler, "POST", "/auth/signup",
		`{"name":"Ana","email":"ana@x.com","password":"secret1"}`, nil)
	cookie := sessionCookie(t, rec)

	rec = doJSON(t, handler, "POST", "/resume/analyze",
		`{"resumeText":"my resume","jobDescription":"the job"}`, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != upstream {
		t.Fatalf("analyze body not verbatim: %s", rec.Body.String())
	}

	rec = doJSON(t, handler, "GET", "/resume/history", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var history []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d", len(history))
	}
	if score, _ := history[0]["matchScore"].(float64); score != 78 {
		t.Fatalf("matchScore = %v", history[0]["matchScore"])
	}
}

func TestAnalyzeMissingInput(t *testing.T) {
	handler := newTestServer(t, "http://localhost:0", Options{})
	rec := doJSON(t, handler, "POST", "/auth/signup",
		`{"name":"Ana","email":"ana@x.com","password":"secret1"}`, nil)
	cookie := sessionCookie(t, rec)

	rec = doJSON(t, handler, "POST", "/resume/analyze",
		`{"resumeText":"only the resume"}`, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "job description") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestAnalyzeMalformedBodyIs400(t *testing.T) {
	handler := newTestServer(t, "http://localhost:0", Options{})
	rec := doJSON(t, handler, "POST", "/auth/signup",
		`{"name":"Ana","email":"ana@x.com","password":"secret1"}`, nil)
	cookie := sessionCookie(t, rec)

	rec = doJSON(t, handler, "POST", "/resume/analyze",
		`{"resumeText": "oops`, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "internal server error") {
		t.Fatalf("malformed input must not surface as a server fault: %s", rec.Body.String())
	}
}

func TestAnalyzeBodyOverCapIs413(t *testing.T) {
	handler := newTestServer(t, "http://localhost:0", Options{MaxBodyBytes: 64})
	rec := doJSON(t, handler, "POST", "/auth/signup",
		`{"name":"Ana","email":"ana@x.com","password":"secret1"}`, nil)
	cookie := sessionCookie(t, rec)

	body := `{"resumeText":"` + strings.Repeat("x", 256) + `","jobDescription":"j"}`
	rec = doJSON(t, handler, "POST", "/resume/analyze", body, cookie)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestGenerateIncompleteUpstreamWritesNothing(t *testing.T) {
	ai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"questions":[]}`))
	}))
	defer ai.Close()
	handler := newTestServer(t, ai.URL, Options{})

	rec := doJSON(t, handler, "POST", "/auth/signup",
		`{"name":"Ana","email":"ana@x.com","password":"secret1"}`, nil)
	cookie := sessionCookie(t, rec)

	rec = doJSON(t, handler, "POST", "/interview/generate",
		`{"resumeText":"r","jobDescription":"j"}`, cookie)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, "GET", "/interview/history", "", cookie)
	var history []map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &history)
	if len(history) != 0 {
		t.Fatalf("incomplete upstream response must not write history: %v", history)
	}
}

func TestUpstreamDownIs503(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	down.Close()
	handler := newTestServer(t, down.URL, Options{})

	rec := doJSON(t, handler, "POST", "/auth/signup",
		`{"name":"Ana","email":"ana@x.com","password":"secret1"}`, nil)
	cookie := sessionCookie(t, rec)

	rec = doJSON(t, handler, "POST", "/resume/analyze",
		`{"resumeText":"r","jobDescription":"j"}`, cookie)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(mr.Addr(), "", "test:login", 3, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	handler := newTestServer(t, "http://localhost:0", Options{LoginLimiter: limiter})

	doJSON(t, handler, "POST", "/auth/signup",
		`{"name":"Ana","email":"ana@x.com","password":"secret1"}`, nil)

	body := `{"email":"ana@x.com","password":"nope"}`
	for i := 0; i < 3; i++ {
		rec := doJSON(t, handler, "POST", "/auth/login", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d status = %d", i, rec.Code)
		}
	}
	rec := doJSON(t, handler, "POST", "/auth/login", body, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("fourth attempt status = %d", rec.Code)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	handler := newTestServer(t, "http://localhost:0", Options{})
	rec := doJSON(t, handler, "POST", "/auth/logout", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	cookie := sessionCookie(t, rec)
	if cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Fatalf("logout cookie = %+v", cookie)
	}
}
