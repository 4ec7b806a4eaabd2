// Package server is the HTTP edge: routing, the session cookie guard, rate
// limiting on credential endpoints, and translation of application errors
// into status codes and JSON envelopes. No business logic lives here.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"prepmate/internal/aiclient"
	"prepmate/internal/app"
	"prepmate/internal/intake"
	"prepmate/internal/ratelimit"
	"prepmate/internal/util"
	"prepmate/pkg/auth"
	"prepmate/pkg/domain"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "prepmate_session"

// Options configures the HTTP edge.
type Options struct {
	SessionTTL    time.Duration
	CookieSecure  bool
	CORSOrigin    string
	SignupLimiter *ratelimit.FixedWindowLimiter
	LoginLimiter  *ratelimit.FixedWindowLimiter
	MaxBodyBytes  int64
}

// Server routes HTTP traffic to the application layer.
type Server struct {
	app  *app.App
	opts Options
}

// New builds a Server.
func New(a *app.App, opts Options) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = app.DefaultSessionTTL
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 * intake.MaxFileBytes
	}
	return &Server{app: a, opts: opts}
}

// Router returns the handler with the full middleware chain applied.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /auth/signup", s.limited(s.opts.SignupLimiter, s.handleSignup))
	mux.HandleFunc("POST /auth/login", s.limited(s.opts.LoginLimiter, s.handleLogin))
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/me", s.withUser(s.handleMe))
	mux.HandleFunc("GET /user/me", s.withUser(s.handleMe))

	mux.HandleFunc("POST /resume/analyze", s.withUser(s.handleAnalyze))
	mux.HandleFunc("GET /resume/history", s.withUser(s.handleResumeHistory))

	mux.HandleFunc("POST /interview/generate", s.withUser(s.handleGenerate))
	mux.HandleFunc("POST /interview/feedback", s.withUser(s.handleFeedback))
	mux.HandleFunc("POST /interview/ask", s.withUser(s.handleFeedback))
	mux.HandleFunc("POST /interview/ideal-answer", s.withUser(s.handleIdealAnswer))
	mux.HandleFunc("GET /interview/history", s.withUser(s.handleInterviewHistory))

	var handler http.Handler = mux
	handler = util.WithRequestLog(handler)
	handler = util.WithRequestID(handler)
	handler = util.WithCORS(s.opts.CORSOrigin, handler)
	handler = util.WithSecurityHeaders(handler)
	return handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.app.PlatformMetrics(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

type credentialsBody struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, token, err := s.app.SignUp(body.Name, body.Email, body.Password)
	if err != nil {
		if errors.Is(err, app.ErrEmailAlreadyExists) {
			auditLog(r, "signup_conflict", slog.String("email", body.Email))
		}
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, publicUser(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, token, err := s.app.Login(body.Email, body.Password)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			auditLog(r, "login_failed", slog.String("email", body.Email))
		}
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, publicUser(user))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, publicUser(user))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	payload, err := intake.Normalize(r, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	raw, err := s.app.AnalyzeResume(r.Context(), user, &payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRawJSON(w, http.StatusOK, raw)
}

func (s *Server) handleResumeHistory(w http.ResponseWriter, r *http.Request, user domain.User) {
	records, err := s.app.ResumeHistory(user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	payload, err := intake.Normalize(r, app.InterviewConfigFields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	questions, interviewID, err := s.app.GenerateInterview(r.Context(), user, &payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"questions":   questions,
		"interviewId": interviewID,
	})
}

type feedbackBody struct {
	ResumeContent string `json:"resumeContent"`
	JDContent     string `json:"jdContent"`
	Question      string `json:"question"`
	Answer        string `json:"answer"`
	InterviewID   string `json:"interviewId"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request, user domain.User) {
	var body feedbackBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.ResumeContent == "" || body.JDContent == "" || body.Question == "" || body.Answer == "" {
		writeErrorMessage(w, http.StatusBadRequest, "resumeContent, jdContent, question and answer are required")
		return
	}
	raw, err := s.app.AnswerFeedback(r.Context(), app.FeedbackInput{
		ResumeContent: body.ResumeContent,
		JDContent:     body.JDContent,
		Question:      body.Question,
		Answer:        body.Answer,
		InterviewID:   body.InterviewID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRawJSON(w, http.StatusOK, raw)
}

func (s *Server) handleIdealAnswer(w http.ResponseWriter, r *http.Request, user domain.User) {
	var body feedbackBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.ResumeContent == "" || body.JDContent == "" || body.Question == "" {
		writeErrorMessage(w, http.StatusBadRequest, "resumeContent, jdContent and question are required")
		return
	}
	raw, err := s.app.IdealAnswer(r.Context(), body.ResumeContent, body.JDContent, body.Question)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRawJSON(w, http.StatusOK, raw)
}

func (s *Server) handleInterviewHistory(w http.ResponseWriter, r *http.Request, user domain.User) {
	records, err := s.app.InterviewHistory(user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// withUser guards a handler behind session cookie verification.
func (s *Server) withUser(next func(http.ResponseWriter, *http.Request, domain.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			writeErrorMessage(w, http.StatusUnauthorized, "authentication required")
			return
		}
		user, err := s.app.UserFromToken(cookie.Value)
		if err != nil {
			if errors.Is(err, app.ErrInvalidSession) {
				auditLog(r, "invalid_session")
			}
			s.writeError(w, r, err)
			return
		}
		next(w, r, user)
	}
}

// limited applies a fixed-window limit keyed by client IP. A nil limiter
// disables limiting (local runs without Redis).
func (s *Server) limited(limiter *ratelimit.FixedWindowLimiter, next http.HandlerFunc) http.HandlerFunc {
	if limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ip := util.ClientIP(r)
		if !limiter.Allow(ip) {
			auditLog(r, "rate_limited", slog.String("ip", ip))
			writeErrorMessage(w, http.StatusTooManyRequests, "too many requests, try again later")
			return
		}
		next(w, r)
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.opts.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

type publicUserBody struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func publicUser(u domain.User) publicUserBody {
	return publicUserBody{ID: u.ID, Name: u.Name, Email: u.Email}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &badRequestError{msg: "invalid JSON body"}
	}
	return nil
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

// writeError maps application and intake errors to HTTP responses. Upstream
// AI service errors keep their original status; anything unclassified
// becomes an opaque 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *intake.MissingSlotError
	var upstream *aiclient.UpstreamError
	var badReq *badRequestError
	switch {
	case errors.As(err, &badReq),
		errors.As(err, &missing),
		errors.Is(err, app.ErrAllFieldsRequired),
		errors.Is(err, app.ErrEmailAlreadyExists),
		errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, intake.ErrUnsupportedMedia),
		errors.Is(err, intake.ErrMalformedBody):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, intake.ErrPayloadTooLarge):
		writeErrorMessage(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, app.ErrInvalidSession):
		writeErrorMessage(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, app.ErrUserNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, aiclient.ErrServiceUnavailable):
		writeErrorMessage(w, http.StatusServiceUnavailable, "AI service unavailable")
	case errors.As(err, &upstream):
		writeErrorMessage(w, upstream.Status, upstream.Message)
	case errors.Is(err, aiclient.ErrIncompleteResponse):
		writeErrorMessage(w, http.StatusInternalServerError, aiclient.ErrIncompleteResponse.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeRawJSON relays an upstream body byte-for-byte.
func writeRawJSON(w http.ResponseWriter, status int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func auditLog(r *http.Request, event string, attrs ...slog.Attr) {
	args := []any{
		slog.String("event", event),
		slog.String("path", r.URL.Path),
		slog.String("ip", util.ClientIP(r)),
		slog.String("request_id", util.RequestIDFromRequest(r)),
	}
	for _, attr := range attrs {
		args = append(args, attr)
	}
	slog.Warn("security_event", args...)
}
