// Package app holds the gateway's use cases: account lifecycle, the four
// AI-backed operations, history reads and platform metrics. HTTP concerns
// stay in internal/server; app methods speak domain types and sentinel
// errors.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"prepmate/internal/aiclient"
	"prepmate/internal/intake"
	"prepmate/internal/store"
	"prepmate/internal/util"
	"prepmate/pkg/auth"
	"prepmate/pkg/domain"
)

// DefaultSessionTTL applies when no session lifetime is configured.
const DefaultSessionTTL = 7 * 24 * time.Hour

// InterviewConfigFields are the scalar configuration fields accepted by
// question generation, with defaults applied when a submission omits them.
var InterviewConfigFields = []string{
	"targetJobRole", "questionDifficulty", "questionType",
	"experienceLevel", "roundType", "skillFocus", "numQuestions",
}

var interviewDefaults = map[string]string{
	"targetJobRole":      "Software Engineer",
	"questionDifficulty": "Medium",
	"questionType":       "Technical",
	"experienceLevel":    "1-2 years",
	"roundType":          "Technical",
	"skillFocus":         "Python, SQL",
	"numQuestions":       "5",
}

// AIClient is the subset of the AI service client the app depends on.
type AIClient interface {
	AnalyzeResume(p *intake.Payload) (*aiclient.AnalysisResult, error)
	GenerateQuestions(p *intake.Payload) ([]domain.Question, json.RawMessage, error)
	AnswerFeedback(resume, jd, question, answer string) (json.RawMessage, error)
	IdealAnswer(resume, jd, question string) (json.RawMessage, error)
}

// Config wires an App.
type Config struct {
	Store    store.Store
	Sessions store.SessionStore
	AI       AIClient
}

// App implements the gateway use cases over a store, a session issuer and
// the AI service client.
type App struct {
	store    store.Store
	sessions store.SessionStore
	ai       AIClient
}

// New builds an App from its dependencies.
func New(cfg Config) *App {
	return &App{
		store:    cfg.Store,
		sessions: cfg.Sessions,
		ai:       cfg.AI,
	}
}

// SignUp registers a new account and opens a session for it.
func (a *App) SignUp(name, email, password string) (domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return domain.User{}, "", ErrAllFieldsRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	taken, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if taken {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("open session: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials and opens a session. Unknown email and wrong
// password return the same error so account existence cannot be probed.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.User{}, "", ErrAllFieldsRequired
	}
	user, found, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !found || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("open session: %w", err)
	}
	return user, token, nil
}

// UserFromToken resolves a session token to its user.
func (a *App) UserFromToken(token string) (domain.User, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, ErrInvalidSession
	}
	user, found, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !found {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// AnalyzeResume delegates an analysis to the AI service and, on success,
// records it in the user's history. The raw upstream body is returned
// verbatim. A failed AI call writes nothing.
func (a *App) AnalyzeResume(ctx context.Context, user domain.User, p *intake.Payload) (json.RawMessage, error) {
	result, err := a.ai.AnalyzeResume(p)
	if err != nil {
		return nil, err
	}
	// Strengths/suggestions arrive either as flat lists or grouped by
	// category; history stores the flattened display form and keeps the
	// original shape inside FullAnalysis.
	rec := domain.AnalysisRecord{
		ID:              util.NewID(),
		UserID:          user.ID,
		JobDescription:  p.JobDescriptionSnapshot(),
		MatchScore:      result.MatchScore,
		AnalysisSummary: result.Summary,
		Strengths:       flattenJSON(result.Strengths),
		Suggestions:     flattenJSON(result.Suggestions),
		FullAnalysis:    result.Raw,
		CreatedAt:       time.Now().UTC(),
	}
	if err := a.store.RecordAnalysis(rec); err != nil {
		return nil, fmt.Errorf("record analysis: %w", err)
	}
	return result.Raw, nil
}

// GenerateInterview delegates question generation to the AI service and, on
// success, records an interview with an answer counter at zero. Missing
// configuration fields take the platform defaults.
func (a *App) GenerateInterview(ctx context.Context, user domain.User, p *intake.Payload) ([]domain.Question, string, error) {
	applyInterviewDefaults(p)
	questions, _, err := a.ai.GenerateQuestions(p)
	if err != nil {
		return nil, "", err
	}
	rec := domain.InterviewRecord{
		ID:               util.NewID(),
		UserID:           user.ID,
		JobDescription:   p.JobDescriptionSnapshot(),
		Questions:        questions,
		AnswersSubmitted: 0,
		CreatedAt:        time.Now().UTC(),
	}
	if err := a.store.RecordInterview(rec); err != nil {
		return nil, "", fmt.Errorf("record interview: %w", err)
	}
	return questions, rec.ID, nil
}

// FeedbackInput is one graded-answer request.
type FeedbackInput struct {
	ResumeContent string
	JDContent     string
	Question      string
	Answer        string
	InterviewID   string
}

// AnswerFeedback grades one answer via the AI service. When the request
// names an interview, its answer counter is bumped best-effort: a failed
// increment is logged and never fails the feedback itself.
func (a *App) AnswerFeedback(ctx context.Context, in FeedbackInput) (json.RawMessage, error) {
	raw, err := a.ai.AnswerFeedback(in.ResumeContent, in.JDContent, in.Question, in.Answer)
	if err != nil {
		return nil, err
	}
	if in.InterviewID != "" {
		if err := a.store.IncrementAnswerCount(in.InterviewID); err != nil {
			util.LoggerFromContext(ctx).Warn("answer count increment failed",
				slog.String("interview_id", in.InterviewID),
				slog.String("error", err.Error()))
		}
	}
	return raw, nil
}

// IdealAnswer fetches a model answer for one question via the AI service.
func (a *App) IdealAnswer(ctx context.Context, resume, jd, question string) (json.RawMessage, error) {
	return a.ai.IdealAnswer(resume, jd, question)
}

// ResumeHistory lists the user's analyses, most recent first.
func (a *App) ResumeHistory(user domain.User) ([]domain.AnalysisRecord, error) {
	return a.store.ListAnalysesByUser(user.ID)
}

// InterviewHistory lists the user's interviews, most recent first.
func (a *App) InterviewHistory(user domain.User) ([]domain.InterviewRecord, error) {
	return a.store.ListInterviewsByUser(user.ID)
}

// PlatformMetrics computes platform-wide totals. The three counts run
// concurrently; any failure fails the whole read.
func (a *App) PlatformMetrics(ctx context.Context) (domain.PlatformMetrics, error) {
	var metrics domain.PlatformMetrics
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.store.UserCount()
		metrics.TotalUsers = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.AnalysisCount()
		metrics.ResumesAnalyzed = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.QuestionTotal()
		metrics.QuestionsGenerated = n
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.PlatformMetrics{}, fmt.Errorf("compute metrics: %w", err)
	}
	metrics.LastUpdated = time.Now().UTC()
	return metrics, nil
}

func flattenJSON(raw json.RawMessage) json.RawMessage {
	flat := aiclient.FlattenStrings(raw)
	if len(flat) == 0 {
		return nil
	}
	encoded, err := json.Marshal(flat)
	if err != nil {
		return nil
	}
	return encoded
}

func applyInterviewDefaults(p *intake.Payload) {
	if p.Fields == nil {
		p.Fields = map[string]string{}
	}
	for _, name := range InterviewConfigFields {
		if p.Fields[name] == "" {
			p.Fields[name] = interviewDefaults[name]
		}
	}
}
