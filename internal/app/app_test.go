package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"prepmate/internal/aiclient"
	"prepmate/internal/intake"
	"prepmate/internal/store"
	"prepmate/pkg/domain"
)

type fakeAI struct {
	analysis     *aiclient.AnalysisResult
	questions    []domain.Question
	feedback     json.RawMessage
	ideal        json.RawMessage
	err          error
	lastPayload  *intake.Payload
	feedbackArgs []string
}

func (f *fakeAI) AnalyzeResume(p *intake.Payload) (*aiclient.AnalysisResult, error) {
	f.lastPayload = p
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

func (f *fakeAI) GenerateQuestions(p *intake.Payload) ([]domain.Question, json.RawMessage, error) {
	f.lastPayload = p
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.questions, nil, nil
}

func (f *fakeAI) AnswerFeedback(resume, jd, question, answer string) (json.RawMessage, error) {
	f.feedbackArgs = []string{resume, jd, question, answer}
	if f.err != nil {
		return nil, f.err
	}
	return f.feedback, nil
}

func (f *fakeAI) IdealAnswer(resume, jd, question string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ideal, nil
}

func newTestApp(t *testing.T, ai AIClient) (*App, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	sessions := store.NewJWTSessionStore("0123456789abcdef0123456789abcdef", time.Hour)
	return New(Config{Store: st, Sessions: sessions, AI: ai}), st
}

func TestSignUpAndSessionRoundTrip(t *testing.T) {
	a, _ := newTestApp(t, &fakeAI{})
	user, token, err := a.SignUp("Ana", "ana@x.com", "secret1")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if user.PasswordHash == "secret1" || user.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}
	got, err := a.UserFromToken(token)
	if err != nil {
		t.Fatalf("UserFromToken: %v", err)
	}
	if got.ID != user.ID || got.Email != "ana@x.com" {
		t.Fatalf("resolved user = %+v", got)
	}
}

func TestSignUpValidation(t *testing.T) {
	a, _ := newTestApp(t, &fakeAI{})
	if _, _, err := a.SignUp("", "ana@x.com", "secret1"); !errors.Is(err, ErrAllFieldsRequired) {
		t.Fatalf("missing name: %v", err)
	}
	if _, _, err := a.SignUp("Ana", "ana@x.com", "123"); err == nil {
		t.Fatal("short password should be rejected")
	}

	if _, _, err := a.SignUp("Ana", "ana@x.com", "secret1"); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	if _, _, err := a.SignUp("Ana2", "ana@x.com", "secret2"); !errors.Is(err, ErrEmailAlreadyExists) {
		t.Fatalf("duplicate email: %v", err)
	}
	// Differently-cased email is a distinct account.
	if _, _, err := a.SignUp("Ana3", "Ana@x.com", "secret3"); err != nil {
		t.Fatalf("case-variant email: %v", err)
	}
}

func TestLoginEnumerationResistance(t *testing.T) {
	a, _ := newTestApp(t, &fakeAI{})
	if _, _, err := a.SignUp("Ana", "ana@x.com", "secret1"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	_, _, wrongPassword := a.Login("ana@x.com", "wrong")
	_, _, unknownEmail := a.Login("ghost@x.com", "whatever")
	if !errors.Is(wrongPassword, ErrInvalidCredentials) || !errors.Is(unknownEmail, ErrInvalidCredentials) {
		t.Fatalf("errors = %v, %v", wrongPassword, unknownEmail)
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatal("login failures must be indistinguishable")
	}

	if _, _, err := a.Login("ana@x.com", "secret1"); err != nil {
		t.Fatalf("valid login: %v", err)
	}
}

func TestAnalyzeRecordsHistory(t *testing.T) {
	raw := json.RawMessage(`{"ats_score":{"total_score":78,"final_assessment":"Good fit"}}`)
	ai := &fakeAI{analysis: &aiclient.AnalysisResult{
		Raw: raw, MatchScore: 78, Summary: "Good fit",
		Strengths: json.RawMessage(`["Go"]`),
	}}
	a, _ := newTestApp(t, ai)
	user, _, _ := a.SignUp("Ana", "ana@x.com", "secret1")

	p := &intake.Payload{ResumeText: "r", JobDescription: "the job"}
	got, err := a.AnalyzeResume(context.Background(), user, p)
	if err != nil {
		t.Fatalf("AnalyzeResume: %v", err)
	}
	if string(got) != string(raw) {
		t.Fatalf("response not verbatim: %s", got)
	}

	history, err := a.ResumeHistory(user)
	if err != nil || len(history) != 1 {
		t.Fatalf("history = %v, %v", history, err)
	}
	rec := history[0]
	if rec.MatchScore != 78 || rec.AnalysisSummary != "Good fit" || rec.JobDescription != "the job" {
		t.Fatalf("record = %+v", rec)
	}
	if string(rec.Strengths) != `["Go"]` {
		t.Fatalf("strengths = %s", rec.Strengths)
	}
	if string(rec.FullAnalysis) != string(raw) {
		t.Fatalf("full analysis not verbatim: %s", rec.FullAnalysis)
	}
}

func TestAnalyzeFailedGatewayWritesNothing(t *testing.T) {
	ai := &fakeAI{err: aiclient.ErrServiceUnavailable}
	a, st := newTestApp(t, ai)
	user, _, _ := a.SignUp("Ana", "ana@x.com", "secret1")

	before, _ := st.AnalysisCount()
	_, err := a.AnalyzeResume(context.Background(), user, &intake.Payload{ResumeText: "r", JobDescription: "j"})
	if !errors.Is(err, aiclient.ErrServiceUnavailable) {
		t.Fatalf("err = %v", err)
	}
	after, _ := st.AnalysisCount()
	if before != after {
		t.Fatal("failed gateway call must not write history")
	}
}

func TestGenerateInterviewDefaultsAndRecord(t *testing.T) {
	ai := &fakeAI{questions: []domain.Question{
		{Question: "q1", Type: "Technical", Difficulty: "Medium", Num: 1},
		{Question: "q2", Type: "Technical", Difficulty: "Medium", Num: 2},
	}}
	a, _ := newTestApp(t, ai)
	user, _, _ := a.SignUp("Ana", "ana@x.com", "secret1")

	p := &intake.Payload{
		ResumeText: "r", JobDescription: "j",
		Fields: map[string]string{"numQuestions": "2"},
	}
	questions, interviewID, err := a.GenerateInterview(context.Background(), user, p)
	if err != nil {
		t.Fatalf("GenerateInterview: %v", err)
	}
	if len(questions) != 2 || interviewID == "" {
		t.Fatalf("questions = %v, id = %q", questions, interviewID)
	}
	// Explicit fields survive; omitted ones take defaults.
	if ai.lastPayload.Fields["numQuestions"] != "2" {
		t.Fatalf("numQuestions = %q", ai.lastPayload.Fields["numQuestions"])
	}
	if ai.lastPayload.Fields["questionDifficulty"] != "Medium" ||
		ai.lastPayload.Fields["targetJobRole"] != "Software Engineer" {
		t.Fatalf("defaults not applied: %v", ai.lastPayload.Fields)
	}

	history, err := a.InterviewHistory(user)
	if err != nil || len(history) != 1 {
		t.Fatalf("history = %v, %v", history, err)
	}
	if history[0].ID != interviewID || history[0].AnswersSubmitted != 0 {
		t.Fatalf("record = %+v", history[0])
	}
}

func TestAnswerFeedbackIncrementsCounter(t *testing.T) {
	ai := &fakeAI{feedback: json.RawMessage(`{"score_out_of_10":7}`)}
	a, _ := newTestApp(t, ai)
	user, _, _ := a.SignUp("Ana", "ana@x.com", "secret1")
	ai.questions = []domain.Question{{Question: "q1"}}
	_, interviewID, err := a.GenerateInterview(context.Background(), user, &intake.Payload{ResumeText: "r", JobDescription: "j"})
	if err != nil {
		t.Fatalf("GenerateInterview: %v", err)
	}

	in := FeedbackInput{
		ResumeContent: "r", JDContent: "j",
		Question: "q1", Answer: "my answer",
		InterviewID: interviewID,
	}
	raw, err := a.AnswerFeedback(context.Background(), in)
	if err != nil {
		t.Fatalf("AnswerFeedback: %v", err)
	}
	if string(raw) != `{"score_out_of_10":7}` {
		t.Fatalf("feedback = %s", raw)
	}

	history, _ := a.InterviewHistory(user)
	if history[0].AnswersSubmitted != 1 {
		t.Fatalf("AnswersSubmitted = %d, want 1", history[0].AnswersSubmitted)
	}

	// An unknown interview ID must not fail the feedback itself.
	in.InterviewID = "missing"
	if _, err := a.AnswerFeedback(context.Background(), in); err != nil {
		t.Fatalf("feedback with bad interview id: %v", err)
	}
}

func TestPlatformMetrics(t *testing.T) {
	ai := &fakeAI{
		analysis: &aiclient.AnalysisResult{Raw: json.RawMessage(`{}`), MatchScore: 1, Summary: "s"},
		questions: []domain.Question{
			{Question: "q1"}, {Question: "q2"}, {Question: "q3"},
		},
	}
	a, _ := newTestApp(t, ai)
	u1, _, _ := a.SignUp("Ana", "ana@x.com", "secret1")
	u2, _, _ := a.SignUp("Bob", "bob@x.com", "secret1")
	_, _ = a.AnalyzeResume(context.Background(), u1, &intake.Payload{ResumeText: "r", JobDescription: "j"})
	_, _, _ = a.GenerateInterview(context.Background(), u2, &intake.Payload{ResumeText: "r", JobDescription: "j"})

	metrics, err := a.PlatformMetrics(context.Background())
	if err != nil {
		t.Fatalf("PlatformMetrics: %v", err)
	}
	if metrics.TotalUsers != 2 || metrics.ResumesAnalyzed != 1 || metrics.QuestionsGenerated != 3 {
		t.Fatalf("metrics = %+v", metrics)
	}
	if metrics.LastUpdated.IsZero() {
		t.Fatal("LastUpdated not set")
	}
}
