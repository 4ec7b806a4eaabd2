package domain

import (
	"encoding/json"
	"time"
)

// User is an account identity. The password hash never leaves the process.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Question is one generated mock-interview question. Field names follow the
// wire shape the AI service emits, so question lists round-trip unchanged.
type Question struct {
	Question   string `json:"question"`
	Type       string `json:"question_type"`
	Difficulty string `json:"question_difficulty"`
	Num        int    `json:"question_num"`
}

// AnalysisRecord is the persisted outcome of one resume analysis.
//
// Strengths and Suggestions are kept verbatim as received from the AI
// service: the shape varies between a flat string list and a nested grouping
// by category, and detailed views render whichever came back.
type AnalysisRecord struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user"`
	JobDescription  string          `json:"jobDescription"`
	MatchScore      int             `json:"matchScore"`
	AnalysisSummary string          `json:"analysisSummary"`
	Strengths       json.RawMessage `json:"strengths,omitempty"`
	Suggestions     json.RawMessage `json:"suggestions,omitempty"`
	FullAnalysis    json.RawMessage `json:"fullAnalysis,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// InterviewRecord is the persisted outcome of one question-generation event.
// AnswersSubmitted counts how many of its questions have since received
// feedback; it is the only field that ever changes after creation.
type InterviewRecord struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user"`
	JobDescription   string     `json:"jobDescription"`
	Questions        []Question `json:"questions"`
	AnswersSubmitted int        `json:"answersSubmitted"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// PlatformMetrics is a read-time aggregate across all users.
type PlatformMetrics struct {
	TotalUsers         int64     `json:"totalUsers"`
	ResumesAnalyzed    int64     `json:"resumesAnalyzed"`
	QuestionsGenerated int64     `json:"questionsGenerated"`
	LastUpdated        time.Time `json:"lastUpdated"`
}
