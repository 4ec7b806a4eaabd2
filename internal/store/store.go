package store

import (
	"errors"

	"prepmate/pkg/domain"
)

// ErrRecordNotFound is returned when a targeted record does not exist.
var ErrRecordNotFound = errors.New("record not found")

// Store defines persistence operations for users and history records.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	UserCount() (int64, error)

	// resume analyses
	RecordAnalysis(domain.AnalysisRecord) error
	ListAnalysesByUser(userID string) ([]domain.AnalysisRecord, error)
	AnalysisCount() (int64, error)

	// interviews
	RecordInterview(domain.InterviewRecord) error
	ListInterviewsByUser(userID string) ([]domain.InterviewRecord, error)
	// IncrementAnswerCount adds one to the record's answers-submitted counter.
	// The increment must be atomic: concurrent calls are additive.
	IncrementAnswerCount(recordID string) error
	QuestionTotal() (int64, error)
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
}
