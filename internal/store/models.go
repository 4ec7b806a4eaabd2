package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type AnalysisModel struct {
	ID              string         `gorm:"primaryKey"`
	UserID          string         `gorm:"not null;index"`
	JobDescription  string         `gorm:"type:text;not null"`
	MatchScore      int            `gorm:"not null"`
	AnalysisSummary string         `gorm:"type:text;not null"`
	Strengths       datatypes.JSON `gorm:"type:jsonb"`
	Suggestions     datatypes.JSON `gorm:"type:jsonb"`
	FullAnalysis    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time      `gorm:"not null;index"`
}

type InterviewModel struct {
	ID             string         `gorm:"primaryKey"`
	UserID         string         `gorm:"not null;index"`
	JobDescription string         `gorm:"type:text;not null"`
	Questions      datatypes.JSON `gorm:"type:jsonb;not null"`
	// QuestionCount mirrors len(Questions) so platform totals are a single
	// SUM; questions are immutable after creation so it cannot drift.
	QuestionCount    int       `gorm:"not null"`
	AnswersSubmitted int       `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"not null;index"`
}
