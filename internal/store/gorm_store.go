package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"gorm.io/datatypes"

	"prepmate/pkg/domain"
)

const migrateLockID int64 = 48151623

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &AnalysisModel{}, &InterviewModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "password_hash", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists (exact, case-sensitive match).
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UserCount returns the number of users.
func (s *GormStore) UserCount() (int64, error) {
	var count int64
	err := s.db.Model(&UserModel{}).Count(&count).Error
	return count, err
}

// RecordAnalysis persists one resume analysis outcome.
func (s *GormStore) RecordAnalysis(rec domain.AnalysisRecord) error {
	model := analysisToModel(rec)
	return s.db.Create(&model).Error
}

// ListAnalysesByUser returns the user's analyses, most recent first.
func (s *GormStore) ListAnalysesByUser(userID string) ([]domain.AnalysisRecord, error) {
	var models []AnalysisModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AnalysisRecord, 0, len(models))
	for _, m := range models {
		res = append(res, analysisFromModel(m))
	}
	return res, nil
}

// AnalysisCount returns the number of analysis records across all users.
func (s *GormStore) AnalysisCount() (int64, error) {
	var count int64
	err := s.db.Model(&AnalysisModel{}).Count(&count).Error
	return count, err
}

// RecordInterview persists one question-generation outcome.
func (s *GormStore) RecordInterview(rec domain.InterviewRecord) error {
	model, err := interviewToModel(rec)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

// ListInterviewsByUser returns the user's interviews, most recent first.
func (s *GormStore) ListInterviewsByUser(userID string) ([]domain.InterviewRecord, error) {
	var models []InterviewModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.InterviewRecord, 0, len(models))
	for _, m := range models {
		res = append(res, interviewFromModel(m))
	}
	return res, nil
}

// IncrementAnswerCount adds one to answers_submitted in a single SQL update,
// so concurrent increments against the same record never lose updates.
func (s *GormStore) IncrementAnswerCount(recordID string) error {
	tx := s.db.Model(&InterviewModel{}).
		Where("id = ?", recordID).
		UpdateColumn("answers_submitted", gorm.Expr("answers_submitted + 1"))
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// QuestionTotal sums question counts across all interview records.
func (s *GormStore) QuestionTotal() (int64, error) {
	var total sql.NullInt64
	if err := s.db.Model(&InterviewModel{}).
		Select("SUM(question_count)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total.Int64, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func analysisToModel(rec domain.AnalysisRecord) AnalysisModel {
	return AnalysisModel{
		ID:              rec.ID,
		UserID:          rec.UserID,
		JobDescription:  rec.JobDescription,
		MatchScore:      rec.MatchScore,
		AnalysisSummary: rec.AnalysisSummary,
		Strengths:       datatypesJSON(rec.Strengths),
		Suggestions:     datatypesJSON(rec.Suggestions),
		FullAnalysis:    datatypesJSON(rec.FullAnalysis),
		CreatedAt:       rec.CreatedAt,
	}
}

func analysisFromModel(m AnalysisModel) domain.AnalysisRecord {
	return domain.AnalysisRecord{
		ID:              m.ID,
		UserID:          m.UserID,
		JobDescription:  m.JobDescription,
		MatchScore:      m.MatchScore,
		AnalysisSummary: m.AnalysisSummary,
		Strengths:       json.RawMessage(m.Strengths),
		Suggestions:     json.RawMessage(m.Suggestions),
		FullAnalysis:    json.RawMessage(m.FullAnalysis),
		CreatedAt:       m.CreatedAt,
	}
}

func interviewToModel(rec domain.InterviewRecord) (InterviewModel, error) {
	questions, err := json.Marshal(rec.Questions)
	if err != nil {
		return InterviewModel{}, fmt.Errorf("marshal questions: %w", err)
	}
	return InterviewModel{
		ID:               rec.ID,
		UserID:           rec.UserID,
		JobDescription:   rec.JobDescription,
		Questions:        datatypes.JSON(questions),
		QuestionCount:    len(rec.Questions),
		AnswersSubmitted: rec.AnswersSubmitted,
		CreatedAt:        rec.CreatedAt,
	}, nil
}

func interviewFromModel(m InterviewModel) domain.InterviewRecord {
	var questions []domain.Question
	if len(m.Questions) > 0 {
		_ = json.Unmarshal([]byte(m.Questions), &questions)
	}
	return domain.InterviewRecord{
		ID:               m.ID,
		UserID:           m.UserID,
		JobDescription:   m.JobDescription,
		Questions:        questions,
		AnswersSubmitted: m.AnswersSubmitted,
		CreatedAt:        m.CreatedAt,
	}
}

func datatypesJSON(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	return datatypes.JSON(raw)
}
