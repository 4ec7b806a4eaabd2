package store

import (
	"sync"

	"prepmate/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and local runs
// without Postgres.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]domain.User // key: user ID
	email      map[string]string      // email -> user ID
	analyses   []domain.AnalysisRecord
	interviews []domain.InterviewRecord
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		email: make(map[string]string),
	}
}

// SaveUser registers or replaces a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists (exact, case-sensitive match).
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// UserCount returns the number of users.
func (m *MemoryStore) UserCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}

// RecordAnalysis appends one analysis record.
func (m *MemoryStore) RecordAnalysis(rec domain.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses = append(m.analyses, rec)
	return nil
}

// ListAnalysesByUser returns the user's analyses, most recent first.
func (m *MemoryStore) ListAnalysesByUser(userID string) ([]domain.AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.AnalysisRecord, 0)
	for i := len(m.analyses) - 1; i >= 0; i-- {
		if m.analyses[i].UserID == userID {
			res = append(res, m.analyses[i])
		}
	}
	return res, nil
}

// AnalysisCount returns the number of analysis records.
func (m *MemoryStore) AnalysisCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.analyses)), nil
}

// RecordInterview appends one interview record.
func (m *MemoryStore) RecordInterview(rec domain.InterviewRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interviews = append(m.interviews, rec)
	return nil
}

// ListInterviewsByUser returns the user's interviews, most recent first.
func (m *MemoryStore) ListInterviewsByUser(userID string) ([]domain.InterviewRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.InterviewRecord, 0)
	for i := len(m.interviews) - 1; i >= 0; i-- {
		if m.interviews[i].UserID == userID {
			res = append(res, m.interviews[i])
		}
	}
	return res, nil
}

// IncrementAnswerCount adds one to the record's counter under the store lock.
func (m *MemoryStore) IncrementAnswerCount(recordID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.interviews {
		if m.interviews[i].ID == recordID {
			m.interviews[i].AnswersSubmitted++
			return nil
		}
	}
	return ErrRecordNotFound
}

// QuestionTotal sums question counts across all interview records.
func (m *MemoryStore) QuestionTotal() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, rec := range m.interviews {
		total += int64(len(rec.Questions))
	}
	return total, nil
}
