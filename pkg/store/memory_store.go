package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"kensho/pkg/domain"
)

// MemoryStore is an in-memory Store used in tests and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
	notes map[string]domain.StudyNote
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		notes: make(map[string]domain.StudyNote),
	}
}

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	for noteID, n := range s.notes {
		if n.OwnerID == id {
			delete(s.notes, noteID)
		}
	}
	return nil
}

func (s *MemoryStore) CreateNote(n domain.StudyNote) error {
	if n.KeyConcepts == nil {
		n.KeyConcepts = []domain.KeyConcept{}
	}
	if n.StudyQuestions == nil {
		n.StudyQuestions = []string{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[n.ID] = n
	return nil
}

func (s *MemoryStore) GetNote(id string) (domain.StudyNote, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	return n, ok, nil
}

func (s *MemoryStore) ListNotesByOwner(ownerID string) ([]domain.StudyNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	notes := make([]domain.StudyNote, 0)
	for _, n := range s.notes {
		if n.OwnerID == ownerID {
			notes = append(notes, n)
		}
	}
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
	return notes, nil
}

func (s *MemoryStore) UpdateNote(id string, upd domain.NoteUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return nil
	}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) != "" {
		n.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Summary != nil {
		n.Summary = *upd.Summary
	}
	if upd.KeyConcepts != nil {
		n.KeyConcepts = upd.KeyConcepts
	}
	if upd.StudyQuestions != nil {
		n.StudyQuestions = upd.StudyQuestions
	}
	n.UpdatedAt = time.Now().UTC()
	s.notes[id] = n
	return nil
}

func (s *MemoryStore) DeleteNote(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes, id)
	return nil
}
