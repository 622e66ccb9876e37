package store

import "kensho/pkg/domain"

// Store defines persistence operations for users and study notes.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	// DeleteUser removes the user and all of their notes.
	DeleteUser(id string) error

	// notes
	CreateNote(domain.StudyNote) error
	GetNote(id string) (domain.StudyNote, bool, error)
	ListNotesByOwner(ownerID string) ([]domain.StudyNote, error)
	UpdateNote(id string, upd domain.NoteUpdate) error
	DeleteNote(id string) error
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
}
