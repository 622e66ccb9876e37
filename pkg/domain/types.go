package domain

import "time"

type SourceType string

const (
	SourceYouTube SourceType = "youtube"
	SourceAudio   SourceType = "audio"
	SourceText    SourceType = "text"
)

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// KeyConcept is one named concept with its explanation.
type KeyConcept struct {
	Concept     string `json:"concept"`
	Explanation string `json:"explanation"`
}

// StudyNote is the persisted artifact derived from one ingested source.
// KeyConcepts and StudyQuestions are never nil; empty slices are allowed.
type StudyNote struct {
	ID                 string         `json:"id"`
	OwnerID            string         `json:"ownerId"`
	Title              string         `json:"title"`
	SourceType         SourceType     `json:"sourceType"`
	SourceReference    *string        `json:"sourceReference"`
	Transcript         string         `json:"transcript,omitempty"`
	Summary            string         `json:"summary"`
	KeyConcepts        []KeyConcept   `json:"keyConcepts"`
	StudyQuestions     []string       `json:"studyQuestions"`
	DifficultyLevel    Difficulty     `json:"difficultyLevel"`
	EstimatedStudyTime int            `json:"estimatedStudyTime"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// NoteUpdate carries the user-editable fields of a note. Nil fields are left
// untouched. Transcript and source type are never updatable.
type NoteUpdate struct {
	Title          *string      `json:"title"`
	Summary        *string      `json:"summary"`
	KeyConcepts    []KeyConcept `json:"keyConcepts"`
	StudyQuestions []string     `json:"studyQuestions"`
}

// ValidSourceType reports whether s is one of the three known source types.
func ValidSourceType(s SourceType) bool {
	switch s {
	case SourceYouTube, SourceAudio, SourceText:
		return true
	}
	return false
}

// ValidDifficulty reports whether d is a known difficulty level.
func ValidDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}
