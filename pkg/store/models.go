package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	Status       string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

type StudyNoteModel struct {
	ID                 string         `gorm:"primaryKey"`
	OwnerID            string         `gorm:"not null;index:idx_study_notes_owner_created,priority:1"`
	Title              string         `gorm:"not null"`
	SourceType         string         `gorm:"not null"`
	SourceReference    *string        `gorm:"type:text"`
	Transcript         string         `gorm:"type:text"`
	Summary            string         `gorm:"type:text;not null"`
	KeyConcepts        datatypes.JSON `gorm:"type:jsonb;not null"`
	StudyQuestions     datatypes.JSON `gorm:"type:jsonb;not null"`
	DifficultyLevel    string         `gorm:"not null"`
	EstimatedStudyTime int            `gorm:"not null"`
	Metadata           datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt          time.Time      `gorm:"not null;index:idx_study_notes_owner_created,priority:2"`
	UpdatedAt          time.Time      `gorm:"not null"`
}

func (StudyNoteModel) TableName() string { return "study_notes" }
