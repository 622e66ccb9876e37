package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"kensho/pkg/domain"
)

const migrateLockID int64 = 48152623

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
		if err := tx.AutoMigrate(&UserModel{}, &StudyNoteModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM study_notes n
				WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = n.owner_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'study_notes'
					AND constraint_name = 'study_notes_owner_id_fkey'
				) THEN
					ALTER TABLE study_notes
					ADD CONSTRAINT study_notes_owner_id_fkey
					FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure owner foreign key: %w", err)
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
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "role", "status", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
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

// DeleteUser removes the user and their notes in one transaction.
func (s *GormStore) DeleteUser(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&StudyNoteModel{}, "owner_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&UserModel{}, "id = ?", id).Error
	})
}

// CreateNote stores a new study note.
func (s *GormStore) CreateNote(n domain.StudyNote) error {
	model, err := noteToModel(n)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

// GetNote retrieves one note by ID.
func (s *GormStore) GetNote(id string) (domain.StudyNote, bool, error) {
	var model StudyNoteModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.StudyNote{}, false, nil
		}
		return domain.StudyNote{}, false, err
	}
	return noteFromModel(model), true, nil
}

// ListNotesByOwner returns the owner's notes, newest first.
func (s *GormStore) ListNotesByOwner(ownerID string) ([]domain.StudyNote, error) {
	var models []StudyNoteModel
	if err := s.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	notes := make([]domain.StudyNote, 0, len(models))
	for _, m := range models {
		notes = append(notes, noteFromModel(m))
	}
	return notes, nil
}

// UpdateNote applies the user-editable fields only. Transcript and source
// type are never written here.
func (s *GormStore) UpdateNote(id string, upd domain.NoteUpdate) error {
	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) != "" {
		updates["title"] = strings.TrimSpace(*upd.Title)
	}
	if upd.Summary != nil {
		updates["summary"] = *upd.Summary
	}
	if upd.KeyConcepts != nil {
		raw, err := json.Marshal(upd.KeyConcepts)
		if err != nil {
			return fmt.Errorf("marshal key concepts: %w", err)
		}
		updates["key_concepts"] = raw
	}
	if upd.StudyQuestions != nil {
		raw, err := json.Marshal(upd.StudyQuestions)
		if err != nil {
			return fmt.Errorf("marshal study questions: %w", err)
		}
		updates["study_questions"] = raw
	}
	return s.db.Model(&StudyNoteModel{}).Where("id = ?", id).Updates(updates).Error
}

// DeleteNote removes one note.
func (s *GormStore) DeleteNote(id string) error {
	return s.db.Delete(&StudyNoteModel{}, "id = ?", id).Error
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	status := domain.UserStatus(m.Status)
	if status == "" {
		status = domain.StatusActive
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		Status:       status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func noteToModel(n domain.StudyNote) (StudyNoteModel, error) {
	concepts := n.KeyConcepts
	if concepts == nil {
		concepts = []domain.KeyConcept{}
	}
	questions := n.StudyQuestions
	if questions == nil {
		questions = []string{}
	}
	rawConcepts, err := json.Marshal(concepts)
	if err != nil {
		return StudyNoteModel{}, fmt.Errorf("marshal key concepts: %w", err)
	}
	rawQuestions, err := json.Marshal(questions)
	if err != nil {
		return StudyNoteModel{}, fmt.Errorf("marshal study questions: %w", err)
	}
	var rawMeta []byte
	if len(n.Metadata) > 0 {
		rawMeta, err = json.Marshal(n.Metadata)
		if err != nil {
			return StudyNoteModel{}, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	return StudyNoteModel{
		ID:                 n.ID,
		OwnerID:            n.OwnerID,
		Title:              n.Title,
		SourceType:         string(n.SourceType),
		SourceReference:    n.SourceReference,
		Transcript:         n.Transcript,
		Summary:            n.Summary,
		KeyConcepts:        rawConcepts,
		StudyQuestions:     rawQuestions,
		DifficultyLevel:    string(n.DifficultyLevel),
		EstimatedStudyTime: n.EstimatedStudyTime,
		Metadata:           rawMeta,
		CreatedAt:          n.CreatedAt,
		UpdatedAt:          n.UpdatedAt,
	}, nil
}

// noteFromModel parses the JSON-valued columns back into typed fields.
// KeyConcepts and StudyQuestions are never nil on the way out.
func noteFromModel(m StudyNoteModel) domain.StudyNote {
	concepts := []domain.KeyConcept{}
	if len(m.KeyConcepts) > 0 {
		_ = json.Unmarshal(m.KeyConcepts, &concepts)
	}
	if concepts == nil {
		concepts = []domain.KeyConcept{}
	}
	questions := []string{}
	if len(m.StudyQuestions) > 0 {
		_ = json.Unmarshal(m.StudyQuestions, &questions)
	}
	if questions == nil {
		questions = []string{}
	}
	var meta map[string]any
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return domain.StudyNote{
		ID:                 m.ID,
		OwnerID:            m.OwnerID,
		Title:              m.Title,
		SourceType:         domain.SourceType(m.SourceType),
		SourceReference:    m.SourceReference,
		Transcript:         m.Transcript,
		Summary:            m.Summary,
		KeyConcepts:        concepts,
		StudyQuestions:     questions,
		DifficultyLevel:    domain.Difficulty(m.DifficultyLevel),
		EstimatedStudyTime: m.EstimatedStudyTime,
		Metadata:           meta,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}
