package app

import (
	"fmt"
	"strings"

	"kensho/pkg/domain"
)

// ListNotes returns the owner's notes, newest first.
func (a *App) ListNotes(ownerID string) ([]domain.StudyNote, error) {
	notes, err := a.store.ListNotesByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

// GetNote loads one note, enforcing ownership. A note owned by someone
// else is forbidden, never "not found".
func (a *App) GetNote(ownerID, id string) (domain.StudyNote, error) {
	note, ok, err := a.store.GetNote(id)
	if err != nil {
		return domain.StudyNote{}, fmt.Errorf("load note: %w", err)
	}
	if !ok {
		return domain.StudyNote{}, ErrNoteNotFound
	}
	if note.OwnerID != ownerID {
		return domain.StudyNote{}, ErrNoteForbidden
	}
	return note, nil
}

// UpdateNote applies the user-editable fields and returns the updated
// note. Transcript and source type are never updatable.
func (a *App) UpdateNote(ownerID, id string, upd domain.NoteUpdate) (domain.StudyNote, error) {
	if _, err := a.GetNote(ownerID, id); err != nil {
		return domain.StudyNote{}, err
	}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return domain.StudyNote{}, fieldErr("title", "title cannot be empty")
	}
	if err := a.store.UpdateNote(id, upd); err != nil {
		return domain.StudyNote{}, fmt.Errorf("update note: %w", err)
	}
	return a.GetNote(ownerID, id)
}

// DeleteNote removes one note after the ownership check.
func (a *App) DeleteNote(ownerID, id string) error {
	if _, err := a.GetNote(ownerID, id); err != nil {
		return err
	}
	if err := a.store.DeleteNote(id); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}
