package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kensho/internal/util"
	"kensho/pkg/domain"
)

const minTextChars = 50

// ingestState tracks where a single ingestion cycle is. Transitions are
// strictly forward; Failed absorbs from any active state.
type ingestState int

const (
	stateIdle ingestState = iota
	stateValidating
	stateExtractingSource
	stateGeneratingNotes
	statePersisting
	stateDone
	stateFailed
)

func (s ingestState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateValidating:
		return "validating"
	case stateExtractingSource:
		return "extracting_source"
	case stateGeneratingNotes:
		return "generating_notes"
	case statePersisting:
		return "persisting"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

var ingestTransitions = map[ingestState][]ingestState{
	stateIdle:             {stateValidating},
	stateValidating:       {stateExtractingSource, stateFailed},
	stateExtractingSource: {stateGeneratingNotes, stateFailed},
	stateGeneratingNotes:  {statePersisting, stateFailed},
	statePersisting:       {stateDone, stateFailed},
	stateDone:             {},
	stateFailed:           {},
}

type ingestRun struct {
	state ingestState
}

// transition moves the run forward. An illegal transition is a
// programming error and panics.
func (r *ingestRun) transition(to ingestState) {
	for _, allowed := range ingestTransitions[r.state] {
		if allowed == to {
			r.state = to
			return
		}
	}
	panic(fmt.Sprintf("illegal ingest transition %s -> %s", r.state, to))
}

func (r *ingestRun) fail(err error) error {
	r.transition(stateFailed)
	return err
}

// AudioInput references an uploaded audio blob.
type AudioInput struct {
	// Key locates the temporary blob in the blob store.
	Key string
	// Filename is the original upload name, kept as sourceReference.
	Filename string
	// Size is the upload size in bytes, -1 when unknown.
	Size int64
	// Language optionally overrides the default recognition language.
	Language string
}

// IngestRequest is one ingestion cycle's input.
type IngestRequest struct {
	OwnerID    string
	Title      string
	SourceType domain.SourceType
	YouTubeURL string
	Text       string
	Audio      *AudioInput
}

// Ingest runs one synchronous ingestion cycle: validate, extract the
// transcript, generate notes, persist. The uploaded audio blob is
// removed exactly once on every exit path.
func (a *App) Ingest(ctx context.Context, req IngestRequest) (domain.StudyNote, error) {
	run := &ingestRun{state: stateIdle}
	run.transition(stateValidating)

	cleaned := false
	cleanup := func() {
		if cleaned || req.Audio == nil {
			return
		}
		cleaned = true
		if err := a.blobs.Delete(ctx, req.Audio.Key); err != nil {
			slog.Warn("failed to remove temporary audio blob", "key", req.Audio.Key, "error", err)
		}
	}
	defer cleanup()

	if err := a.validateIngest(req); err != nil {
		return domain.StudyNote{}, run.fail(err)
	}

	run.transition(stateExtractingSource)
	text, sourceRef, meta, err := a.extractSource(ctx, req)
	if err != nil {
		return domain.StudyNote{}, run.fail(err)
	}
	if strings.TrimSpace(text) == "" {
		return domain.StudyNote{}, run.fail(emptyTranscriptErr(req.SourceType))
	}

	run.transition(stateGeneratingNotes)
	generated, err := a.generator.Generate(ctx, req.SourceType, text)
	if err != nil {
		// Generator failures are not attributable to a single field.
		return domain.StudyNote{}, run.fail(&FieldError{Message: "failed to generate study notes: " + err.Error(), Err: err})
	}

	run.transition(statePersisting)
	now := time.Now().UTC()
	note := domain.StudyNote{
		ID:                 util.NewID(),
		OwnerID:            req.OwnerID,
		Title:              strings.TrimSpace(req.Title),
		SourceType:         req.SourceType,
		SourceReference:    sourceRef,
		Transcript:         text,
		Summary:            generated.Summary,
		KeyConcepts:        generated.KeyConcepts,
		StudyQuestions:     generated.StudyQuestions,
		DifficultyLevel:    domain.Difficulty(generated.DifficultyLevel),
		EstimatedStudyTime: generated.EstimatedStudyTime,
		Metadata:           meta,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := a.store.CreateNote(note); err != nil {
		return domain.StudyNote{}, run.fail(fmt.Errorf("persist note: %w", err))
	}
	run.transition(stateDone)
	return note, nil
}

func (a *App) validateIngest(req IngestRequest) error {
	if strings.TrimSpace(req.OwnerID) == "" {
		return fmt.Errorf("owner id required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return fieldErr("title", "title is required")
	}
	switch req.SourceType {
	case domain.SourceYouTube:
		if strings.TrimSpace(req.YouTubeURL) == "" {
			return fieldErr("youtubeUrl", "a YouTube URL is required")
		}
	case domain.SourceAudio:
		if req.Audio == nil || req.Audio.Key == "" {
			return fieldErr("audio", "an audio file is required")
		}
		if err := a.transcriber.ValidateFormat(req.Audio.Filename); err != nil {
			return fieldWrap("audio", err)
		}
		if max := a.transcriber.MaxBytes(); req.Audio.Size > max {
			return fieldErr("audio", fmt.Sprintf("audio file exceeds the %d byte limit", max))
		}
	case domain.SourceText:
		if len(strings.TrimSpace(req.Text)) < minTextChars {
			return fieldErr("text", fmt.Sprintf("text must be at least %d characters", minTextChars))
		}
	default:
		return fieldErr("sourceType", "source type must be youtube, audio or text")
	}
	return nil
}

func (a *App) extractSource(ctx context.Context, req IngestRequest) (string, *string, map[string]any, error) {
	switch req.SourceType {
	case domain.SourceYouTube:
		tr, err := a.fetcher.Fetch(ctx, req.YouTubeURL, a.languages)
		if err != nil {
			return "", nil, nil, fieldWrap("youtubeUrl", err)
		}
		ref := req.YouTubeURL
		meta := map[string]any{
			"videoId":         tr.VideoID,
			"language":        tr.Language,
			"autoGenerated":   tr.Generated,
			"durationSeconds": tr.Duration,
		}
		return tr.Text, &ref, meta, nil

	case domain.SourceAudio:
		blob, err := a.blobs.Read(ctx, req.Audio.Key)
		if err != nil {
			return "", nil, nil, fieldWrap("audio", err)
		}
		size := req.Audio.Size
		if size < 0 {
			// Upload size unknown; ask the blob store. A failure here keeps
			// the size unknown, which the transcriber logs and tolerates.
			if n, sizeErr := a.blobs.Size(ctx, req.Audio.Key); sizeErr == nil {
				size = n
			}
		}
		res, err := a.transcriber.Transcribe(ctx, bytes.NewReader(blob), req.Audio.Filename, req.Audio.Language, size)
		if err != nil {
			return "", nil, nil, fieldWrap("audio", err)
		}
		ref := req.Audio.Filename
		meta := map[string]any{
			"language":         res.Language,
			"confidence":       res.Confidence,
			"durationSeconds":  res.Duration,
			"originalFilename": req.Audio.Filename,
		}
		return res.Text, &ref, meta, nil

	default:
		meta := map[string]any{
			"characters": len(strings.TrimSpace(req.Text)),
		}
		return strings.TrimSpace(req.Text), nil, meta, nil
	}
}

func emptyTranscriptErr(sourceType domain.SourceType) *FieldError {
	switch sourceType {
	case domain.SourceYouTube:
		return fieldErr("youtubeUrl", "the video has no usable captions")
	case domain.SourceAudio:
		return fieldErr("audio", "no speech could be recognized in the audio")
	default:
		return fieldErr("text", "the text is empty")
	}
}
