package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kensho/internal/app"
	"kensho/pkg/ai"
	"kensho/pkg/domain"
	"kensho/pkg/speech"
	"kensho/pkg/storage"
	"kensho/pkg/store"
	"kensho/pkg/transcript"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, sourceType domain.SourceType, text string) (ai.GeneratedNotes, error) {
	return ai.GeneratedNotes{
		Summary:            "summary",
		KeyConcepts:        []domain.KeyConcept{{Concept: "C", Explanation: "E"}},
		StudyQuestions:     []string{"Q1?", "Q2?", "Q3?", "Q4?", "Q5?"},
		DifficultyLevel:    "beginner",
		EstimatedStudyTime: 20,
	}, nil
}

type stubFetcher struct {
	err error
}

func (s stubFetcher) Fetch(ctx context.Context, url string, languages []string) (transcript.Transcript, error) {
	if s.err != nil {
		return transcript.Transcript{}, s.err
	}
	return transcript.Transcript{VideoID: "dQw4w9WgXcQ", Language: "en", Text: "caption text"}, nil
}

type stubTranscriber struct{}

func (stubTranscriber) ValidateFormat(filename string) error {
	if strings.HasSuffix(filename, ".mp3") {
		return nil
	}
	return &speech.UnsupportedFormatError{Format: "aac", Supported: []string{"mp3"}}
}

func (stubTranscriber) MaxBytes() int64 { return 1 << 20 }


func (stubTranscriber) Transcribe(ctx context.Context, r io.Reader, filename, language string, size int64) (speech.Result, error) {
	return speech.Result{Text: "spoken words", Language: "en-US", Confidence: 0.9}, nil
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(string) bool { return false }

func newTestServer(t *testing.T, mutate func(*app.Config)) *httptest.Server {
	t.Helper()
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	sessions, err := store.NewJWTSessionStore("test-secret", 0, store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	cfg := app.Config{
		Store:       store.NewMemoryStore(),
		Sessions:    sessions,
		Blobs:       blobs,
		Generator:   stubGenerator{},
		Fetcher:     stubFetcher{},
		Transcriber: stubTranscriber{},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: a})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func signup(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/signup", "", map[string]string{
		"email":    "ada@example.com",
		"password": "supersecret",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &body)
	if body.Token == "" {
		t.Fatalf("signup returned no token")
	}
	return body.Token
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	token := signup(t, ts)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/users/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200", resp.StatusCode)
	}
	var me domain.User
	decodeBody(t, resp, &me)
	if me.Email != "ada@example.com" {
		t.Fatalf("Email = %q", me.Email)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/users/me", "bogus", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateNoteFromYouTube(t *testing.T) {
	ts := newTestServer(t, nil)
	token := signup(t, ts)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/notes", token, map[string]string{
		"title":      "Video Notes",
		"sourceType": "youtube",
		"youtubeUrl": "https://youtu.be/dQw4w9WgXcQ",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var note domain.StudyNote
	decodeBody(t, resp, &note)
	if note.Title != "Video Notes" || note.SourceType != domain.SourceYouTube {
		t.Fatalf("note = %+v", note)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/notes", token, nil)
	var list struct {
		Notes []domain.StudyNote `json:"notes"`
	}
	decodeBody(t, resp, &list)
	if len(list.Notes) != 1 || list.Notes[0].ID != note.ID {
		t.Fatalf("list = %+v", list.Notes)
	}
}

func TestCreateNoteFieldErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	token := signup(t, ts)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/notes", token, map[string]string{
		"title":      "Notes",
		"sourceType": "text",
		"text":       "too short",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	var body struct {
		Errors map[string]string `json:"errors"`
	}
	decodeBody(t, resp, &body)
	if body.Errors["text"] == "" {
		t.Fatalf("expected a text field error, got %+v", body.Errors)
	}
}

func TestCreateNoteNoCaptions(t *testing.T) {
	ts := newTestServer(t, func(cfg *app.Config) {
		cfg.Fetcher = stubFetcher{err: &transcript.NotFoundError{VideoID: "dQw4w9WgXcQ"}}
	})
	token := signup(t, ts)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/notes", token, map[string]string{
		"title":      "Notes",
		"sourceType": "youtube",
		"youtubeUrl": "https://youtu.be/dQw4w9WgXcQ",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	var body struct {
		Errors map[string]string `json:"errors"`
	}
	decodeBody(t, resp, &body)
	if body.Errors["youtubeUrl"] == "" {
		t.Fatalf("expected a youtubeUrl field error, got %+v", body.Errors)
	}
}

func TestCreateNoteAudioUpload(t *testing.T) {
	ts := newTestServer(t, nil)
	token := signup(t, ts)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("title", "Lecture"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := mw.CreateFormFile("audio", "lecture.mp3")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fmt.Fprint(part, "fake audio bytes")
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/notes", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want 201: %s", resp.StatusCode, raw)
	}
	var note domain.StudyNote
	decodeBody(t, resp, &note)
	if note.SourceType != domain.SourceAudio {
		t.Fatalf("SourceType = %q", note.SourceType)
	}
	if note.SourceReference == nil || *note.SourceReference != "lecture.mp3" {
		t.Fatalf("SourceReference = %v", note.SourceReference)
	}
	if note.Transcript != "spoken words" {
		t.Fatalf("Transcript = %q", note.Transcript)
	}
}

func TestNoteOwnershipOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	owner := signup(t, ts)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/notes", owner, map[string]string{
		"title":      "Mine",
		"sourceType": "youtube",
		"youtubeUrl": "https://youtu.be/dQw4w9WgXcQ",
	})
	var note domain.StudyNote
	decodeBody(t, resp, &note)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/auth/signup", "", map[string]string{
		"email": "eve@example.com", "password": "supersecret",
	})
	var other struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &other)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		resp := doJSON(t, method, ts.URL+"/api/notes/"+note.ID, other.Token, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("%s as non-owner status = %d, want 403", method, resp.StatusCode)
		}
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/notes/"+note.ID, owner, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner get status = %d, want 200", resp.StatusCode)
	}
}

func TestUpdateAndDeleteNote(t *testing.T) {
	ts := newTestServer(t, nil)
	token := signup(t, ts)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/notes", token, map[string]string{
		"title":      "Original",
		"sourceType": "youtube",
		"youtubeUrl": "https://youtu.be/dQw4w9WgXcQ",
	})
	var note domain.StudyNote
	decodeBody(t, resp, &note)

	resp = doJSON(t, http.MethodPatch, ts.URL+"/api/notes/"+note.ID, token, map[string]any{
		"title": "Renamed",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d, want 200", resp.StatusCode)
	}
	var updated domain.StudyNote
	decodeBody(t, resp, &updated)
	if updated.Title != "Renamed" {
		t.Fatalf("Title = %q, want Renamed", updated.Title)
	}
	if updated.Transcript != note.Transcript {
		t.Fatalf("transcript must never change on update")
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/notes/"+note.ID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/notes/"+note.ID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted status = %d, want 404", resp.StatusCode)
	}
}

func TestExportDownloads(t *testing.T) {
	ts := newTestServer(t, nil)
	token := signup(t, ts)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/notes", token, map[string]string{
		"title":      "Export Me",
		"sourceType": "youtube",
		"youtubeUrl": "https://youtu.be/dQw4w9WgXcQ",
	})
	var note domain.StudyNote
	decodeBody(t, resp, &note)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/notes/"+note.ID+"/export?format=markdown&exportLayout=compact", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("markdown export status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "export-me.md") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "# Export Me") {
		t.Fatalf("markdown body missing title:\n%s", raw)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/notes/"+note.ID+"/export?format=pdf&font=times", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pdf export status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("Content-Type = %q", ct)
	}
	pdfRaw, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(pdfRaw, []byte("%PDF-")) {
		t.Fatalf("pdf body does not look like a PDF")
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/notes/"+note.ID+"/export?format=docx", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown format status = %d, want 400", resp.StatusCode)
	}
}

func TestIngestRateLimited(t *testing.T) {
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	sessions, err := store.NewJWTSessionStore("test-secret", 0, store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	a, err := app.New(app.Config{
		Store:       store.NewMemoryStore(),
		Sessions:    sessions,
		Blobs:       blobs,
		Generator:   stubGenerator{},
		Fetcher:     stubFetcher{},
		Transcriber: stubTranscriber{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: a, IngestLimiter: denyAllLimiter{}})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	token := signup(t, ts)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/notes", token, map[string]string{
		"title":      "Notes",
		"sourceType": "text",
		"text":       strings.Repeat("knowledge ", 20),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
}
