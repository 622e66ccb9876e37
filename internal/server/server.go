// Package server exposes the HTTP API: auth, note ingestion, CRUD and
// export downloads.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"kensho/internal/app"
	"kensho/internal/util"
	"kensho/pkg/domain"
	"kensho/pkg/export"
	"kensho/pkg/storage"
)

// RateLimiter guards the ingestion endpoint. A nil limiter allows
// everything.
type RateLimiter interface {
	Allow(key string) bool
}

// Config holds the server dependencies.
type Config struct {
	App            *app.App
	IngestLimiter  RateLimiter
	MaxUploadBytes int64
}

// Server exposes HTTP endpoints for the backend.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	ingestLimiter  RateLimiter
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app required")
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		ingestLimiter:  cfg.IngestLimiter,
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.Handle("/api/users/me", s.authenticated(s.handleMe))

	// notes (auth required)
	s.mux.Handle("/api/notes", s.authenticated(s.handleNotes))
	s.mux.Handle("/api/notes/", s.authenticated(s.handleNoteByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			s.audit(r, "kensho.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token := bearerToken(r)
	if token == "" {
		return domain.User{}, false
	}
	userID, ok, err := s.app.Authenticate(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, err := s.app.GetUser(userID)
	if err != nil || user.Status == domain.StatusDisabled {
		return domain.User{}, false
	}
	return user, true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.audit(r, "kensho.signup", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Signup(req.Email, req.Password)
	if err != nil {
		s.audit(r, "kensho.signup", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "kensho.signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.audit(r, "kensho.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.audit(r, "kensho.login", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "kensho.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		notes, err := s.app.ListNotes(user.ID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
	case http.MethodPost:
		s.handleCreateNote(w, r, user)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createNoteRequest struct {
	Title      string `json:"title"`
	SourceType string `json:"sourceType"`
	YouTubeURL string `json:"youtubeUrl"`
	Text       string `json:"text"`
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request, user domain.User) {
	if s.ingestLimiter != nil && !s.ingestLimiter.Allow(user.ID+"|"+util.ClientIP(r)) {
		s.audit(r, "kensho.ingest", "rate_limited", "user_id", user.ID)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req app.IngestRequest
	req.OwnerID = user.ID

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := s.parseAudioUpload(r, user, &req); err != nil {
			s.audit(r, "kensho.ingest", "fail", "user_id", user.ID, "reason", err.Error())
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		var body createNoteRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		req.Title = body.Title
		req.SourceType = domain.SourceType(body.SourceType)
		req.YouTubeURL = body.YouTubeURL
		req.Text = body.Text
	}

	note, err := s.app.Ingest(r.Context(), req)
	if err != nil {
		s.audit(r, "kensho.ingest", "fail", "user_id", user.ID, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "kensho.ingest", "success", "user_id", user.ID, "note_id", note.ID)
	writeJSON(w, http.StatusCreated, note)
}

// parseAudioUpload stores the uploaded file as a temporary blob and
// fills the ingest request. The orchestrator removes the blob.
func (s *Server) parseAudioUpload(r *http.Request, user domain.User, req *app.IngestRequest) error {
	r.Body = http.MaxBytesReader(nil, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		return fmt.Errorf("upload too large or malformed")
	}
	req.Title = r.FormValue("title")
	req.SourceType = domain.SourceAudio
	if v := r.FormValue("sourceType"); v != "" {
		req.SourceType = domain.SourceType(v)
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return fmt.Errorf("audio file is required")
	}
	defer file.Close()

	filename := storage.SafeFilename(header.Filename)
	key := path.Join("tmp", user.ID, util.NewID(), filename)
	if err := s.app.Blobs().Save(r.Context(), key, file, header.Size); err != nil {
		return fmt.Errorf("store upload: %w", err)
	}
	req.Audio = &app.AudioInput{
		Key:      key,
		Filename: filename,
		Size:     header.Size,
		Language: r.FormValue("language"),
	}
	return nil
}

func (s *Server) handleNoteByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/notes/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if sub == "export" {
		s.handleExport(w, r, user, id)
		return
	}
	if sub != "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		note, err := s.app.GetNote(user.ID, id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, note)
	case http.MethodPatch:
		var upd domain.NoteUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		note, err := s.app.UpdateNote(user.ID, id, upd)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, note)
	case http.MethodDelete:
		if err := s.app.DeleteNote(user.ID, id); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleExport streams a markdown or pdf download. The exportLayout
// query option is accepted and ignored.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	note, err := s.app.GetNote(user.ID, id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "markdown"
	}
	var (
		body        []byte
		contentType string
		filename    string
	)
	switch format {
	case "markdown", "md":
		body = export.BuildMarkdown(note)
		contentType = export.MarkdownContentType
		filename = export.Filename(note, "md")
	case "pdf":
		body, err = export.BuildPDF(note, r.URL.Query().Get("font"))
		if err != nil {
			util.LoggerFromContext(r.Context()).Error("pdf export failed", "note_id", note.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to generate PDF")
			return
		}
		contentType = export.PDFContentType
		filename = export.Filename(note, "pdf")
	default:
		writeError(w, http.StatusBadRequest, "format must be markdown or pdf")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	_, _ = w.Write(body)
}

// writeAppError maps application errors onto HTTP responses. Field
// errors come back as a 422 with per-field messages.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var fieldError *app.FieldError
	switch {
	case errors.Is(err, app.ErrNoteNotFound):
		writeError(w, http.StatusNotFound, "note not found")
	case errors.Is(err, app.ErrNoteForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, app.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, "account disabled")
	case errors.As(err, &fieldError):
		if fieldError.Field != "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"errors": map[string]string{fieldError.Field: fieldError.Message},
			})
			return
		}
		writeError(w, http.StatusBadGateway, fieldError.Message)
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 50 * 1024 * 1024
	}
	return value
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}
