// Package httpapi exposes the translation service's HTTP and websocket
// API.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prog-le/Simultaneous-Interpretation/internal/audio"
	"github.com/prog-le/Simultaneous-Interpretation/internal/config"
	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/logging"
	"github.com/prog-le/Simultaneous-Interpretation/internal/session"
	"github.com/prog-le/Simultaneous-Interpretation/internal/upload"
)

// Handler serves the translation API.
type Handler struct {
	registry *session.Registry
	store    *upload.Store
	pacer    *audio.Pacer
	cfg      *config.Configuration
	logger   zerolog.Logger
}

// NewHandler wires the API handler.
func NewHandler(registry *session.Registry, store *upload.Store, pacer *audio.Pacer, cfg *config.Configuration) *Handler {
	return &Handler{
		registry: registry,
		store:    store,
		pacer:    pacer,
		cfg:      cfg,
		logger:   logging.WithComponent("httpapi"),
	}
}

// Router constructs the HTTP router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/start_translation", h.startTranslation)
		r.Post("/pause_translation", h.pauseTranslation)
		r.Post("/resume_translation", h.resumeTranslation)
		r.Post("/stop_translation", h.stopTranslation)
		r.Get("/languages", h.languages)
		r.Post("/upload_chunk", h.uploadChunk)
		r.Post("/complete_upload", h.completeUpload)
	})
	r.Post("/upload_audio", h.uploadAudio)
	r.Get("/ws/{sessionID}", h.serveWS)

	return r
}

type startRequest struct {
	APIKey          string   `json:"api_key"`
	SourceLanguage  string   `json:"source_language"`
	TargetLanguages []string `json:"target_languages"`
	UseMicrophone   bool     `json:"use_microphone"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) startTranslation(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	sess, err := h.registry.Create(r.Context(), session.CreateParams{
		SourceLanguage:  req.SourceLanguage,
		TargetLanguages: req.TargetLanguages,
		APIKey:          req.APIKey,
		UseLiveCapture:  req.UseMicrophone,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrInvalidParams) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"session_id":    sess.ID,
		"websocket_url": "/ws/" + sess.ID,
	})
}

func (h *Handler) pauseTranslation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(s *session.Session) error { return s.Pause() })
}

func (h *Handler) resumeTranslation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(s *session.Session) error { return s.Resume() })
}

// transition applies a state change to the session named in the body.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	sess, err := h.registry.Get(req.SessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := fn(sess); err != nil {
		status := http.StatusConflict
		if errors.Is(err, session.ErrInvalidTransition) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) stopTranslation(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	// Stop is idempotent: an unknown id means the desired end state
	// already holds.
	if err := h.registry.Stop(req.SessionID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) languages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"languages":    config.SupportedLanguages,
		"translations": config.SupportedTranslations,
	})
}

// uploadAudio accepts a whole audio file and streams it through the
// session's pacer. The file is removed once processed.
func (h *Handler) uploadAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxBodyBytes)
	file, header, err := r.FormFile("audio_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio_file is required")
		return
	}
	defer file.Close()

	sess, err := h.registry.Get(r.FormValue("session_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	path, err := h.store.SaveFile(sess.ID, header.Filename, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer h.store.Remove(path)

	saved, err := openSaved(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer saved.Close()

	h.pacer.Stream(r.Context(), saved, sess)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// uploadChunk stores one part of a chunked upload.
func (h *Handler) uploadChunk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxBodyBytes)
	chunk, _, err := r.FormFile("chunk")
	if err != nil {
		writeError(w, http.StatusBadRequest, "chunk is required")
		return
	}
	defer chunk.Close()

	sess, err := h.registry.Get(r.FormValue("session_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	filename := r.FormValue("filename")
	index, err := strconv.Atoi(r.FormValue("chunk_index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "chunk_index must be an integer")
		return
	}

	if err := h.store.PutChunk(sess.ID, filename, index, chunk); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type completeRequest struct {
	SessionID   string `json:"session_id"`
	Filename    string `json:"filename"`
	TotalChunks int    `json:"total_chunks"`
}

// completeUpload merges a chunked upload and streams the result
// through the session's pacer.
func (h *Handler) completeUpload(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	sess, err := h.registry.Get(req.SessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	merged, err := h.store.Complete(sess.ID, req.Filename, req.TotalChunks)
	if err != nil {
		var missing *upload.MissingPartError
		if errors.As(err, &missing) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer merged.Close()

	h.pacer.Stream(r.Context(), merged, sess)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func openSaved(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}
