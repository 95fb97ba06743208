package delivery

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mymind-ai/backend/internal/apperr"
	"github.com/mymind-ai/backend/internal/dialogue"
	"github.com/mymind-ai/backend/internal/pipeline"
)

const maxUploadMemory = 20 << 20

// Pipeline is the slice of the orchestrator the HTTP layer calls.
type Pipeline interface {
	Chat(ctx context.Context, userID, message string) (string, error)
	Transcribe(ctx context.Context, filePath string) (string, error)
	Speak(ctx context.Context, text, voice string) (pipeline.SpeechResult, error)
	ListenAndRespond(ctx context.Context, userID, filePath, voice string) (pipeline.SpeechResult, error)
}

type Handler struct {
	pipeline Pipeline
	store    *dialogue.Store
	log      *logger.ZapLogger
}

func NewHandler(p Pipeline, store *dialogue.Store, log *logger.ZapLogger) *Handler {
	return &Handler{
		pipeline: p,
		store:    store,
		log:      log,
	}
}

func (h *Handler) Welcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "Welcome to the MyMind voice companion backend"})
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"user_id"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	reply, err := h.pipeline.Chat(r.Context(), req.UserID, req.Message)
	if err != nil {
		h.fail(w, "chat failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"response": reply})
}

func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file: "+err.Error())
		return
	}
	defer file.Close()

	tempPath, cleanup, err := saveUpload(file, header.Filename)
	if err != nil {
		h.fail(w, "store upload", apperr.Internal("store upload", err))
		return
	}
	defer cleanup()

	text, err := h.pipeline.Transcribe(r.Context(), tempPath)
	if err != nil {
		h.fail(w, "transcription failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"transcription": text})
}

func (h *Handler) Speak(w http.ResponseWriter, r *http.Request) {
	text := r.FormValue("text")
	if text == "" {
		writeError(w, http.StatusBadRequest, "missing text")
		return
	}
	voice := r.FormValue("voice")

	res, err := h.pipeline.Speak(r.Context(), text, voice)
	if err != nil {
		h.fail(w, "speech synthesis failed", err)
		return
	}

	serveAudio(w, res)
}

func (h *Handler) ListenAndRespond(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart: "+err.Error())
		return
	}

	userID := r.FormValue("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}
	voice := r.FormValue("voice")

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file: "+err.Error())
		return
	}
	defer file.Close()

	tempPath, cleanup, err := saveUpload(file, header.Filename)
	if err != nil {
		h.fail(w, "store upload", apperr.Internal("store upload", err))
		return
	}
	defer cleanup()

	res, err := h.pipeline.ListenAndRespond(r.Context(), userID, tempPath, voice)
	if err != nil {
		h.fail(w, "listen-and-respond failed", err)
		return
	}

	serveAudio(w, res)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	turns := []dialogue.Message{}
	if conv, ok := h.store.Get(userID); ok {
		turns = conv.History()
	}

	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "history": turns})
}

func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	evicted := h.store.Evict(userID)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "evicted": evicted})
}

// saveUpload copies an uploaded part to a uniquely named temp file. The
// returned cleanup must run on every exit path so failed requests do not
// leak files.
func saveUpload(file multipart.File, filename string) (string, func(), error) {
	name := "upload_" + uuid.NewString() + filepath.Ext(filename)
	path := filepath.Join(os.TempDir(), name)

	out, err := os.Create(path)
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(path)
		return "", nil, err
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", nil, err
	}

	return path, func() { _ = os.Remove(path) }, nil
}

func serveAudio(w http.ResponseWriter, res pipeline.SpeechResult) {
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(res.Path)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Audio)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if h.log != nil {
		h.log.Log(logger.LogEntry{Level: "error", Message: msg, Service: "delivery", Error: err})
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrProvider), errors.Is(err, apperr.ErrEmptyResult):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		status = 499 // client closed request
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
