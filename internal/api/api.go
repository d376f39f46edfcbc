// Package api exposes the attempt pipeline over HTTP.
//
// Routes:
//
//	POST /analyze               multipart: audio, topic_id, optional user_id, optional topic_text
//	GET  /uploads/{name}        stored recordings
//	GET  /users/{id}/attempts   a user's attempts, newest first
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/MrWong99/talk2me/internal/attempt"
	"github.com/MrWong99/talk2me/internal/blob"
	"github.com/MrWong99/talk2me/internal/observe"
	"github.com/MrWong99/talk2me/pkg/audio"
)

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to disk.
const multipartMemory = 8 << 20

// DefaultMaxUploadBytes caps request bodies when Config.MaxUploadBytes is
// zero.
const DefaultMaxUploadBytes = 25 << 20

// Runner runs one attempt. *attempt.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, req attempt.Request) (*attempt.Response, error)
}

// BlobOpener opens stored recordings by name. *blob.Store implements it.
type BlobOpener interface {
	Open(name string) (*os.File, error)
}

// Config wires a [Server].
type Config struct {
	Pipeline Runner

	// Attempts and Users back the history route. Both nil disables it.
	Attempts attempt.AttemptStore
	Users    attempt.UserStore

	// Uploads serves /uploads/. Nil disables the route.
	Uploads BlobOpener

	MaxUploadBytes int64
}

// Server holds the handlers.
type Server struct {
	cfg Config
}

// New returns a [Server].
func New(cfg Config) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("api: config: Pipeline is required")
	}
	if (cfg.Attempts == nil) != (cfg.Users == nil) {
		return nil, errors.New("api: config: Attempts and Users must be set together")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{cfg: cfg}, nil
}

// Register adds the routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /analyze", s.Analyze)
	if s.cfg.Uploads != nil {
		mux.HandleFunc("GET "+blob.URLPrefix+"{name}", s.Upload)
	}
	if s.cfg.Attempts != nil {
		mux.HandleFunc("GET /users/{id}/attempts", s.History)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// Analyze handles POST /analyze.
func (s *Server) Analyze(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds limit of "+strconv.FormatInt(s.cfg.MaxUploadBytes>>20, 10)+" MB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Warn("failed to remove multipart temp files", "err", err)
		}
	}()

	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	topicID, err := strconv.ParseInt(r.FormValue("topic_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "topic_id must be an integer")
		return
	}

	req := attempt.Request{
		Audio:     file,
		TopicID:   topicID,
		TopicText: r.FormValue("topic_text"),
	}
	if raw := r.FormValue("user_id"); raw != "" {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "user_id must be an integer")
			return
		}
		req.UserID = &uid
	}

	resp, err := s.cfg.Pipeline.Run(r.Context(), req)
	switch {
	case errors.Is(err, attempt.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, attempt.ErrorResponse{Error: attempt.UserNotFoundMessage})
		return
	case r.Context().Err() != nil:
		log.Info("client went away during analysis", "err", err)
		return
	case err != nil:
		log.Error("attempt analysis failed", "err", err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Upload handles GET /uploads/{name}.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f, err := s.cfg.Uploads.Open(name)
	switch {
	case errors.Is(err, blob.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	case errors.Is(err, os.ErrNotExist):
		writeError(w, http.StatusNotFound, "file not found")
		return
	case err != nil:
		observe.Logger(r.Context()).Error("failed to open recording", "name", name, "err", err)
		writeError(w, http.StatusInternalServerError, "cannot read file")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	ctype, err := sniff(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot read file")
		return
	}
	w.Header().Set("Content-Type", ctype)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// sniff reports the content type of the recording and rewinds f. Unknown
// content is served as audio/webm, the format browsers record.
func sniff(f io.ReadSeeker) (string, error) {
	var header [16]byte
	n, err := io.ReadFull(f, header[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	c := audio.Sniff(header[:n])
	if c == audio.ContainerUnknown {
		c = audio.ContainerWebM
	}
	return audio.ContentType(c), nil
}

// AttemptView is one entry of the history route.
type AttemptView struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	TopicID     int64   `json:"topic_id"`
	AudioURL    string  `json:"audio_url"`
	Transcript  string  `json:"transcript"`
	WPM         float64 `json:"wpm"`
	FillerCount int     `json:"filler_count"`
	Score       int     `json:"score"`

	// Feedback is null when the stored record does not validate.
	Feedback  *attempt.FeedbackRecord `json:"feedback"`
	CreatedAt time.Time               `json:"created_at"`
}

// History handles GET /users/{id}/attempts. The optional limit query
// parameter caps the number of entries.
func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	userID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "user id must be an integer")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	if _, err := s.cfg.Users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, attempt.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, attempt.ErrorResponse{Error: attempt.UserNotFoundMessage})
			return
		}
		log.Error("user lookup failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	rows, err := s.cfg.Attempts.ListByUser(ctx, userID, limit)
	if err != nil {
		log.Error("listing attempts failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	out := make([]AttemptView, 0, len(rows))
	for _, a := range rows {
		v := AttemptView{
			ID:          a.ID,
			UserID:      a.UserID,
			TopicID:     a.TopicID,
			AudioURL:    a.AudioURL,
			Transcript:  a.Transcript,
			WPM:         a.WPM,
			FillerCount: a.FillerCount,
			Score:       a.Score,
			CreatedAt:   a.CreatedAt,
		}
		if fb, err := attempt.DecodeFeedback(a.Feedback); err != nil {
			log.Warn("stored feedback is invalid", "attempt_id", a.ID, "err", err)
		} else {
			v.Feedback = &fb
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
