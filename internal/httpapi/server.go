package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/guideworks/livesync/internal/content"
	"github.com/guideworks/livesync/internal/docstore"
)

type Logger interface {
	Printf(format string, args ...any)
}

type Config struct {
	// PIN unlocks editing endpoints. Empty disables all writes.
	PIN              string
	MaxBodyBytes     int64
	PinAttemptMax    int
	PinAttemptWindow time.Duration
	MediaDir         string
	PublicBaseURL    string
	MediaURLCache    URLCache
	Logger           Logger
}

// Server is the HTTP edge of the sync engine: teacher-authenticated
// writes, public reads, media upload and the websocket realtime endpoint.
type Server struct {
	store      *docstore.Store
	realtime   http.Handler
	media      *MediaStore
	cfg        Config
	pinLimiter *pinLimiter
	schemas    *requestSchemas
}

func NewServer(store *docstore.Store, realtime http.Handler, cfg Config) (*Server, error) {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.PinAttemptMax <= 0 {
		cfg.PinAttemptMax = 10
	}
	if cfg.PinAttemptWindow <= 0 {
		cfg.PinAttemptWindow = time.Minute
	}
	if cfg.MediaDir == "" {
		cfg.MediaDir = "media"
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	schemas, err := compileRequestSchemas()
	if err != nil {
		return nil, err
	}
	return &Server{
		store:      store,
		realtime:   realtime,
		media:      NewMediaStore(cfg.MediaDir, cfg.PublicBaseURL, cfg.MediaURLCache),
		cfg:        cfg,
		pinLimiter: newPinLimiter(cfg.PinAttemptMax, cfg.PinAttemptWindow),
		schemas:    schemas,
	}, nil
}

func (s *Server) Media() *MediaStore {
	return s.media
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
	}()

	path := r.URL.Path
	switch {
	case path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case path == "/v1/realtime":
		if s.realtime == nil {
			writeError(w, http.StatusNotFound, "not_found", "realtime disabled")
			return
		}
		s.realtime.ServeHTTP(w, r)
	case strings.HasPrefix(path, "/media/") && r.Method == http.MethodGet:
		s.media.ServeFile(w, r, strings.TrimPrefix(path, "/media/"))
	case path == "/v1/unlock" && r.Method == http.MethodPost:
		s.handleUnlock(w, r)
	case path == "/v1/overrides" && r.Method == http.MethodPost:
		s.handleSaveOverride(w, r)
	case path == "/v1/overrides" && r.Method == http.MethodGet:
		s.handleGetOverrides(w, r)
	case path == "/v1/live-doc" && r.Method == http.MethodPost:
		s.handleSaveLiveDoc(w, r)
	case path == "/v1/live-doc" && r.Method == http.MethodDelete:
		s.handleDeleteLiveDoc(w, r)
	case path == "/v1/live-doc" && r.Method == http.MethodGet:
		s.handleGetLiveDoc(w, r)
	case path == "/v1/live-docs" && r.Method == http.MethodGet:
		s.handleListLiveDocs(w, r)
	case path == "/v1/media" && r.Method == http.MethodPost:
		s.handleMediaUpload(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var req struct {
		Pin string `json:"pin"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	if authErr := s.authorizePIN(r, req.Pin, time.Now()); authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSaveOverride(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	if err := validateBody(s.schemas.override, body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	var req struct {
		Pin    string          `json:"pin"`
		Slug   string          `json:"slug"`
		Locale string          `json:"locale"`
		Patch  json.RawMessage `json:"patch"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	if authErr := s.authorizePIN(r, req.Pin, time.Now()); authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message)
		return
	}
	if !content.ValidSlug(req.Slug) {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid slug")
		return
	}
	if _, err := s.store.Upsert(docstore.TableOverrides, req.Slug, req.Locale, req.Patch); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleGetOverrides(w http.ResponseWriter, r *http.Request) {
	locale := r.URL.Query().Get("locale")
	if !content.ValidLocale(locale) {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid locale")
		return
	}
	if slug := r.URL.Query().Get("slug"); slug != "" {
		row, err := s.store.Get(docstore.TableOverrides, slug, locale)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, row)
		return
	}
	rows, err := s.store.List(docstore.TableOverrides, locale)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) handleSaveLiveDoc(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	if err := validateBody(s.schemas.liveDoc, body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	var req struct {
		Pin         string             `json:"pin"`
		Slug        string             `json:"slug"`
		Locale      string             `json:"locale"`
		Frontmatter content.Attributes `json:"frontmatter"`
		Content     string             `json:"content"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	if authErr := s.authorizePIN(r, req.Pin, time.Now()); authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message)
		return
	}
	if !content.ValidSlug(req.Slug) {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid slug")
		return
	}
	if req.Frontmatter.Slug != req.Slug {
		writeError(w, http.StatusBadRequest, "bad_request", "frontmatter slug does not match")
		return
	}
	data, err := json.Marshal(content.BaseContent{Frontmatter: req.Frontmatter, Content: req.Content})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if _, err := s.store.Upsert(docstore.TableLiveDocs, req.Slug, req.Locale, data); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDeleteLiveDoc(w http.ResponseWriter, r *http.Request) {
	if authErr := s.authorizePIN(r, "", time.Now()); authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message)
		return
	}
	slug := r.URL.Query().Get("slug")
	locale := r.URL.Query().Get("locale")
	if err := s.store.Delete(docstore.TableLiveDocs, slug, locale); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleGetLiveDoc(w http.ResponseWriter, r *http.Request) {
	row, err := s.store.Get(docstore.TableLiveDocs, r.URL.Query().Get("slug"), r.URL.Query().Get("locale"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleListLiveDocs(w http.ResponseWriter, r *http.Request) {
	locale := r.URL.Query().Get("locale")
	if !content.ValidLocale(locale) {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid locale")
		return
	}
	rows, err := s.store.List(docstore.TableLiveDocs, locale)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) handleMediaUpload(w http.ResponseWriter, r *http.Request) {
	// The cap leaves headroom for multipart framing around a max-size image.
	r.Body = http.MaxBytesReader(w, r.Body, maxMediaBytes+(64<<10))
	if err := r.ParseMultipartForm(maxMediaBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "media exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart body")
		return
	}
	if authErr := s.authorizePIN(r, r.FormValue("pin"), time.Now()); authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message)
		return
	}
	if slug := r.FormValue("slug"); slug != "" && !content.ValidSlug(slug) {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid slug")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "missing file part")
		return
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(io.LimitReader(file, maxMediaBytes+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read upload")
		return
	}
	if len(data) > maxMediaBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "media exceeds the size limit")
		return
	}
	contentType := http.DetectContentType(data)
	if _, ok := mediaExtensions[contentType]; !ok {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "unsupported image type "+contentType)
		return
	}
	id, url, err := s.media.Save(data, contentType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mediaId": id, "publicUrl": url})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, docstore.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}

func (s *Server) logf(format string, args ...any) {
	if s.cfg.Logger == nil {
		return
	}
	s.cfg.Logger.Printf(format, args...)
}
