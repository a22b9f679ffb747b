package ingest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/mediapost/internal/media"
)

// HTTPHandler exposes the ingest and listing endpoints.
type HTTPHandler struct {
	service      *Service
	logger       *zap.Logger
	maxSizeBytes int64
	formMemBytes int64
}

// NewHTTPHandler constructs the ingest HTTP handler.
func NewHTTPHandler(service *Service, logger *zap.Logger, maxSizeBytes, formMemBytes int64) *HTTPHandler {
	return &HTTPHandler{
		service:      service,
		logger:       logger,
		maxSizeBytes: maxSizeBytes,
		formMemBytes: formMemBytes,
	}
}

// Register wires the ingest routes onto the given router.
func (h *HTTPHandler) Register(r chi.Router) {
	r.Post("/api/upload", h.handleUpload)
	r.Get("/api/list-objects", h.handleListObjects)
	r.Get("/api/uploads", h.handleRecentUploads)
}

func (h *HTTPHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > 0 && r.ContentLength > h.maxSizeBytes {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	// Chunked uploads carry no Content-Length; cap the body itself so an
	// oversized upload is cut off mid-stream instead of fully spooled.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSizeBytes)
	if err := r.ParseMultipartForm(h.formMemBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > h.maxSizeBytes {
		http.Error(w, "file exceeds max size limit", http.StatusRequestEntityTooLarge)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result, err := h.service.Process(r.Context(), file, header.Filename, contentType)
	if err != nil {
		var cerr *media.ClassificationError
		if errors.As(err, &cerr) {
			http.Error(w, "unsupported file type", http.StatusUnsupportedMediaType)
			return
		}
		h.logger.Error("upload failed", zap.Error(err))
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse(result))
}

// uploadResponse shapes the per-class response body.
func uploadResponse(result *Result) map[string]string {
	switch result.Class {
	case media.ClassImage:
		return map[string]string{
			"smallImageUrl": result.Locations[media.RoleSmall],
			"largeImageUrl": result.Locations[media.RoleLarge],
		}
	case media.ClassAnimatedImage:
		return map[string]string{
			"gifUrl": result.Locations[media.RoleGif],
			"jpgUrl": result.Locations[media.RoleGifPreview],
		}
	case media.ClassVideo:
		return map[string]string{"videoUrl": result.Locations[media.RoleVideo]}
	case media.ClassAudio:
		return map[string]string{"audioUrl": result.Locations[media.RoleAudio]}
	default:
		return map[string]string{}
	}
}

func (h *HTTPHandler) handleListObjects(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListObjects(r.Context(), r.URL.Query().Get("continuationToken"))
	if err != nil {
		h.logger.Error("list objects failed", zap.Error(err))
		http.Error(w, "error listing objects", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

type uploadRecord struct {
	Key         string    `json:"key"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (h *HTTPHandler) handleRecentUploads(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := h.service.RecentUploads(r.Context(), limit)
	if err != nil {
		h.logger.Error("list uploads failed", zap.Error(err))
		http.Error(w, "error listing uploads", http.StatusInternalServerError)
		return
	}

	out := make([]uploadRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, uploadRecord{
			Key:         rec.Key,
			ContentType: rec.ContentType,
			CreatedAt:   rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploads": out})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
