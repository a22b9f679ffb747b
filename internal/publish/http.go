package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/mediapost/pkg/metrics"
)

// EventSink receives publish lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, key, value []byte, eventType string) error
}

// NopSink discards events; used when the event stream is disabled.
type NopSink struct{}

func (NopSink) Publish(context.Context, []byte, []byte, string) error { return nil }

// PostPublishedEvent is emitted after a post is accepted by a platform.
type PostPublishedEvent struct {
	ID        string    `json:"id"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
}

// HTTPHandler exposes the per-platform publish endpoints.
type HTTPHandler struct {
	feed      FeedPublisher
	microblog MicroblogPublisher
	events    EventSink
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewHTTPHandler constructs the publish HTTP handler.
func NewHTTPHandler(feed FeedPublisher, microblog MicroblogPublisher, events EventSink, m *metrics.Metrics, logger *zap.Logger) *HTTPHandler {
	if events == nil {
		events = NopSink{}
	}
	return &HTTPHandler{feed: feed, microblog: microblog, events: events, metrics: m, logger: logger}
}

// Register wires the publish routes onto the given router.
func (h *HTTPHandler) Register(r chi.Router) {
	r.Post("/api/post-to-mastodon", h.handleMastodonStatus)
	r.Post("/api/post-media-to-mastodon", h.handleMastodonMedia)
	r.Post("/api/post-image-to-bluesky", h.handleBlueskyImage)
	r.Post("/api/post-link-to-bluesky", h.handleBlueskyLink)
	r.Post("/api/post-video-to-bluesky", h.handleBlueskyVideo)
}

type statusBody struct {
	Status string `json:"status"`
}

type mediaBody struct {
	Status   string `json:"status"`
	ImageURL string `json:"imageUrl"`
	Width    int64  `json:"width"`
	Height   int64  `json:"height"`
	Alt      string `json:"alt"`
}

type linkBody struct {
	Status      string `json:"status"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

type videoBody struct {
	Status   string `json:"status"`
	VideoURL string `json:"videoUrl"`
}

func (h *HTTPHandler) handleMastodonStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody
	if !decode(w, r, &body) {
		return
	}
	h.finish(r.Context(), w, h.microblog.Name(), h.microblog.PostStatus(r.Context(), body.Status))
}

func (h *HTTPHandler) handleMastodonMedia(w http.ResponseWriter, r *http.Request) {
	var body mediaBody
	if !decode(w, r, &body) {
		return
	}
	if body.ImageURL == "" {
		http.Error(w, "imageUrl is required", http.StatusBadRequest)
		return
	}
	h.finish(r.Context(), w, h.microblog.Name(), h.microblog.PostMedia(r.Context(), body.Status, body.ImageURL))
}

func (h *HTTPHandler) handleBlueskyImage(w http.ResponseWriter, r *http.Request) {
	var body mediaBody
	if !decode(w, r, &body) {
		return
	}
	if body.ImageURL == "" {
		http.Error(w, "imageUrl is required", http.StatusBadRequest)
		return
	}
	err := h.feed.PostImage(r.Context(), Request{
		StatusText: body.Status,
		MediaURL:   body.ImageURL,
		AltText:    body.Alt,
		Width:      body.Width,
		Height:     body.Height,
	})
	h.finish(r.Context(), w, h.feed.Name(), err)
}

func (h *HTTPHandler) handleBlueskyLink(w http.ResponseWriter, r *http.Request) {
	var body linkBody
	if !decode(w, r, &body) {
		return
	}
	if body.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	err := h.feed.PostLink(r.Context(), Request{
		StatusText: body.Status,
		Link: &LinkCard{
			URL:          body.URL,
			Title:        body.Title,
			Description:  body.Description,
			ThumbnailURL: body.Image,
		},
	})
	h.finish(r.Context(), w, h.feed.Name(), err)
}

func (h *HTTPHandler) handleBlueskyVideo(w http.ResponseWriter, r *http.Request) {
	var body videoBody
	if !decode(w, r, &body) {
		return
	}
	if body.VideoURL == "" {
		http.Error(w, "videoUrl is required", http.StatusBadRequest)
		return
	}
	err := h.feed.PostVideo(r.Context(), Request{
		StatusText: body.Status,
		MediaURL:   body.VideoURL,
	})
	h.finish(r.Context(), w, h.feed.Name(), err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *HTTPHandler) finish(ctx context.Context, w http.ResponseWriter, platform string, err error) {
	if err != nil {
		h.observe(platform, "error")
		h.logger.Error("publish failed", zap.String("platform", platform), zap.Error(err))
		http.Error(w, "error posting to "+platform, http.StatusInternalServerError)
		return
	}
	h.observe(platform, "ok")
	h.emit(ctx, platform)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"success": "posted"}) //nolint:errcheck
}

func (h *HTTPHandler) emit(ctx context.Context, platform string) {
	event := PostPublishedEvent{
		ID:        uuid.NewString(),
		Platform:  platform,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := h.events.Publish(ctx, []byte(event.ID), payload, "post.published"); err != nil {
		// Advisory only; the post already exists on the platform.
		h.logger.Warn("publish event failed", zap.String("platform", platform), zap.Error(err))
	}
}

func (h *HTTPHandler) observe(platform, outcome string) {
	if h.metrics != nil {
		h.metrics.PublishesTotal.WithLabelValues(platform, outcome).Inc()
	}
}
