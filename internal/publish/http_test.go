package publish

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFeed struct {
	images []Request
	links  []Request
	videos []Request
	err    error
}

func (f *fakeFeed) Name() string { return "bluesky" }

func (f *fakeFeed) PostImage(_ context.Context, req Request) error {
	f.images = append(f.images, req)
	return f.err
}

func (f *fakeFeed) PostLink(_ context.Context, req Request) error {
	f.links = append(f.links, req)
	return f.err
}

func (f *fakeFeed) PostVideo(_ context.Context, req Request) error {
	f.videos = append(f.videos, req)
	return f.err
}

type fakeMicroblog struct {
	statuses []string
	media    []string
	err      error
}

func (f *fakeMicroblog) Name() string { return "mastodon" }

func (f *fakeMicroblog) PostStatus(_ context.Context, status string) error {
	f.statuses = append(f.statuses, status)
	return f.err
}

func (f *fakeMicroblog) PostMedia(_ context.Context, status, mediaURL string) error {
	f.media = append(f.media, mediaURL)
	return f.err
}

func newRouter(feed FeedPublisher, microblog MicroblogPublisher) http.Handler {
	h := NewHTTPHandler(feed, microblog, nil, nil, zap.NewNop())
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func post(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPostToMastodon(t *testing.T) {
	microblog := &fakeMicroblog{}
	router := newRouter(&fakeFeed{}, microblog)

	rec := post(t, router, "/api/post-to-mastodon", `{"status":"hello fediverse"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":"posted"}`, rec.Body.String())
	assert.Equal(t, []string{"hello fediverse"}, microblog.statuses)
}

func TestPostMediaToMastodonRequiresImageURL(t *testing.T) {
	router := newRouter(&fakeFeed{}, &fakeMicroblog{})

	rec := post(t, router, "/api/post-media-to-mastodon", `{"status":"no media"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostImageToBluesky(t *testing.T) {
	feed := &fakeFeed{}
	router := newRouter(feed, &fakeMicroblog{})

	rec := post(t, router, "/api/post-image-to-bluesky",
		`{"status":"look","imageUrl":"https://cdn.example.com/a.jpg","width":800,"height":533,"alt":"a photo"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, feed.images, 1)
	assert.Equal(t, "https://cdn.example.com/a.jpg", feed.images[0].MediaURL)
	assert.EqualValues(t, 800, feed.images[0].Width)
	assert.Equal(t, "a photo", feed.images[0].AltText)
}

func TestPostLinkToBluesky(t *testing.T) {
	feed := &fakeFeed{}
	router := newRouter(feed, &fakeMicroblog{})

	rec := post(t, router, "/api/post-link-to-bluesky",
		`{"status":"new post","url":"https://blog.example.com/p/1","title":"A Post","description":"words","image":"https://cdn.example.com/t.jpg"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, feed.links, 1)
	require.NotNil(t, feed.links[0].Link)
	assert.Equal(t, "https://blog.example.com/p/1", feed.links[0].Link.URL)
	assert.Equal(t, "https://cdn.example.com/t.jpg", feed.links[0].Link.ThumbnailURL)
}

func TestPostVideoToBluesky(t *testing.T) {
	feed := &fakeFeed{}
	router := newRouter(feed, &fakeMicroblog{})

	rec := post(t, router, "/api/post-video-to-bluesky",
		`{"status":"moving pictures","videoUrl":"https://cdn.example.com/v.mp4"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, feed.videos, 1)
	assert.Equal(t, "https://cdn.example.com/v.mp4", feed.videos[0].MediaURL)
}

func TestPlatformFailureIsServerError(t *testing.T) {
	feed := &fakeFeed{err: &PlatformError{Platform: "bluesky", Op: "create record", Err: errors.New("boom")}}
	router := newRouter(feed, &fakeMicroblog{})

	rec := post(t, router, "/api/post-video-to-bluesky",
		`{"status":"x","videoUrl":"https://cdn.example.com/v.mp4"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "bluesky")
}

func TestInvalidBodyIsBadRequest(t *testing.T) {
	router := newRouter(&fakeFeed{}, &fakeMicroblog{})

	rec := post(t, router, "/api/post-to-mastodon", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
