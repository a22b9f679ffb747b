package publish

import "context"

// LinkCard carries the fields of an external link embed. ThumbnailURL
// must point at an object already in the blob store.
type LinkCard struct {
	URL          string
	Title        string
	Description  string
	ThumbnailURL string
}

// Request is one publish call. MediaURL, dimensions and Link are set
// depending on the target endpoint; none of it is persisted.
type Request struct {
	StatusText string
	MediaURL   string
	AltText    string
	Width      int64
	Height     int64
	Link       *LinkCard
}

// FeedPublisher publishes to the federated feed platform, which accepts
// images inline, link cards, and video through asynchronous processing.
type FeedPublisher interface {
	Name() string
	PostImage(ctx context.Context, req Request) error
	PostLink(ctx context.Context, req Request) error
	PostVideo(ctx context.Context, req Request) error
}

// MicroblogPublisher publishes to the microblogging platform, whose media
// API is synchronous.
type MicroblogPublisher interface {
	Name() string
	PostStatus(ctx context.Context, status string) error
	PostMedia(ctx context.Context, status, mediaURL string) error
}
