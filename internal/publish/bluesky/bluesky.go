package bluesky

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"go.uber.org/zap"

	"github.com/your-org/mediapost/internal/media"
	"github.com/your-org/mediapost/internal/publish"
	"github.com/your-org/mediapost/pkg/metrics"
)

const (
	providerName = "bluesky"
	// Long enough for a full video upload in one request.
	requestTimeout = 5 * time.Minute

	feedPostCollection = "app.bsky.feed.post"
)

// Config holds the Bluesky account and endpoint settings.
type Config struct {
	PDSURL       string
	VideoHost    string
	Identifier   string
	Password     string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// BlobSource resolves blob store locators back to keys and fetches the
// stored bytes. Link-card thumbnails must already exist in the store.
type BlobSource interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	ResolveKey(locator string) string
}

// Client publishes posts to Bluesky. Each publish operation performs its
// own session login; no session state is shared across calls.
type Client struct {
	cfg        Config
	blobs      BlobSource
	transcoder *media.Transcoder
	http       *http.Client
	metrics    *metrics.Metrics
	logger     *zap.Logger
	workDir    string
}

// New constructs a Bluesky publisher.
func New(cfg Config, blobs BlobSource, transcoder *media.Transcoder, m *metrics.Metrics, logger *zap.Logger, workDir string) (*Client, error) {
	var missing []string
	if cfg.Identifier == "" {
		missing = append(missing, "BLUESKY_IDENTIFIER")
	}
	if cfg.Password == "" {
		missing = append(missing, "BLUESKY_PASSWORD")
	}
	if len(missing) > 0 {
		return nil, &publish.MissingCredentialsError{Platform: providerName, Variables: missing}
	}

	return &Client{
		cfg:        cfg,
		blobs:      blobs,
		transcoder: transcoder,
		http:       &http.Client{Timeout: requestTimeout},
		metrics:    m,
		logger:     logger,
		workDir:    workDir,
	}, nil
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// PostImage fetches the image at req.MediaURL, uploads it as a blob, and
// creates a post embedding it with alt text and aspect ratio.
func (c *Client) PostImage(ctx context.Context, req publish.Request) error {
	sess, err := c.login(ctx)
	if err != nil {
		return err
	}

	data, _, err := c.fetchRemote(ctx, req.MediaURL)
	if err != nil {
		return err
	}

	blob, err := c.uploadBlob(ctx, sess, data)
	if err != nil {
		return err
	}

	image := &bsky.EmbedImages_Image{
		Alt:   req.AltText,
		Image: blob,
	}
	if req.Width > 0 && req.Height > 0 {
		image.AspectRatio = &bsky.EmbedDefs_AspectRatio{
			Width:  req.Width,
			Height: req.Height,
		}
	}

	post, err := c.composePost(ctx, sess, req.StatusText)
	if err != nil {
		return err
	}
	post.Embed = &bsky.FeedPost_Embed{
		EmbedImages: &bsky.EmbedImages{
			Images: []*bsky.EmbedImages_Image{image},
		},
	}

	return c.createPost(ctx, sess, post)
}

// PostLink creates a post with an external link card. The platform needs
// the thumbnail as blob bytes, so the given locator is resolved back to a
// storage key and re-fetched from the blob store before upload.
func (c *Client) PostLink(ctx context.Context, req publish.Request) error {
	if req.Link == nil {
		return &publish.PlatformError{Platform: providerName, Op: "post link", Err: fmt.Errorf("link card is required")}
	}

	// The thumbnail is read back from the blob store before any platform
	// call, so a bad locator fails the operation without creating a session.
	var thumbData []byte
	if req.Link.ThumbnailURL != "" {
		var err error
		thumbData, err = c.fetchThumb(ctx, req.Link.ThumbnailURL)
		if err != nil {
			return err
		}
	}

	sess, err := c.login(ctx)
	if err != nil {
		return err
	}

	external := &bsky.EmbedExternal_External{
		Uri:         req.Link.URL,
		Title:       req.Link.Title,
		Description: req.Link.Description,
	}

	if thumbData != nil {
		thumb, err := c.uploadBlob(ctx, sess, thumbData)
		if err != nil {
			return err
		}
		external.Thumb = thumb
	}

	post, err := c.composePost(ctx, sess, req.StatusText)
	if err != nil {
		return err
	}
	post.Embed = &bsky.FeedPost_Embed{
		EmbedExternal: &bsky.EmbedExternal{External: external},
	}

	return c.createPost(ctx, sess, post)
}

// fetchThumb resolves a blob store locator back to its storage key and
// reads the stored bytes. An unrecognized locator resolves to itself and
// fails the fetch.
func (c *Client) fetchThumb(ctx context.Context, locator string) ([]byte, error) {
	return c.blobs.Fetch(ctx, c.blobs.ResolveKey(locator))
}

// login performs a fresh session login scoped to one publish operation.
func (c *Client) login(ctx context.Context) (*xrpc.Client, error) {
	userAgent := "mediapost/1"
	client := &xrpc.Client{
		Client:    c.http,
		Host:      c.cfg.PDSURL,
		UserAgent: &userAgent,
	}

	session, err := atproto.ServerCreateSession(ctx, client, &atproto.ServerCreateSession_Input{
		Identifier: c.cfg.Identifier,
		Password:   c.cfg.Password,
	})
	if err != nil {
		return nil, &publish.PlatformError{Platform: providerName, Op: "login", Err: err}
	}

	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	return client, nil
}

// composePost runs the status text through facet detection. Facets are
// only ever detected from the text, never invented.
func (c *Client) composePost(ctx context.Context, sess *xrpc.Client, status string) (*bsky.FeedPost, error) {
	facets := DetectFacets(ctx, status, func(ctx context.Context, handle string) (string, error) {
		out, err := atproto.IdentityResolveHandle(ctx, sess, handle)
		if err != nil {
			return "", err
		}
		return out.Did, nil
	})

	return &bsky.FeedPost{
		Text:      status,
		Facets:    facets,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (c *Client) createPost(ctx context.Context, sess *xrpc.Client, post *bsky.FeedPost) error {
	_, err := atproto.RepoCreateRecord(ctx, sess, &atproto.RepoCreateRecord_Input{
		Collection: feedPostCollection,
		Repo:       sess.Auth.Did,
		Record:     &lexutil.LexiconTypeDecoder{Val: post},
	})
	if err != nil {
		return &publish.PlatformError{Platform: providerName, Op: "create record", Err: err}
	}
	return nil
}

func (c *Client) uploadBlob(ctx context.Context, sess *xrpc.Client, data []byte) (*lexutil.LexBlob, error) {
	resp, err := atproto.RepoUploadBlob(ctx, sess, bytes.NewReader(data))
	if err != nil {
		return nil, &publish.PlatformError{Platform: providerName, Op: "upload blob", Err: err}
	}
	if resp.Blob == nil {
		return nil, &publish.PlatformError{Platform: providerName, Op: "upload blob", Err: fmt.Errorf("empty response")}
	}
	return resp.Blob, nil
}

func (c *Client) fetchRemote(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media %q: %w", mediaURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch media %q: unexpected status %d", mediaURL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read media %q: %w", mediaURL, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) pdsHost() string {
	u, err := url.Parse(c.cfg.PDSURL)
	if err != nil || u.Host == "" {
		return c.cfg.PDSURL
	}
	return u.Host
}
