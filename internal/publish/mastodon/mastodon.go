package mastodon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	mastodonapi "github.com/mattn/go-mastodon"

	"github.com/your-org/mediapost/internal/publish"
)

const (
	providerName   = "mastodon"
	requestTimeout = 60 * time.Second
)

// Config contains the settings needed to reach a Mastodon server.
type Config struct {
	Server      string
	AccessToken string
}

// Client publishes statuses to a Mastodon instance. Media attachments are
// uploaded in a single synchronous call before the status is created.
type Client struct {
	client *mastodonapi.Client
	http   *http.Client
}

// New constructs a Mastodon publisher.
func New(cfg Config) (*Client, error) {
	var missing []string
	if cfg.Server == "" {
		missing = append(missing, "MASTODON_SERVER")
	}
	if cfg.AccessToken == "" {
		missing = append(missing, "MASTODON_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return nil, &publish.MissingCredentialsError{Platform: providerName, Variables: missing}
	}

	client := mastodonapi.NewClient(&mastodonapi.Config{
		Server:      cfg.Server,
		AccessToken: cfg.AccessToken,
	})
	client.Timeout = requestTimeout

	return &Client{
		client: client,
		http:   &http.Client{Timeout: requestTimeout},
	}, nil
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// PostStatus publishes a public text-only status.
func (c *Client) PostStatus(ctx context.Context, status string) error {
	_, err := c.client.PostStatus(ctx, &mastodonapi.Toot{
		Status:     status,
		Visibility: "public",
	})
	if err != nil {
		return &publish.PlatformError{Platform: providerName, Op: "post status", Err: err}
	}
	return nil
}

// PostMedia fetches the media at mediaURL, uploads it as a single
// attachment, and publishes a status carrying it. The attachment handle
// is obtained before the status is created.
func (c *Client) PostMedia(ctx context.Context, status, mediaURL string) error {
	body, err := c.fetchRemote(ctx, mediaURL)
	if err != nil {
		return err
	}
	defer body.Close()

	attachment, err := c.client.UploadMediaFromMedia(ctx, &mastodonapi.Media{
		File: body,
	})
	if err != nil {
		return &publish.PlatformError{Platform: providerName, Op: "upload media", Err: err}
	}

	_, err = c.client.PostStatus(ctx, &mastodonapi.Toot{
		Status:     status,
		Visibility: "public",
		MediaIDs:   []mastodonapi.ID{attachment.ID},
	})
	if err != nil {
		return &publish.PlatformError{Platform: providerName, Op: "post status", Err: err}
	}
	return nil
}

func (c *Client) fetchRemote(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media %q: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch media %q: unexpected status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}
