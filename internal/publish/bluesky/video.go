package bluesky

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"go.uber.org/zap"

	"github.com/your-org/mediapost/internal/publish"
)

// Wire states reported by the video processing service.
const (
	jobStateCompleted = "JOB_STATE_COMPLETED"
	jobStateFailed    = "JOB_STATE_FAILED"
)

const serviceAuthTTL = 30 * time.Minute

// jobStatus is one observation of an asynchronous processing job.
type jobStatus struct {
	JobID   string
	State   string
	Blob    *lexutil.LexBlob
	Message string
}

// jobClient submits a video for processing and queries job state.
type jobClient interface {
	submit(ctx context.Context, r io.Reader) (*jobStatus, error)
	status(ctx context.Context, jobID string) (*jobStatus, error)
}

// PostVideo downloads the video at req.MediaURL, transcodes it to a
// baseline-compatible MP4, submits it to the video processing service,
// polls until a result blob is available, and creates a post embedding
// that blob. Local temp files are removed on every exit path; remote
// state is never rolled back.
func (c *Client) PostVideo(ctx context.Context, req publish.Request) error {
	dir, err := os.MkdirTemp(c.workDir, "video-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	sourcePath := filepath.Join(dir, "source"+filepath.Ext(req.MediaURL))
	if err := c.downloadTo(ctx, req.MediaURL, sourcePath); err != nil {
		return err
	}

	// Transcoding runs to completion before any platform call.
	transcodedPath := filepath.Join(dir, "output.mp4")
	if err := c.transcoder.Transcode(ctx, sourcePath, transcodedPath); err != nil {
		return err
	}

	sess, err := c.login(ctx)
	if err != nil {
		return err
	}

	jc, err := c.videoJobClient(ctx, sess, assetName(req.MediaURL))
	if err != nil {
		return err
	}

	f, err := os.Open(transcodedPath)
	if err != nil {
		return fmt.Errorf("open transcoded video: %w", err)
	}
	defer f.Close()

	blob, attempts, err := runVideoJob(ctx, jc, f, c.cfg.PollInterval, c.cfg.PollTimeout)
	if c.metrics != nil {
		c.metrics.VideoPollAttempts.Observe(float64(attempts))
	}
	if err != nil {
		return err
	}

	c.logger.Info("video processing complete",
		zap.Int("poll_attempts", attempts),
	)

	post, err := c.composePost(ctx, sess, req.StatusText)
	if err != nil {
		return err
	}
	post.Embed = &bsky.FeedPost_Embed{
		EmbedVideo: &bsky.EmbedVideo{Video: blob},
	}

	return c.createPost(ctx, sess, post)
}

// runVideoJob drives submit → poll-until-ready. It returns the result
// blob and the number of status polls performed. A post is composed only
// after a blob has been obtained.
func runVideoJob(ctx context.Context, jc jobClient, video io.Reader, interval, timeout time.Duration) (*lexutil.LexBlob, int, error) {
	st, err := jc.submit(ctx, video)
	if err != nil {
		return nil, 0, err
	}
	return pollUntilReady(ctx, jc, st, interval, timeout)
}

// pollUntilReady queries job status at a fixed interval until the job
// yields a result blob or fails. The loop is bounded by timeout and
// aborts on ctx cancellation; it never spins unbounded.
func pollUntilReady(ctx context.Context, jc jobClient, initial *jobStatus, interval, timeout time.Duration) (*lexutil.LexBlob, int, error) {
	// Trivially fast processing may return the blob inline.
	if initial.Blob != nil {
		return initial.Blob, 0, nil
	}
	if initial.State == jobStateFailed {
		return nil, 0, jobFailed(initial)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, attempts, &publish.JobTimeoutError{JobID: initial.JobID, Elapsed: timeout}
			}
			return nil, attempts, ctx.Err()
		case <-ticker.C:
			st, err := jc.status(ctx, initial.JobID)
			if err != nil {
				return nil, attempts, err
			}
			attempts++
			if st.Blob != nil {
				return st.Blob, attempts, nil
			}
			if st.State == jobStateFailed {
				return nil, attempts, jobFailed(st)
			}
		}
	}
}

func jobFailed(st *jobStatus) error {
	msg := st.Message
	if msg == "" {
		msg = st.State
	}
	return &publish.PlatformError{
		Platform: providerName,
		Op:       "video job " + st.JobID,
		Err:      fmt.Errorf("processing failed: %s", msg),
	}
}

// videoJobClient builds a job client against the video service,
// authenticated with a short-lived service token scoped to blob upload.
// Uploads are scoped by the session's DID and the asset name.
func (c *Client) videoJobClient(ctx context.Context, sess *xrpc.Client, name string) (jobClient, error) {
	aud := "did:web:" + c.pdsHost()
	exp := time.Now().Add(serviceAuthTTL).Unix()
	auth, err := atproto.ServerGetServiceAuth(ctx, sess, aud, exp, "com.atproto.repo.uploadBlob")
	if err != nil {
		return nil, &publish.PlatformError{Platform: providerName, Op: "service auth", Err: err}
	}

	return &xrpcJobClient{
		client: &xrpc.Client{
			Client: c.http,
			Host:   c.cfg.VideoHost,
			Auth:   &xrpc.AuthInfo{AccessJwt: auth.Token},
		},
		did:  sess.Auth.Did,
		name: name,
	}, nil
}

// assetName derives the upload's asset name from the media URL path.
func assetName(mediaURL string) string {
	u, err := url.Parse(mediaURL)
	if err != nil || u.Path == "" {
		return "video.mp4"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "video.mp4"
	}
	return name
}

type xrpcJobClient struct {
	client *xrpc.Client
	did    string
	name   string
}

// submit uploads the video scoped by account DID and asset name. The
// generated VideoUploadVideo helper sends no query parameters, and the
// video service rejects unscoped uploads, so the call is made directly.
func (x *xrpcJobClient) submit(ctx context.Context, r io.Reader) (*jobStatus, error) {
	params := map[string]interface{}{
		"did":  x.did,
		"name": x.name,
	}
	var out bsky.VideoUploadVideo_Output
	if err := x.client.LexDo(ctx, lexutil.Procedure, "video/mp4", "app.bsky.video.uploadVideo", params, r, &out); err != nil {
		return nil, &publish.PlatformError{Platform: providerName, Op: "upload video", Err: err}
	}
	if out.JobStatus == nil {
		return nil, &publish.PlatformError{Platform: providerName, Op: "upload video", Err: fmt.Errorf("no job status in response")}
	}
	return fromWire(out.JobStatus), nil
}

func (x *xrpcJobClient) status(ctx context.Context, jobID string) (*jobStatus, error) {
	out, err := bsky.VideoGetJobStatus(ctx, x.client, jobID)
	if err != nil {
		return nil, &publish.PlatformError{Platform: providerName, Op: "get job status", Err: err}
	}
	if out.JobStatus == nil {
		return nil, &publish.PlatformError{Platform: providerName, Op: "get job status", Err: fmt.Errorf("no job status in response")}
	}
	return fromWire(out.JobStatus), nil
}

func fromWire(st *bsky.VideoDefs_JobStatus) *jobStatus {
	js := &jobStatus{
		JobID: st.JobId,
		State: st.State,
		Blob:  st.Blob,
	}
	if st.Message != nil {
		js.Message = *st.Message
	}
	return js
}

func (c *Client) downloadTo(ctx context.Context, mediaURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return fmt.Errorf("build video request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch video %q: %w", mediaURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch video %q: unexpected status %d", mediaURL, resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create video file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("download video %q: %w", mediaURL, err)
	}
	return nil
}
