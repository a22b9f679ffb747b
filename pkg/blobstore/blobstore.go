package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound reports a fetch for a key that does not exist.
var ErrNotFound = errors.New("object not found")

// StorageError wraps a blob store failure with the operation and key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("blobstore %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Config contains the information required to talk to the object store.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// PublicHosts are the URL prefixes under which stored objects are
	// publicly reachable. The first entry is used to build locators;
	// all entries are recognized by ResolveKey.
	PublicHosts []string
	PageSize    int
}

// ObjectEntry describes one stored object in a listing page.
type ObjectEntry struct {
	Key          string    `json:"Key"`
	Size         int64     `json:"Size"`
	LastModified time.Time `json:"LastModified"`
	ETag         string    `json:"ETag"`
}

// Page is one page of a bucket listing, newest first.
type Page struct {
	Contents              []ObjectEntry `json:"Contents"`
	NextContinuationToken string        `json:"NextContinuationToken,omitempty"`
}

// Client is the narrow byte-transport boundary to durable object storage.
type Client interface {
	Store(ctx context.Context, localPath, key, contentType string) (string, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, continuationToken string) (*Page, error)
	ResolveKey(locator string) string
}

type minioClient struct {
	core        *minio.Core
	bucket      string
	publicHosts []string
	pageSize    int
}

// New creates a blob store client backed by an S3-compatible endpoint.
func New(cfg Config) (Client, error) {
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}

	hosts := make([]string, 0, len(cfg.PublicHosts))
	for _, h := range cfg.PublicHosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.HasSuffix(h, "/") {
			h += "/"
		}
		hosts = append(hosts, h)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return &minioClient{
		core:        core,
		bucket:      cfg.Bucket,
		publicHosts: hosts,
		pageSize:    pageSize,
	}, nil
}

// Store uploads a local file under key, overwriting any previous object
// with the same key, and returns the object's public locator.
func (m *minioClient) Store(ctx context.Context, localPath, key, contentType string) (string, error) {
	_, err := m.core.Client.FPutObject(ctx, m.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", &StorageError{Op: "put", Key: key, Err: err}
	}
	return m.locator(key), nil
}

// Fetch reads a stored object fully into memory.
func (m *minioClient) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.core.Client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, &StorageError{Op: "get", Key: key, Err: err}
	}
	defer obj.Close()

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, obj); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, &StorageError{Op: "get", Key: key, Err: ErrNotFound}
		}
		return nil, &StorageError{Op: "get", Key: key, Err: err}
	}
	return buf.Bytes(), nil
}

// List returns one page of bucket contents ordered by recency.
func (m *minioClient) List(ctx context.Context, continuationToken string) (*Page, error) {
	res, err := m.core.ListObjectsV2(m.bucket, "", "", continuationToken, "", m.pageSize)
	if err != nil {
		return nil, &StorageError{Op: "list", Key: continuationToken, Err: err}
	}

	entries := make([]ObjectEntry, 0, len(res.Contents))
	for _, obj := range res.Contents {
		entries = append(entries, ObjectEntry{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ETag:         obj.ETag,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastModified.After(entries[j].LastModified)
	})

	return &Page{
		Contents:              entries,
		NextContinuationToken: res.NextContinuationToken,
	}, nil
}

// ResolveKey strips any known public host prefix from a locator, yielding
// the storage key. An unrecognized locator passes through unchanged.
func (m *minioClient) ResolveKey(locator string) string {
	return StripHosts(locator, m.publicHosts)
}

// StripHosts removes the first matching host prefix from locator.
func StripHosts(locator string, hosts []string) string {
	for _, h := range hosts {
		if strings.HasPrefix(locator, h) {
			return strings.TrimPrefix(locator, h)
		}
	}
	return locator
}

func (m *minioClient) locator(key string) string {
	if len(m.publicHosts) > 0 {
		return m.publicHosts[0] + key
	}
	return fmt.Sprintf("%s/%s/%s", m.core.Client.EndpointURL().String(), m.bucket, key)
}
