package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/your-org/mediapost/internal/ledger"
	"github.com/your-org/mediapost/internal/media"
	"github.com/your-org/mediapost/pkg/blobstore"
	"github.com/your-org/mediapost/pkg/metrics"
)

// BlobStore is the slice of the blob store client the ingest path needs.
type BlobStore interface {
	Store(ctx context.Context, localPath, key, contentType string) (string, error)
	List(ctx context.Context, continuationToken string) (*blobstore.Page, error)
}

// Ledger records artifact metadata with two-phase writes.
type Ledger interface {
	Begin(ctx context.Context, key, contentType string) (uuid.UUID, error)
	Commit(ctx context.Context, id uuid.UUID) error
	Recent(ctx context.Context, limit int) ([]ledger.Record, error)
}

// EventSink receives ingest lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, key, value []byte, eventType string) error
}

// NopSink discards events; used when the event stream is disabled.
type NopSink struct{}

func (NopSink) Publish(context.Context, []byte, []byte, string) error { return nil }

// Service drives classify → transform → store → record for one upload.
type Service struct {
	store       BlobStore
	ledger      Ledger
	events      EventSink
	transformer *media.Transformer
	metrics     *metrics.Metrics
	logger      *zap.Logger
	workDir     string
}

type Params struct {
	Store       BlobStore
	Ledger      Ledger
	Events      EventSink
	Transformer *media.Transformer
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	WorkDir     string
}

// NewService constructs an ingest Service.
func NewService(p Params) *Service {
	if p.Transformer == nil {
		p.Transformer = media.NewTransformer()
	}
	return &Service{
		store:       p.Store,
		ledger:      p.Ledger,
		events:      p.Events,
		transformer: p.Transformer,
		metrics:     p.Metrics,
		logger:      p.Logger,
		workDir:     p.WorkDir,
	}
}

// Result reports the stored artifacts of one upload, keyed by role.
type Result struct {
	Class     media.Class
	Locations map[string]string
	Checksum  string
	SizeBytes int64
}

// Process ingests one uploaded file. The file is spooled to a per-request
// temp directory which is removed on every exit path; derived artifacts
// never outlive the request locally.
func (s *Service) Process(ctx context.Context, file io.Reader, filename, contentType string) (result *Result, err error) {
	tracer := otel.Tracer("mediapost/ingest")
	ctx, span := tracer.Start(ctx, "ingest.process")
	defer span.End()

	class, cerr := media.Classify(contentType, filepath.Ext(filename))
	if cerr != nil {
		s.observe("unsupported", "rejected")
		return nil, cerr
	}
	span.SetAttributes(attribute.String("media.class", class.String()))

	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
		}
		s.observe(class.String(), outcome)
	}()

	dir, err := os.MkdirTemp(s.workDir, "ingest-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	baseName := deriveBaseName()
	sourcePath := filepath.Join(dir, baseName+strings.ToLower(filepath.Ext(filename)))

	checksum, size, err := spool(file, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}

	asset := media.Asset{SourcePath: sourcePath, MimeType: contentType, BaseName: baseName}
	artifacts, err := s.transformer.Derive(asset, class)
	if err != nil {
		return nil, err
	}

	stored := make([]StoredArtifact, 0, len(artifacts))
	locations := make(map[string]string, len(artifacts))
	for _, a := range artifacts {
		url, err := s.storeArtifact(ctx, a)
		if err != nil {
			return nil, err
		}
		locations[a.Role] = url
		stored = append(stored, StoredArtifact{
			Key:         a.Key,
			ContentType: a.ContentType,
			Role:        a.Role,
			URL:         url,
		})
	}

	s.emit(ctx, MediaIngestedEvent{
		ID:        uuid.NewString(),
		Class:     class.String(),
		Checksum:  checksum,
		SizeBytes: size,
		Artifacts: stored,
		CreatedAt: time.Now().UTC(),
	})

	s.logger.Info("media ingested",
		zap.String("class", class.String()),
		zap.Int("artifacts", len(stored)),
		zap.Int64("size_bytes", size),
	)

	return &Result{
		Class:     class,
		Locations: locations,
		Checksum:  checksum,
		SizeBytes: size,
	}, nil
}

// storeArtifact runs the two-phase write: pending ledger record, blob
// store put, then commit. The gif preview is derivable from the gif key
// by naming convention and gets no ledger record of its own.
func (s *Service) storeArtifact(ctx context.Context, a media.Artifact) (string, error) {
	recorded := a.Role != media.RoleGifPreview

	var recordID uuid.UUID
	if recorded {
		var err error
		recordID, err = s.ledger.Begin(ctx, a.Key, a.ContentType)
		if err != nil {
			return "", err
		}
	}

	url, err := s.store.Store(ctx, a.LocalPath, a.Key, a.ContentType)
	if err != nil {
		return "", err
	}

	if recorded {
		if err := s.ledger.Commit(ctx, recordID); err != nil {
			// The remote object exists without a committed record;
			// the reconciliation sweep will reap the pending row.
			return "", err
		}
	}
	return url, nil
}

// ListObjects returns one recency-ordered page of stored objects.
func (s *Service) ListObjects(ctx context.Context, continuationToken string) (*blobstore.Page, error) {
	return s.store.List(ctx, continuationToken)
}

// RecentUploads returns the newest committed ledger records.
func (s *Service) RecentUploads(ctx context.Context, limit int) ([]ledger.Record, error) {
	return s.ledger.Recent(ctx, limit)
}

func (s *Service) emit(ctx context.Context, event MediaIngestedEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal ingest event", zap.Error(err))
		return
	}
	if err := s.events.Publish(ctx, []byte(event.ID), payload, "media.ingested"); err != nil {
		// Event delivery is advisory; the artifacts are already durable.
		s.logger.Warn("publish ingest event", zap.Error(err))
	}
}

func (s *Service) observe(class, outcome string) {
	if s.metrics != nil {
		s.metrics.IngestsTotal.WithLabelValues(class, outcome).Inc()
	}
}

// deriveBaseName yields a collision-resistant storage name, prefixed with
// the unix timestamp so raw bucket listings stay roughly chronological.
func deriveBaseName() string {
	return fmt.Sprintf("%d-%s", time.Now().UTC().Unix(), uuid.NewString())
}

func spool(r io.Reader, path string) (checksum string, size int64, err error) {
	out, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	defer out.Close()

	hasher := sha256.New()
	size, err = io.Copy(out, io.TeeReader(r, hasher))
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}
