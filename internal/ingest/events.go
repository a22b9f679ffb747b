package ingest

import "time"

// StoredArtifact describes one durably stored derived artifact.
type StoredArtifact struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Role        string `json:"role"`
	URL         string `json:"url"`
}

// MediaIngestedEvent is emitted after every artifact of an upload is
// stored and recorded.
type MediaIngestedEvent struct {
	ID        string           `json:"id"`
	Class     string           `json:"class"`
	Checksum  string           `json:"checksum"`
	SizeBytes int64            `json:"size_bytes"`
	Artifacts []StoredArtifact `json:"artifacts"`
	CreatedAt time.Time        `json:"created_at"`
}
