package media

import (
	"fmt"
	"image/gif"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Artifact roles.
const (
	RoleSmall      = "small"
	RoleLarge      = "large"
	RoleGif        = "gif"
	RoleGifPreview = "gif-preview"
	RoleVideo      = "video"
	RoleAudio      = "audio"
)

// Default bounds for the longer edge of derived raster variants.
const (
	DefaultSmallEdge = 800
	DefaultLargeEdge = 2000

	jpegQuality = 80
)

// TransformError reports a resize or frame-extraction failure.
type TransformError struct {
	Role string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Role, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// Asset is one uploaded file during processing.
type Asset struct {
	SourcePath string
	MimeType   string
	BaseName   string
}

// Artifact is one derived file awaiting upload. Pass-through artifacts
// share LocalPath with the source.
type Artifact struct {
	LocalPath   string
	Key         string
	ContentType string
	Role        string
}

// Transformer derives artifacts on local storage. It performs no network
// I/O and is safe for concurrent use.
type Transformer struct {
	SmallEdge int
	LargeEdge int
}

// NewTransformer builds a Transformer with the default edge bounds.
func NewTransformer() *Transformer {
	return &Transformer{SmallEdge: DefaultSmallEdge, LargeEdge: DefaultLargeEdge}
}

// Derive produces the artifacts for one asset according to its class.
// On failure every already-created derived file is removed before the
// error is returned; the source file is left for the caller to reap.
func (t *Transformer) Derive(asset Asset, class Class) ([]Artifact, error) {
	switch class {
	case ClassImage:
		return t.deriveImage(asset)
	case ClassAnimatedImage:
		return t.deriveAnimated(asset)
	case ClassVideo:
		return []Artifact{{
			LocalPath:   asset.SourcePath,
			Key:         asset.BaseName + ".mp4",
			ContentType: "video/mp4",
			Role:        RoleVideo,
		}}, nil
	case ClassAudio:
		return []Artifact{{
			LocalPath:   asset.SourcePath,
			Key:         asset.BaseName + ".mp3",
			ContentType: "audio/mpeg",
			Role:        RoleAudio,
		}}, nil
	default:
		return nil, &ClassificationError{MimeType: asset.MimeType}
	}
}

// deriveImage scales the source down to the small and large bounds,
// preserving aspect ratio and never enlarging. Both variants must succeed.
func (t *Transformer) deriveImage(asset Asset) ([]Artifact, error) {
	src, err := imaging.Open(asset.SourcePath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &TransformError{Role: RoleSmall, Err: fmt.Errorf("decode source: %w", err)}
	}

	dir := filepath.Dir(asset.SourcePath)
	variants := []struct {
		role string
		edge int
	}{
		{RoleSmall, t.SmallEdge},
		{RoleLarge, t.LargeEdge},
	}

	artifacts := make([]Artifact, 0, len(variants))
	for _, v := range variants {
		resized := imaging.Fit(src, v.edge, v.edge, imaging.Lanczos)
		name := fmt.Sprintf("%s-%d.jpg", asset.BaseName, v.edge)
		outPath := filepath.Join(dir, name)

		if err := imaging.Save(resized, outPath, imaging.JPEGQuality(jpegQuality)); err != nil {
			removeArtifacts(artifacts)
			return nil, &TransformError{Role: v.role, Err: err}
		}
		artifacts = append(artifacts, Artifact{
			LocalPath:   outPath,
			Key:         name,
			ContentType: "image/jpeg",
			Role:        v.role,
		})
	}
	return artifacts, nil
}

// deriveAnimated passes the gif through untouched and extracts frame 0 as
// a JPEG preview. gif.Decode reads only the first frame, so the animation
// is never fully decoded.
func (t *Transformer) deriveAnimated(asset Asset) ([]Artifact, error) {
	f, err := os.Open(asset.SourcePath)
	if err != nil {
		return nil, &TransformError{Role: RoleGifPreview, Err: err}
	}
	defer f.Close()

	frame, err := gif.Decode(f)
	if err != nil {
		return nil, &TransformError{Role: RoleGifPreview, Err: fmt.Errorf("decode first frame: %w", err)}
	}

	previewName := asset.BaseName + "-preview.jpg"
	previewPath := filepath.Join(filepath.Dir(asset.SourcePath), previewName)
	if err := imaging.Save(frame, previewPath, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, &TransformError{Role: RoleGifPreview, Err: err}
	}

	return []Artifact{
		{
			LocalPath:   asset.SourcePath,
			Key:         asset.BaseName + ".gif",
			ContentType: "image/gif",
			Role:        RoleGif,
		},
		{
			LocalPath:   previewPath,
			Key:         previewName,
			ContentType: "image/jpeg",
			Role:        RoleGifPreview,
		},
	}, nil
}

func removeArtifacts(artifacts []Artifact) {
	for _, a := range artifacts {
		os.Remove(a.LocalPath)
	}
}
