package media

import (
	"fmt"
	"strings"
)

// Class is the transform strategy selected for an upload.
type Class int

const (
	ClassUnsupported Class = iota
	ClassImage
	ClassAnimatedImage
	ClassVideo
	ClassAudio
)

func (c Class) String() string {
	switch c {
	case ClassImage:
		return "image"
	case ClassAnimatedImage:
		return "animated_image"
	case ClassVideo:
		return "video"
	case ClassAudio:
		return "audio"
	default:
		return "unsupported"
	}
}

// ClassificationError reports an upload no transform strategy exists for.
type ClassificationError struct {
	MimeType  string
	Extension string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("unsupported media type %q (extension %q)", e.MimeType, e.Extension)
}

// Classify selects a media class from the declared MIME type and file
// extension. The .gif extension wins over the image/ prefix so animated
// images keep their animation.
func Classify(mimeType, extension string) (Class, error) {
	ext := strings.ToLower(extension)
	mime := strings.ToLower(strings.TrimSpace(mimeType))

	switch {
	case ext == ".gif":
		return ClassAnimatedImage, nil
	case strings.HasPrefix(mime, "image/"):
		return ClassImage, nil
	case strings.HasPrefix(mime, "video/"):
		return ClassVideo, nil
	case strings.HasPrefix(mime, "audio/"):
		return ClassAudio, nil
	default:
		return ClassUnsupported, &ClassificationError{MimeType: mimeType, Extension: extension}
	}
}
