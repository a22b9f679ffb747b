package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// evenScaleFilter rounds both dimensions down to the nearest even value,
// which baseline H.264 playback requires.
const evenScaleFilter = "scale=trunc(iw/2)*2:trunc(ih/2)*2"

// Transcoder re-encodes video into a baseline-compatible MP4 by shelling
// out to ffmpeg.
type Transcoder struct {
	FFmpegPath string
	Timeout    time.Duration
}

// NewTranscoder constructs a Transcoder for the given ffmpeg binary.
func NewTranscoder(ffmpegPath string, timeout time.Duration) *Transcoder {
	return &Transcoder{FFmpegPath: ffmpegPath, Timeout: timeout}
}

// Transcode converts inputPath into an MP4 at outputPath with even pixel
// dimensions, normalized pixel format, and a faststart layout so playback
// can begin before the file fully downloads. Runs to completion before
// returning; failure is terminal for the calling publish operation.
func (t *Transcoder) Transcode(ctx context.Context, inputPath, outputPath string) error {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.FFmpegPath, transcodeArgs(inputPath, outputPath)...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return &TransformError{Role: RoleVideo, Err: fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.Bytes()))}
	}
	return nil
}

func transcodeArgs(inputPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-vf", evenScaleFilter,
		"-pix_fmt", "yuv420p",
		"-movflags", "faststart",
		outputPath,
	}
}

// EvenDimensions rounds width and height down to even values, mirroring
// the scale filter applied by Transcode.
func EvenDimensions(width, height int) (int, int) {
	return width - width%2, height - height%2
}

func lastLine(out []byte) string {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}
