package recorder

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
)

// ClipWriter consumes JPEG frames and produces one clip file.
type ClipWriter interface {
	// WriteFrame appends one frame. The first call fixes the clip size.
	WriteFrame(jpegFrame []byte) error

	// Close finalizes the clip. Must be called exactly once.
	Close() error
}

// WriterFactory opens a clip writer for the given output path.
type WriterFactory func(path string, fps float64) (ClipWriter, error)

// ffmpegWriter pipes JPEG frames into an ffmpeg process that encodes an
// mp4. If ffmpeg is unavailable the open fails and the recording session
// aborts like any other write-open failure.
type ffmpegWriter struct {
	path  string
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFmpegWriter returns a WriterFactory backed by the ffmpeg binary.
func NewFFmpegWriter() WriterFactory {
	return func(path string, fps float64) (ClipWriter, error) {
		cmd := exec.Command("ffmpeg",
			"-y",
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%.1f", fps),
			"-i", "-",
			"-an",
			"-vcodec", "libx264",
			"-pix_fmt", "yuv420p",
			path,
		)
		cmd.Stderr = nil

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create ffmpeg stdin pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
		}
		return &ffmpegWriter{path: path, cmd: cmd, stdin: stdin}, nil
	}
}

func (w *ffmpegWriter) WriteFrame(jpegFrame []byte) error {
	if _, err := w.stdin.Write(jpegFrame); err != nil {
		return fmt.Errorf("failed to write frame to ffmpeg: %w", err)
	}
	return nil
}

func (w *ffmpegWriter) Close() error {
	w.stdin.Close()
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg exited with error: %w", err)
	}
	return nil
}

// discardClip removes a partial output file, logging on failure.
func discardClip(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[Recorder] Failed to remove partial clip %s: %v", path, err)
	}
}
