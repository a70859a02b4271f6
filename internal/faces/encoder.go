package faces

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os/exec"
	"sync"
	"time"
)

// Encoder turns a JPEG face crop into one embedding vector per face
// found in the image. An empty result means no face was detected.
type Encoder interface {
	Encode(jpegImage []byte) ([][]float32, error)
	Close() error
}

// workerRequest is the frame sent to the encoder subprocess.
type workerRequest struct {
	Image []byte `json:"image"`
}

// workerResponse is the frame read back from the subprocess.
type workerResponse struct {
	Encodings [][]float32 `json:"encodings"`
	Error     string      `json:"error,omitempty"`
}

// WorkerEncoder runs the face embedding model in a separate OS process
// and speaks a length-prefixed JSON protocol over its stdin/stdout.
// Keeping the model out of this process means a crash in native
// inference code cannot take the server down.
type WorkerEncoder struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

// StartWorker launches the encoder subprocess.
func StartWorker(command string, args ...string) (*WorkerEncoder, error) {
	cmd := exec.Command(command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start face worker: %w", err)
	}
	return &WorkerEncoder{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}, nil
}

// Encode sends one image to the worker and waits for its reply.
// The protocol is strictly request/response, so calls are serialized.
func (w *WorkerEncoder) Encode(jpegImage []byte) ([][]float32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	payload, err := json.Marshal(workerRequest{Image: jpegImage})
	if err != nil {
		return nil, fmt.Errorf("failed to encode worker request: %w", err)
	}

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	if _, err := w.stdin.Write(length[:]); err != nil {
		return nil, fmt.Errorf("worker write failed: %w", err)
	}
	if _, err := w.stdin.Write(payload); err != nil {
		return nil, fmt.Errorf("worker write failed: %w", err)
	}

	if _, err := io.ReadFull(w.stdout, length[:]); err != nil {
		return nil, fmt.Errorf("worker read failed: %w", err)
	}
	n := binary.BigEndian.Uint32(length[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(w.stdout, body); err != nil {
		return nil, fmt.Errorf("worker read failed: %w", err)
	}

	var resp workerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode worker response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("worker error: %s", resp.Error)
	}
	return resp.Encodings, nil
}

// Close terminates the subprocess.
func (w *WorkerEncoder) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stdin.Close()
	if w.cmd.Process != nil {
		w.cmd.Process.Kill()
	}
	return w.cmd.Wait()
}

// HTTPEncoder talks to a face embedding service over HTTP, posting the
// crop as a multipart form. Used when the model runs as a standalone
// service rather than a child process.
type HTTPEncoder struct {
	endpoint string
	client   *http.Client
}

// NewHTTPEncoder creates an encoder client for the given service URL.
func NewHTTPEncoder(endpoint string) *HTTPEncoder {
	return &HTTPEncoder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Encode posts the image to the /encode endpoint.
func (e *HTTPEncoder) Encode(jpegImage []byte) ([][]float32, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="face.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(jpegImage); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequest("POST", fmt.Sprintf("%s/encode", e.endpoint), &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result workerResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode encode response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("encode error: %s", result.Error)
	}
	return result.Encodings, nil
}

// Close is a no-op for the HTTP encoder.
func (e *HTTPEncoder) Close() error { return nil }
