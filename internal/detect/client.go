package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"time"
)

// Detector runs object detection on a JPEG frame. The confidence
// threshold varies by call site: the live detection loop uses a lower
// threshold than archival recording.
type Detector interface {
	Detect(ctx context.Context, jpegFrame []byte, confThreshold float32) ([]Detection, error)
}

// Client talks to the YOLO detection service over HTTP. Frames are
// uploaded as multipart JPEG; the service replies with JSON detections.
type Client struct {
	endpoint string
	client   *http.Client
	mu       sync.RWMutex
	healthy  bool
}

// ClientConfig holds configuration for the detection service client.
type ClientConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// detectResponse mirrors the detection service's JSON reply.
type detectResponse struct {
	Detections      []Detection `json:"detections"`
	Count           int         `json:"count"`
	InferenceTimeMs float32     `json:"inference_time_ms"`
	Device          string      `json:"device"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewClient creates a new detection service client.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: config.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// IsHealthy returns the result of the last health check.
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// CheckHealth probes the detection service.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.setHealthy(false)
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setHealthy(false)
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		c.setHealthy(false)
		return fmt.Errorf("failed to decode health response: %w", err)
	}

	ok := health.Status == "healthy" && health.ModelLoaded
	c.setHealthy(ok)
	if !ok {
		return fmt.Errorf("service unhealthy: status=%s, model_loaded=%v", health.Status, health.ModelLoaded)
	}
	return nil
}

func (c *Client) setHealthy(ok bool) {
	c.mu.Lock()
	c.healthy = ok
	c.mu.Unlock()
}

// Detect uploads a frame and returns the raw detections above confThreshold.
func (c *Client) Detect(ctx context.Context, jpegFrame []byte, confThreshold float32) ([]Detection, error) {
	url := fmt.Sprintf("%s/detect?conf=%.2f", c.endpoint, confThreshold)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(jpegFrame); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
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

	var result detectResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode detect response: %w", err)
	}
	return result.Detections, nil
}

var _ Detector = (*Client)(nil)
