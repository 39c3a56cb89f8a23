package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"stresscam/internal/emotion"
	"stresscam/internal/metrics"
	"stresscam/internal/pipeline"
)

// MaxResponseBytes bounds a classifier response body
const MaxResponseBytes = 4 << 20

// ErrResponseTooLarge is returned when a response exceeds MaxResponseBytes
var ErrResponseTooLarge = errors.New("classifier response too large")

// HTTPClassifier calls an emotion analysis service over HTTP
type HTTPClassifier struct {
	endpoint    string
	client      *http.Client
	jpegQuality int
	mu          sync.RWMutex
	healthy     bool
	lastHealth  time.Time
}

// NewHTTPClassifier creates a new HTTP classifier client
func NewHTTPClassifier(cfg Config) *HTTPClassifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClassifier{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		jpegQuality: cfg.JPEGQuality,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClassifier) Name() string {
	return TransportHTTP
}

// IsHealthy returns the result of the last health check
func (c *HTTPClassifier) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

func (c *HTTPClassifier) setHealthy(healthy bool) {
	c.mu.Lock()
	c.healthy = healthy
	c.lastHealth = time.Now()
	c.mu.Unlock()
}

// CheckHealth checks if the classifier service is available
func (c *HTTPClassifier) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
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

	var health HealthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxResponseBytes)).Decode(&health); err != nil {
		c.setHealthy(false)
		return fmt.Errorf("failed to decode health response: %w", err)
	}

	c.setHealthy(health.ok())
	if !health.ok() {
		return fmt.Errorf("service unhealthy: status=%s, model_loaded=%v", health.Status, health.ModelLoaded)
	}
	return nil
}

// Classify sends the frame to the analysis endpoint
func (c *HTTPClassifier) Classify(ctx context.Context, frame *pipeline.FrameData) (detections []emotion.Detection, err error) {
	done := metrics.ObserveClassifier(TransportHTTP)
	defer func() { done(err) }()

	imageData, err := EncodeJPEG(frame.Image, c.jpegQuality)
	if err != nil {
		return nil, err
	}
	return c.ClassifyJPEG(ctx, imageData)
}

// ClassifyJPEG analyses an already-encoded image
func (c *HTTPClassifier) ClassifyJPEG(ctx context.Context, imageData []byte) ([]emotion.Detection, error) {
	body, err := c.sendImageRequest(ctx, c.endpoint+"/analyze", imageData)
	if err != nil {
		return nil, err
	}

	var result AnalyzeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode analyze response: %w", err)
	}
	return result.Detections(), nil
}

// sendImageRequest posts an image as multipart form data
func (c *HTTPClassifier) sendImageRequest(ctx context.Context, url string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
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

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxResponseBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, MaxResponseBytes)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

var _ pipeline.Classifier = (*HTTPClassifier)(nil)
var _ pipeline.HealthChecker = (*HTTPClassifier)(nil)
