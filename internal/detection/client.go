package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client is an HTTP client for the model server
type Client struct {
	mu         sync.RWMutex
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger

	// Stats
	requestCount int64
	errorCount   int64
	totalLatency time.Duration
}

// ClientConfig holds client configuration
type ClientConfig struct {
	Address string
	Timeout time.Duration
}

// NewClient creates a new model server client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("model server address is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	baseURL := cfg.Address
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.Default().With("component", "model_client"),
	}, nil
}

// Load asks the model server to load a model and returns a handle to it.
// It implements Loader.
func (c *Client) Load(ctx context.Context, opts LoadOptions) (Model, error) {
	if opts.Base == "" {
		opts.Base = "mobilenet_v2"
	}

	var result struct {
		Success bool   `json:"success"`
		ModelID string `json:"model_id"`
		Error   string `json:"error"`
	}
	if err := c.post(ctx, "/load", opts, &result); err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("failed to load model: %s", result.Error)
	}

	c.logger.Info("Model loaded", "model_id", result.ModelID, "base", opts.Base)
	return &remoteModel{client: c, id: result.ModelID}, nil
}

// Detect sends a frame to a loaded model
func (c *Client) Detect(ctx context.Context, modelID string, frame *Frame) ([]Prediction, error) {
	c.mu.Lock()
	c.requestCount++
	c.mu.Unlock()

	if frame == nil || len(frame.Data) == 0 {
		c.countError()
		return nil, fmt.Errorf("frame has no image data")
	}

	body := map[string]interface{}{
		"model_id":   modelID,
		"camera_id":  frame.CameraID,
		"image_data": base64.StdEncoding.EncodeToString(frame.Data),
	}

	start := time.Now()

	var result struct {
		Success     bool   `json:"success"`
		Error       string `json:"error"`
		Predictions []struct {
			BBox  []float64 `json:"bbox"`
			Class string    `json:"class"`
			Score float64   `json:"score"`
		} `json:"predictions"`
	}
	err := c.post(ctx, "/detect", body, &result)

	c.mu.Lock()
	c.totalLatency += time.Since(start)
	c.mu.Unlock()

	if err != nil {
		c.countError()
		return nil, fmt.Errorf("detection request failed: %w", err)
	}
	if !result.Success {
		c.countError()
		return nil, fmt.Errorf("detection failed: %s", result.Error)
	}

	predictions := make([]Prediction, 0, len(result.Predictions))
	for _, p := range result.Predictions {
		if len(p.BBox) != 4 {
			c.logger.Debug("Skipping prediction with malformed bbox", "class", p.Class, "len", len(p.BBox))
			continue
		}
		predictions = append(predictions, Prediction{
			BBox:  [4]float64{p.BBox[0], p.BBox[1], p.BBox[2], p.BBox[3]},
			Class: p.Class,
			Score: p.Score,
		})
	}

	return predictions, nil
}

// GetStatus returns the model server status
func (c *Client) GetStatus(ctx context.Context) (*ServerStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ServerStatus{Connected: false}, nil
	}
	defer resp.Body.Close()

	var result ServerStatus
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &ServerStatus{Connected: false}, nil
	}
	result.Connected = true
	return &result, nil
}

// Stats returns client statistics
func (c *Client) Stats() (requests int64, errors int64, avgLatency time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	requests = c.requestCount
	errors = c.errorCount
	if requests > 0 {
		avgLatency = c.totalLatency / time.Duration(requests)
	}
	return
}

func (c *Client) countError() {
	c.mu.Lock()
	c.errorCount++
	c.mu.Unlock()
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

// ServerStatus is the model server status
type ServerStatus struct {
	Connected      bool     `json:"connected"`
	Models         []string `json:"models,omitempty"`
	ProcessedCount int64    `json:"processed_count"`
	ErrorCount     int64    `json:"error_count"`
	Uptime         float64  `json:"uptime"` // seconds
}

// remoteModel is a model loaded on the model server
type remoteModel struct {
	client *Client
	id     string
}

func (m *remoteModel) Detect(ctx context.Context, frame *Frame) ([]Prediction, error) {
	return m.client.Detect(ctx, m.id, frame)
}
