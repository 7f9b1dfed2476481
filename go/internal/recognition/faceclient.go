package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mcdev12/facescan/go/internal/models"
)

// FaceClient calls an external face recognition service. With Skip set it
// answers like a service that always finds the first candidate.
type FaceClient struct {
	BaseURL   string
	HTTP      *http.Client
	Threshold float64
	Skip      bool
}

// NewFaceClient creates a client with configurable timeout
func NewFaceClient(baseURL string, threshold float64, skip bool) *FaceClient {
	return &FaceClient{
		BaseURL:   baseURL,
		Threshold: threshold,
		Skip:      skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // Face processing can take time
		},
	}
}

type searchCandidate struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Template string `json:"template"`
}

type searchMatch struct {
	UserID     string  `json:"user_id"`
	Similarity float64 `json:"similarity"`
}

// Detect asks the service how many faces the image holds
func (c *FaceClient) Detect(ctx context.Context, image string) (bool, error) {
	if c.Skip {
		return true, nil
	}
	if image == "" {
		return false, fmt.Errorf("image required")
	}

	var out struct {
		FacesDetected int `json:"faces_detected"`
	}
	if err := c.post(ctx, "/detect", map[string]string{"image": image}, &out); err != nil {
		return false, err
	}
	return out.FacesDetected > 0, nil
}

// Recognize performs 1:N identification against candidates
func (c *FaceClient) Recognize(ctx context.Context, image string, candidates []models.Employee) (*models.Employee, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if c.Skip {
		match := candidates[0].Clone()
		return &match, nil
	}

	gallery := make([]searchCandidate, 0, len(candidates))
	for _, e := range candidates {
		gallery = append(gallery, searchCandidate{UserID: e.ID, Name: e.Name, Template: e.FaceData})
	}

	payload := map[string]interface{}{
		"image":      image,
		"candidates": gallery,
		"top_k":      1,
	}
	if c.Threshold > 0 {
		payload["threshold"] = c.Threshold
	}

	var out struct {
		Matches []searchMatch `json:"matches"`
	}
	if err := c.post(ctx, "/search", payload, &out); err != nil {
		return nil, err
	}
	if len(out.Matches) == 0 {
		return nil, nil
	}

	for _, e := range candidates {
		if e.ID == out.Matches[0].UserID {
			match := e.Clone()
			return &match, nil
		}
	}
	return nil, fmt.Errorf("face service matched unknown user %q", out.Matches[0].UserID)
}

// Health checks if the face service is available
func (c *FaceClient) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *FaceClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
