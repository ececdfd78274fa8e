// Package captcha contains CaptchaSolver implementations.
package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config holds the OCR service connection settings.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// HTTPSolver calls an external OCR service to read captcha images. The
// answer is best-effort; wrong answers are the caller's retry problem.
type HTTPSolver struct {
	client   *resty.Client
	endpoint string
}

// NewHTTPSolver builds a solver for the configured OCR endpoint.
func NewHTTPSolver(cfg Config) (*HTTPSolver, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("captcha endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	return &HTTPSolver{client: client, endpoint: cfg.Endpoint}, nil
}

type solveRequest struct {
	Image string `json:"image"`
}

type solveResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Solve posts the image and returns the service's best-guess text.
func (s *HTTPSolver) Solve(ctx context.Context, image []byte) (string, error) {
	var out solveResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(solveRequest{Image: base64.StdEncoding.EncodeToString(image)}).
		SetResult(&out).
		Post(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("ocr service returned status %d", resp.StatusCode())
	}
	if out.Error != "" {
		return "", fmt.Errorf("ocr service error: %s", out.Error)
	}
	return strings.TrimSpace(out.Text), nil
}

// Static always answers with a fixed text. Useful for development against
// portals with the captcha disabled.
type Static struct {
	Text string
}

// Solve returns the configured text.
func (s *Static) Solve(context.Context, []byte) (string, error) {
	return s.Text, nil
}
