package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"userservice/internal/domain/services"
)

// profilePictureExpiresIn is one week counted in seconds. The content service
// receives it unchanged in its expires_in_ms field.
const profilePictureExpiresIn = 60 * 60 * 24 * 7

// ContentClient asks the content service for signed profile picture URLs.
type ContentClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ services.ContentService = (*ContentClient)(nil)

// NewContentClient creates a content service client.
func NewContentClient(baseURL string, logger *slog.Logger) *ContentClient {
	return &ContentClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type signingRequest struct {
	Action      string `json:"action"`
	ExpiresInMs int64  `json:"expires_in_ms"`
}

type signingResponse struct {
	URL string `json:"url"`
}

// ProfilePictureURL requests a signed PUT URL for the user's profile picture.
// The URL comes from the "url" field of a JSON response; otherwise the final
// request URL is returned.
func (c *ContentClient) ProfilePictureURL(ctx context.Context, sub string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("content service URL not configured")
	}

	payload, err := json.Marshal(signingRequest{
		Action:      "Put",
		ExpiresInMs: profilePictureExpiresIn,
	})
	if err != nil {
		return "", fmt.Errorf("marshal signing request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/profile_picture/%s", c.baseURL, url.PathEscape(sub))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create signing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request profile picture url: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read signing response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("content service request failed", "status", resp.StatusCode, "sub", sub)
		return "", fmt.Errorf("content service failed with status %d: %s", resp.StatusCode, string(body))
	}

	var signed signingResponse
	if err := json.Unmarshal(body, &signed); err == nil && signed.URL != "" {
		return signed.URL, nil
	}
	return resp.Request.URL.String(), nil
}
