package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Martyparty1988/Martyai/internal/config"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// HTTPSubmitter POSTs each change as JSON to a sync endpoint.
type HTTPSubmitter struct {
	url        string
	healthURL  string
	token      string
	httpClient *http.Client
}

// NewHTTPSubmitter creates an HTTP submitter.
func NewHTTPSubmitter(cfg config.RemoteConfig) (*HTTPSubmitter, error) {
	if cfg.URL == "" {
		return nil, errors.New("remote url is required for the http backend")
	}
	health := cfg.HealthURL
	if health == "" {
		health = cfg.URL
	}
	return &HTTPSubmitter{
		url:       cfg.URL,
		healthURL: health,
		token:     cfg.Token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

func (s *HTTPSubmitter) Submit(ctx context.Context, entry models.QueueEntry) error {
	body, err := encode(entry)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", fmt.Sprintf("%s:%s:%d", key(entry), entry.Action, entry.Timestamp.UnixMilli()))
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote error (status %d): %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// Ping sends a HEAD request to the health URL. Any status below 500 counts
// as reachable.
func (s *HTTPSubmitter) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.healthURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := &http.Client{
		Timeout: 2 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("remote unreachable: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("remote unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

func (s *HTTPSubmitter) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}
