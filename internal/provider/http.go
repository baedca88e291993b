package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"squadkeeper.io/keeper/internal/domain"
	"squadkeeper.io/keeper/internal/pkg/logger"
)

// HTTPConfig configures HTTPProvider.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	// MaxRetries bounds retries of idempotent calls (list, delete).
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPProvider talks to the provisioning REST API.
//
//	POST   /squads                       create
//	DELETE /squads/{id}                  delete (404 is success)
//	GET    /squads                       list
//	PATCH  /phone-numbers/{binding_id}   re-point routing
//
// Create and routing calls are never retried: a retried create could leave
// a second live resource behind.
type HTTPProvider struct {
	cfg    HTTPConfig
	base   *url.URL
	client *http.Client
}

var _ ResourceProvider = (*HTTPProvider)(nil)

// StatusError is a non-2xx response from the provisioning API.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// retryable reports whether the status is worth another attempt.
func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewHTTPProvider creates an HTTPProvider. client may be nil.
func NewHTTPProvider(cfg HTTPConfig, client *http.Client) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("provider base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse provider base URL: %w", err)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProvider{cfg: cfg, base: base, client: client}, nil
}

func (p *HTTPProvider) Name() string { return "http" }

type squadResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (s squadResponse) toDomain() domain.Resource {
	return domain.Resource{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt}
}

// CreateResource provisions a new squad. Not retried.
func (p *HTTPProvider) CreateResource(ctx context.Context, payload *domain.ProvisionPayload) (*domain.Resource, error) {
	var out squadResponse
	if err := p.do(ctx, http.MethodPost, "/squads", payload, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("POST /squads: response has no id")
	}
	res := out.toDomain()
	return &res, nil
}

// DeleteResource removes a squad. A 404 maps to ErrResourceNotFound.
func (p *HTTPProvider) DeleteResource(ctx context.Context, resourceID string) error {
	path := "/squads/" + url.PathEscape(resourceID)
	return p.retry(ctx, "delete", func() error {
		return p.do(ctx, http.MethodDelete, path, nil, nil)
	})
}

// ListResources returns every squad visible to the API key.
func (p *HTTPProvider) ListResources(ctx context.Context) ([]domain.Resource, error) {
	var out []squadResponse
	err := p.retry(ctx, "list", func() error {
		out = nil
		return p.do(ctx, http.MethodGet, "/squads", nil, &out)
	})
	if err != nil {
		return nil, err
	}
	resources := make([]domain.Resource, 0, len(out))
	for _, s := range out {
		resources = append(resources, s.toDomain())
	}
	return resources, nil
}

// UpdateRouting re-points a phone number binding. Not retried.
func (p *HTTPProvider) UpdateRouting(ctx context.Context, bindingID, resourceID string) error {
	body := map[string]string{"squad_id": resourceID}
	return p.do(ctx, http.MethodPatch, "/phone-numbers/"+url.PathEscape(bindingID), body, nil)
}

// retry runs op with exponential backoff until it succeeds, returns a
// non-retryable error, or exhausts MaxRetries.
func (p *HTTPProvider) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialInterval
	b.MaxInterval = p.cfg.MaxInterval
	b.Reset()

	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !isRetryable(err) || attempt >= p.cfg.MaxRetries {
			return err
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return err
		}
		logger.Debug("retrying provider call",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrResourceNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.retryable()
	}
	// Transport errors (connection refused, reset) are worth retrying.
	return true
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if method == http.MethodDelete && resp.StatusCode == http.StatusNotFound {
		return ErrResourceNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
