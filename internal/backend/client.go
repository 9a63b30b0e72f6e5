// Package backend is the REST client for the attendance API.
//
// Every request carries the bearer token from the session. Failures are
// returned as *APIError with a short title and text ready for a dialog; a 401
// outside of login also clears the session and matches ErrSessionExpired.
package backend

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

	"github.com/rs/zerolog/log"
)

const (
	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 15 * time.Second

	loginPath = "/auth/login"
)

// Session provides the bearer token and is cleared when it expires.
type Session interface {
	Token() string
	Clear() error
}

// Client calls the attendance API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	session    Session
}

// NewClient creates a client for the API at baseURL (e.g. https://host/api).
func NewClient(baseURL string, session Session) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		session:    session,
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil and the body is not empty.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	startTime := time.Now()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	log.Debug().Str("method", method).Str("path", path).Msg("API request")
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != nil {
		if token := c.session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("API response")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classify(0, nil, err)
	}
	defer resp.Body.Close()

	log.Debug().Int("statusCode", resp.StatusCode).Dur("duration", duration).Msg("API response")

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := classify(resp.StatusCode, data, nil)
		if resp.StatusCode == http.StatusUnauthorized && path != loginPath {
			c.expire()
			return fmt.Errorf("%w: %w", ErrSessionExpired, apiErr)
		}
		log.Warn().
			Int("statusCode", resp.StatusCode).
			Str("path", path).
			Str("body", truncate(string(data), 200)).
			Msg("API error")
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(data), 200))
	}
	return nil
}

// expire clears the stored session after the backend rejected the token.
func (c *Client) expire() {
	log.Warn().Msg("Session expired, clearing stored token")
	if c.session == nil {
		return
	}
	if err := c.session.Clear(); err != nil {
		log.Error().Err(err).Msg("Failed to clear expired session")
	}
}

// truncate returns s truncated to n bytes with an ellipsis if needed.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsSessionExpired reports whether err came from a rejected token.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
