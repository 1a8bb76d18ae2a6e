package session

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

	"github.com/guideworks/livesync/internal/content"
	"github.com/guideworks/livesync/internal/docstore"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

type Logger interface {
	Printf(format string, args ...any)
}

// Client talks to the livesync HTTP API on behalf of an editing session.
// Transient server errors are retried with capped backoff; a 401 revokes
// the session's unlocked state so the UI drops back to read-only mode.
type Client struct {
	baseURL    string
	pin        string
	httpClient *http.Client
	unlock     *Unlock
	logger     Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewClient(baseURL, pin string, httpClient *http.Client, unlock *Unlock) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if unlock == nil {
		unlock = &Unlock{}
	}
	return &Client{
		baseURL:    baseURL,
		pin:        strings.TrimSpace(pin),
		httpClient: httpClient,
		unlock:     unlock,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

func (c *Client) Unlock() *Unlock {
	return c.unlock
}

// VerifyPIN checks the teacher PIN against the API and grants or revokes
// the session's unlocked state accordingly.
func (c *Client) VerifyPIN(ctx context.Context) error {
	body := map[string]string{"pin": c.pin}
	err := c.doJSON(ctx, http.MethodPost, "/v1/unlock", body, nil)
	if err != nil {
		return err
	}
	c.unlock.Grant()
	return nil
}

func (c *Client) SaveOverride(ctx context.Context, slug, locale string, patch json.RawMessage) error {
	body := map[string]any{
		"pin":    c.pin,
		"slug":   slug,
		"locale": locale,
		"patch":  patch,
	}
	return c.doJSON(ctx, http.MethodPost, "/v1/overrides", body, nil)
}

func (c *Client) GetOverride(ctx context.Context, slug, locale string) (docstore.Row, error) {
	q := url.Values{}
	q.Set("slug", slug)
	q.Set("locale", locale)
	var out docstore.Row
	err := c.doJSON(ctx, http.MethodGet, "/v1/overrides?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) ListOverrides(ctx context.Context, locale string) ([]docstore.Row, error) {
	q := url.Values{}
	q.Set("locale", locale)
	var out struct {
		Rows []docstore.Row `json:"rows"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/v1/overrides?"+q.Encode(), nil, &out)
	return out.Rows, err
}

func (c *Client) SaveLiveDoc(ctx context.Context, slug, locale string, doc content.BaseContent) error {
	body := map[string]any{
		"pin":         c.pin,
		"slug":        slug,
		"locale":      locale,
		"frontmatter": doc.Frontmatter,
		"content":     doc.Content,
	}
	return c.doJSON(ctx, http.MethodPost, "/v1/live-doc", body, nil)
}

func (c *Client) DeleteLiveDoc(ctx context.Context, slug, locale string) error {
	q := url.Values{}
	q.Set("slug", slug)
	q.Set("locale", locale)
	return c.doJSON(ctx, http.MethodDelete, "/v1/live-doc?"+q.Encode(), nil, nil)
}

func (c *Client) GetLiveDoc(ctx context.Context, slug, locale string) (docstore.Row, error) {
	q := url.Values{}
	q.Set("slug", slug)
	q.Set("locale", locale)
	var out docstore.Row
	err := c.doJSON(ctx, http.MethodGet, "/v1/live-doc?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) ListLiveDocs(ctx context.Context, locale string) ([]content.LiveDocumentRow, error) {
	q := url.Values{}
	q.Set("locale", locale)
	var out struct {
		Rows []docstore.Row `json:"rows"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/live-docs?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	rows := make([]content.LiveDocumentRow, 0, len(out.Rows))
	for _, raw := range out.Rows {
		var data content.BaseContent
		if err := json.Unmarshal(raw.Data, &data); err != nil {
			c.logf("skipping undecodable live doc %s/%s: %v", raw.Slug, raw.Locale, err)
			continue
		}
		rows = append(rows, content.LiveDocumentRow{
			Slug:      raw.Slug,
			Locale:    raw.Locale,
			Data:      data,
			UpdatedAt: raw.UpdatedAt,
		})
	}
	return rows, nil
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if c.pin != "" {
			req.Header.Set("X-Teacher-Pin", c.pin)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1)); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		if resp.StatusCode >= 500 && resp.StatusCode <= 599 && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1)); waitErr != nil {
				return waitErr
			}
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized {
			c.unlock.Revoke()
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

func (c *Client) retryDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func (c *Client) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
