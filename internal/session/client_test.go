package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guideworks/livesync/internal/content"
)

func testDoc() content.BaseContent {
	return content.BaseContent{
		Frontmatter: content.Attributes{Slug: "squat", Title: "Squat"},
		Content:     "body",
	}
}

func newTestClient(serverURL string) *Client {
	c := NewClient(serverURL, "1234", nil, nil)
	c.maxRetries = 2
	c.baseDelay = time.Millisecond
	c.maxDelay = 4 * time.Millisecond
	return c
}

func TestSaveOverrideSendsPinAndBody(t *testing.T) {
	var gotPin string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPin = r.Header.Get("X-Teacher-Pin")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	err := c.SaveOverride(context.Background(), "squat", "en", json.RawMessage(`{"frontmatter":{"title":"X"}}`))
	if err != nil {
		t.Fatalf("save override failed: %v", err)
	}
	if gotPin != "1234" {
		t.Fatalf("pin header = %q", gotPin)
	}
	if gotBody["slug"] != "squat" || gotBody["locale"] != "en" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestTransientServerErrorsAreRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if err := c.DeleteLiveDoc(context.Background(), "squat", "en"); err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestUnauthorizedRevokesUnlockWithoutRetrying(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "bad_pin", "message": "wrong pin"})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	c.unlock.Grant()

	err := c.SaveLiveDoc(context.Background(), "squat", "en", testDoc())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != "bad_pin" {
		t.Fatalf("err = %v, want bad_pin detail", err)
	}
	if c.Unlock().Unlocked() {
		t.Fatalf("401 did not revoke the unlock")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("401 should not be retried, calls = %d", got)
	}
}

func TestVerifyPINGrantsUnlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["pin"] != "1234" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if err := c.VerifyPIN(context.Background()); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !c.Unlock().Unlocked() {
		t.Fatalf("verify did not grant the unlock")
	}
}

func TestListLiveDocsSkipsUndecodableRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("locale") != "en" {
			t.Errorf("locale = %q", r.URL.Query().Get("locale"))
		}
		_, _ = w.Write([]byte(`{"rows":[
			{"slug":"squat","locale":"en","data":{"frontmatter":{"slug":"squat","title":"Squat"},"content":"body"}},
			{"slug":"broken","locale":"en","data":"not an object"}
		]}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	rows, err := c.ListLiveDocs(context.Background(), "en")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Slug != "squat" || rows[0].Data.Frontmatter.Title != "Squat" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestContextCancelAbortsRetryWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	c.baseDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.DeleteLiveDoc(ctx, "squat", "en")
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancel did not abort the retry wait")
	}
}
