package forwarder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"meetingrelay/internal/domain"
)

func TestSendSuccess(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	out := New(srv.URL).Send(context.Background(),
		domain.CleanedTask{Text: "Send invoice", Owner: "Bob"},
		domain.MeetingContext{Name: "Weekly"})

	assert.True(t, out.Success)
	assert.Equal(t, `{"status":"queued"}`, out.Detail)
	assert.Equal(t, map[string]any{"task": "Send invoice", "owner": "Bob", "meeting_name": "Weekly"}, got)
}

func TestSendNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	out := New(srv.URL).Send(context.Background(), domain.CleanedTask{Text: "X", Owner: "Y"}, domain.MeetingContext{})
	assert.False(t, out.Success)
	assert.Equal(t, "HTTP 502 error: upstream down", out.Detail)
}

func TestSendSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	out := New(srv.URL).Send(context.Background(), domain.CleanedTask{Text: "X", Owner: "Y"}, domain.MeetingContext{})
	assert.False(t, out.Success)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendNotConfigured(t *testing.T) {
	out := New("").Send(context.Background(), domain.CleanedTask{Text: "X", Owner: "Y"}, domain.MeetingContext{})
	assert.False(t, out.Success)
	assert.Equal(t, ErrNotConfigured.Error(), out.Detail)
}

func TestSendTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	out := New(url).Send(context.Background(), domain.CleanedTask{Text: "X", Owner: "Y"}, domain.MeetingContext{})
	assert.False(t, out.Success)
	assert.Contains(t, out.Detail, "HTTP request failed")
}

func TestNewUsesFixedTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, New("http://example.invalid").client.GetClient().Timeout)
}

func TestSendTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	out := newWithTimeout(srv.URL, 50*time.Millisecond).Send(context.Background(),
		domain.CleanedTask{Text: "X", Owner: "Y"}, domain.MeetingContext{})
	assert.False(t, out.Success)
	assert.Contains(t, out.Detail, "HTTP request failed")
	assert.Less(t, time.Since(start), 5*time.Second)
}
