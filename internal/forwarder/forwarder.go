// Package forwarder delivers cleaned tasks to the downstream automation webhook.
// Exactly one attempt is made per call; nothing is retried.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"meetingrelay/internal/domain"
)

// Timeout bounds a single delivery, and with it the pipeline latency per task.
const Timeout = 10 * time.Second

var ErrNotConfigured = errors.New("forward URL is not configured")

// Request is the body posted to the downstream webhook.
type Request struct {
	Task        string  `json:"task"`
	Owner       string  `json:"owner"`
	MeetingName *string `json:"meeting_name,omitempty"`
	MeetingDate *string `json:"meeting_date,omitempty"`
}

// Outcome classifies one delivery. Detail is the response body on success and
// the error description otherwise.
type Outcome struct {
	Success bool
	Detail  string
}

type Forwarder struct {
	client *resty.Client
	url    string
}

func New(url string) *Forwarder {
	return newWithTimeout(url, Timeout)
}

func newWithTimeout(url string, timeout time.Duration) *Forwarder {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	return &Forwarder{client: client, url: url}
}

func (f *Forwarder) Send(ctx context.Context, task domain.CleanedTask, meeting domain.MeetingContext) Outcome {
	if f.url == "" {
		return Outcome{Detail: ErrNotConfigured.Error()}
	}
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(Request{
			Task:        task.Text,
			Owner:       task.Owner,
			MeetingName: meeting.NamePtr(),
			MeetingDate: meeting.DatePtr(),
		}).
		Post(f.url)
	if err != nil {
		return Outcome{Detail: fmt.Sprintf("HTTP request failed: %v", err)}
	}
	if !resp.IsSuccess() {
		return Outcome{Detail: fmt.Sprintf("HTTP %d error: %s", resp.StatusCode(), resp.String())}
	}
	return Outcome{Success: true, Detail: resp.String()}
}
