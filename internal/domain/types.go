package domain

import (
	"encoding/json"
	"time"
)

// RawPayload is a webhook body as received. It is never modified after insert.
type RawPayload struct {
	ID         string          `json:"id"`
	ReceivedAt time.Time       `json:"received_at"`
	Body       json.RawMessage `json:"body"`
}

type MeetingContext struct {
	Name string `json:"meeting_name,omitempty"`
	Date string `json:"meeting_date,omitempty"`
}

// TaskEntry is a parsed (description, owner) pair before cleanup.
type TaskEntry struct {
	RawText string `json:"raw_text"`
	Owner   string `json:"owner"`
}

type CleanedTask struct {
	Text  string `json:"text"`
	Owner string `json:"owner"`
}

// SentTaskRecord is the durable result of one delivery attempt.
type SentTaskRecord struct {
	ID           string    `json:"id"`
	PayloadID    string    `json:"payload_id"`
	Task         string    `json:"task"`
	Owner        string    `json:"owner"`
	SentAt       time.Time `json:"sent_at"`
	ResponseText string    `json:"response_text"`
	Success      bool      `json:"success"`
	MeetingName  *string   `json:"meeting_name,omitempty"`
	MeetingDate  *string   `json:"meeting_date,omitempty"`
}

// TaskResult is the per-task line of a webhook summary.
type TaskResult struct {
	Task     string `json:"task"`
	Owner    string `json:"owner"`
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Recorded bool   `json:"recorded"`
}

type Summary struct {
	PayloadID       string         `json:"payload_id"`
	ReceivedAt      time.Time      `json:"received_at"`
	Meeting         MeetingContext `json:"meeting"`
	Grammar         string         `json:"grammar,omitempty"`
	TasksProcessed  int            `json:"tasks_processed"`
	TasksSuccessful int            `json:"tasks_successful"`
	Results         []TaskResult   `json:"results"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NamePtr returns the meeting name, or nil when it was not found.
func (m MeetingContext) NamePtr() *string { return optional(m.Name) }

// DatePtr returns the meeting date, or nil when it was not found.
func (m MeetingContext) DatePtr() *string { return optional(m.Date) }
