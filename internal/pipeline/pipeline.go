// Package pipeline runs one webhook payload through storage, extraction, parsing
// and delivery. Tasks are handled one at a time in extraction order; a failure on
// one task never stops the next.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"meetingrelay/internal/archive"
	"meetingrelay/internal/cleaner"
	"meetingrelay/internal/domain"
	"meetingrelay/internal/events"
	"meetingrelay/internal/extract"
	"meetingrelay/internal/forwarder"
	"meetingrelay/internal/metrics"
	"meetingrelay/internal/parser"
	"meetingrelay/internal/store"
)

// ErrEmptyPayload rejects a request before anything is stored.
var ErrEmptyPayload = errors.New("no payload received")

type Sender interface {
	Send(ctx context.Context, task domain.CleanedTask, meeting domain.MeetingContext) forwarder.Outcome
}

type Pipeline struct {
	repo      store.Repository
	sender    Sender
	parser    *parser.Parser
	publisher events.Publisher
	archive   archive.Destination
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Pipeline)

func WithPublisher(p events.Publisher) Option { return func(pl *Pipeline) { pl.publisher = p } }

// WithArchive keeps an indented copy of every stored payload in dest.
func WithArchive(dest archive.Destination) Option { return func(pl *Pipeline) { pl.archive = dest } }

func WithMetrics(m *metrics.Metrics) Option { return func(pl *Pipeline) { pl.metrics = m } }

func WithParser(p *parser.Parser) Option { return func(pl *Pipeline) { pl.parser = p } }

func New(repo store.Repository, sender Sender, opts ...Option) *Pipeline {
	p := &Pipeline{
		repo:      repo,
		sender:    sender,
		parser:    parser.New(),
		publisher: events.NoopPublisher{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process stores body and forwards every task found in it. Only an empty body or
// a failed payload write returns an error; per-task problems are reported in the
// summary.
func (p *Pipeline) Process(ctx context.Context, body json.RawMessage) (domain.Summary, error) {
	if IsEmpty(body) {
		return domain.Summary{}, ErrEmptyPayload
	}
	// Once started, a payload runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	payload, err := p.repo.StorePayload(ctx, body)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("store payload: %w", err)
	}
	p.metrics.PayloadStored()
	log.Info().Str("payload_id", payload.ID).Int("bytes", len(body)).Msg("payload stored")
	p.publish(ctx, events.TopicPayloadStored, events.PayloadStored{PayloadID: payload.ID, ReceivedAt: payload.ReceivedAt})
	p.archivePayload(ctx, payload)

	extracted := extract.FromBytes(payload.Body)
	entries, grammar := p.parser.Parse(extracted.Text)

	summary := domain.Summary{
		PayloadID:  payload.ID,
		ReceivedAt: payload.ReceivedAt,
		Meeting:    extracted.Meeting,
		Grammar:    grammar,
		Results:    make([]domain.TaskResult, 0, len(entries)),
	}
	for _, entry := range entries {
		res := p.processTask(ctx, payload.ID, entry, extracted.Meeting)
		summary.TasksProcessed++
		if res.Success {
			summary.TasksSuccessful++
		}
		summary.Results = append(summary.Results, res)
	}

	log.Info().
		Str("payload_id", payload.ID).
		Str("grammar", grammar).
		Int("tasks_processed", summary.TasksProcessed).
		Int("tasks_successful", summary.TasksSuccessful).
		Msg("payload processed")
	return summary, nil
}

func (p *Pipeline) processTask(ctx context.Context, payloadID string, entry domain.TaskEntry, meeting domain.MeetingContext) domain.TaskResult {
	task := cleaner.Task(entry)

	start := time.Now()
	out := p.sender.Send(ctx, task, meeting)
	p.metrics.TaskForwarded(out.Success, time.Since(start))

	rec := domain.SentTaskRecord{
		PayloadID:    payloadID,
		Task:         task.Text,
		Owner:        task.Owner,
		SentAt:       p.now(),
		ResponseText: out.Detail,
		Success:      out.Success,
		MeetingName:  meeting.NamePtr(),
		MeetingDate:  meeting.DatePtr(),
	}
	res := domain.TaskResult{Task: task.Text, Owner: task.Owner, Success: out.Success, Response: out.Detail}

	if err := p.repo.StoreSentTask(ctx, rec); err != nil {
		log.Error().Err(err).Str("payload_id", payloadID).Str("owner", task.Owner).Msg("failed to record sent task")
		return res
	}
	res.Recorded = true

	evt := log.Info()
	if !out.Success {
		evt = log.Warn().Str("detail", out.Detail)
	}
	evt.Str("payload_id", payloadID).Str("owner", task.Owner).Bool("success", out.Success).Msg("task forwarded")

	p.publish(ctx, events.TopicTaskSent, events.TaskSent{Record: rec})
	return res
}

func (p *Pipeline) publish(ctx context.Context, topic string, event any) {
	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to publish event")
	}
}

func (p *Pipeline) archivePayload(ctx context.Context, payload domain.RawPayload) {
	if p.archive == nil {
		return
	}
	name, err := archive.WritePayload(ctx, p.archive, payload)
	if err != nil {
		log.Warn().Err(err).Str("payload_id", payload.ID).Msg("failed to archive payload")
		return
	}
	log.Debug().Str("payload_id", payload.ID).Str("name", name).Msg("payload archived")
}

// IsEmpty reports whether body carries nothing: no bytes, null, or an empty
// object, array or string.
func IsEmpty(body json.RawMessage) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
