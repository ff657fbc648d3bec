package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetingrelay/internal/domain"
	"meetingrelay/internal/events"
	"meetingrelay/internal/forwarder"
	"meetingrelay/internal/store"
)

func newRepo(t *testing.T) store.Repository {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewSQLiteRepo(db)
}

// downstream fails every task owned by failOwner.
func downstream(t *testing.T, failOwner string) (*httptest.Server, *[]forwarder.Request) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []forwarder.Request
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req forwarder.Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		got = append(got, req)
		mu.Unlock()
		if req.Owner == failOwner {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("rejected"))
			return
		}
		w.Write([]byte("accepted"))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestProcessEndToEnd(t *testing.T) {
	repo := newRepo(t)
	srv, got := downstream(t, "Bob")
	p := New(repo, forwarder.New(srv.URL))

	body := json.RawMessage(`{"krisp_blob": "- [ ] Bob to send invoice\n- [ ] Carol to call client"}`)
	summary, err := p.Process(context.Background(), body)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TasksProcessed)
	assert.Equal(t, 1, summary.TasksSuccessful)
	assert.Equal(t, "checklist", summary.Grammar)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, domain.TaskResult{Task: "Send invoice", Owner: "Bob", Response: "HTTP 500 error: rejected", Recorded: true}, summary.Results[0])
	assert.Equal(t, domain.TaskResult{Task: "Call client", Owner: "Carol", Success: true, Response: "accepted", Recorded: true}, summary.Results[1])

	require.Len(t, *got, 2)
	assert.Equal(t, "Bob", (*got)[0].Owner)
	assert.Equal(t, "Carol", (*got)[1].Owner)

	recs, err := repo.ListSentTasks(context.Background(), store.SentTaskFilter{PayloadID: summary.PayloadID})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.False(t, recs[0].Success)
	assert.True(t, recs[1].Success)
	assert.Equal(t, "accepted", recs[1].ResponseText)

	stored, err := repo.GetPayload(context.Background(), summary.PayloadID)
	require.NoError(t, err)
	assert.JSONEq(t, string(body), string(stored.Body))
}

func TestProcessMeetingContextForwarded(t *testing.T) {
	repo := newRepo(t)
	srv, got := downstream(t, "")
	p := New(repo, forwarder.New(srv.URL))

	summary, err := p.Process(context.Background(),
		json.RawMessage(`{"data":{"meeting_name":"Weekly","meeting_date":"2024-05-01"},"notes":"Task: ship it Owner: Dana"}`))
	require.NoError(t, err)
	assert.Equal(t, "label", summary.Grammar)
	assert.Equal(t, domain.MeetingContext{Name: "Weekly", Date: "2024-05-01"}, summary.Meeting)

	require.Len(t, *got, 1)
	require.NotNil(t, (*got)[0].MeetingName)
	assert.Equal(t, "Weekly", *(*got)[0].MeetingName)

	recs, err := repo.ListSentTasks(context.Background(), store.SentTaskFilter{PayloadID: summary.PayloadID})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Ship it", recs[0].Task)
	require.NotNil(t, recs[0].MeetingDate)
	assert.Equal(t, "2024-05-01", *recs[0].MeetingDate)
}

func TestProcessNoTasks(t *testing.T) {
	repo := newRepo(t)
	p := New(repo, forwarder.New(""))

	summary, err := p.Process(context.Background(), json.RawMessage(`{"krisp_blob":"we chatted about the weather"}`))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TasksProcessed)
	assert.Empty(t, summary.Results)
	assert.NotEmpty(t, summary.PayloadID)
}

func TestProcessUnconfiguredForwarder(t *testing.T) {
	repo := newRepo(t)
	p := New(repo, forwarder.New(""))

	summary, err := p.Process(context.Background(), json.RawMessage(`"- [ ] Alice to write the report"`))
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.False(t, summary.Results[0].Success)
	assert.Equal(t, forwarder.ErrNotConfigured.Error(), summary.Results[0].Response)
	assert.Equal(t, "Write the report", summary.Results[0].Task)
}

type fakeRepo struct {
	store.Repository
	payloadErr error
	taskErrs   map[string]error
	payloads   int
	records    []domain.SentTaskRecord
}

func (f *fakeRepo) StorePayload(_ context.Context, body json.RawMessage) (domain.RawPayload, error) {
	if f.payloadErr != nil {
		return domain.RawPayload{}, f.payloadErr
	}
	f.payloads++
	return domain.RawPayload{ID: "pl_fake", Body: body}, nil
}

func (f *fakeRepo) StoreSentTask(_ context.Context, rec domain.SentTaskRecord) error {
	if err := f.taskErrs[rec.Owner]; err != nil {
		return err
	}
	f.records = append(f.records, rec)
	return nil
}

type fakeSender struct {
	calls []domain.CleanedTask
	fail  map[string]bool
}

func (s *fakeSender) Send(_ context.Context, task domain.CleanedTask, _ domain.MeetingContext) forwarder.Outcome {
	s.calls = append(s.calls, task)
	if s.fail[task.Owner] {
		return forwarder.Outcome{Detail: "HTTP 500 error: no"}
	}
	return forwarder.Outcome{Success: true, Detail: "ok"}
}

func TestProcessEmptyPayloadRejected(t *testing.T) {
	for _, body := range []string{``, `  `, `null`, `{}`, `[]`, `""`, `{ }`} {
		repo := &fakeRepo{}
		sender := &fakeSender{}
		_, err := New(repo, sender).Process(context.Background(), json.RawMessage(body))
		assert.ErrorIs(t, err, ErrEmptyPayload, body)
		assert.Zero(t, repo.payloads)
		assert.Empty(t, sender.calls)
	}
}

func TestProcessPayloadStoreFailureAborts(t *testing.T) {
	repo := &fakeRepo{payloadErr: errors.New("disk full")}
	sender := &fakeSender{}
	_, err := New(repo, sender).Process(context.Background(), json.RawMessage(`"- [ ] Bob to x"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, sender.calls)
}

func TestProcessTaskFailuresIsolated(t *testing.T) {
	repo := &fakeRepo{taskErrs: map[string]error{"Bob": errors.New("locked")}}
	sender := &fakeSender{fail: map[string]bool{"Carol": true}}
	pub := &recordingPublisher{}
	text := `"- [ ] Bob to a\n- [ ] Carol to b\n- [ ] Dan to c"`

	summary, err := New(repo, sender, WithPublisher(pub)).Process(context.Background(), json.RawMessage(text))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TasksProcessed)
	assert.Equal(t, 2, summary.TasksSuccessful)
	require.Len(t, sender.calls, 3)
	assert.False(t, summary.Results[0].Recorded)
	assert.True(t, summary.Results[0].Success)
	assert.True(t, summary.Results[1].Recorded)
	assert.False(t, summary.Results[1].Success)
	require.Len(t, repo.records, 2)
	assert.Equal(t, "Carol", repo.records[0].Owner)
	assert.Equal(t, "Dan", repo.records[1].Owner)

	assert.Equal(t, []string{events.TopicPayloadStored, events.TopicTaskSent, events.TopicTaskSent}, pub.topics)
}

type recordingPublisher struct {
	topics []string
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	r.topics = append(r.topics, topic)
	return r.err
}

func (r *recordingPublisher) Close() error { return nil }

type memArchive struct {
	names []string
	err   error
}

func (m *memArchive) Write(_ context.Context, name string, _ []byte) error {
	if m.err != nil {
		return m.err
	}
	m.names = append(m.names, name)
	return nil
}

func TestProcessSideChannelsDoNotFail(t *testing.T) {
	repo := &fakeRepo{}
	sender := &fakeSender{}
	pub := &recordingPublisher{err: errors.New("nats down")}
	arch := &memArchive{err: errors.New("bucket missing")}

	summary, err := New(repo, sender, WithPublisher(pub), WithArchive(arch)).
		Process(context.Background(), json.RawMessage(`{"krisp_blob":"- [ ] Bob to x"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TasksSuccessful)
}

func TestProcessArchivesPayload(t *testing.T) {
	arch := &memArchive{}
	_, err := New(&fakeRepo{}, &fakeSender{}, WithArchive(arch)).
		Process(context.Background(), json.RawMessage(`{"krisp_blob":"nothing"}`))
	require.NoError(t, err)
	require.Len(t, arch.names, 1)
	assert.Contains(t, arch.names[0], "payload_")
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(json.RawMessage(`[ ]`)))
	assert.False(t, IsEmpty(json.RawMessage(`0`)))
	assert.False(t, IsEmpty(json.RawMessage(`{"a":null}`)))
	assert.False(t, IsEmpty(json.RawMessage(`not json`)))
}
