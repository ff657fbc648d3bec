package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetingrelay/internal/domain"
)

func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second), "embedded NATS not ready")
	return srv.ClientURL()
}

var (
	_ Publisher = NoopPublisher{}
	_ Publisher = (*NATSPublisher)(nil)
)

func TestNoopPublisher(t *testing.T) {
	pub := NoopPublisher{}
	assert.NoError(t, pub.Publish(context.Background(), TopicTaskSent, TaskSent{}))
	assert.NoError(t, pub.Close())
}

func TestNATSPublisherPublish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	require.NoError(t, err)
	defer pub.Close()

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicTaskSent, ch)
	require.NoError(t, err)
	defer sub.Unsubscribe() //nolint:errcheck
	require.NoError(t, nc.Flush())

	event := TaskSent{Record: domain.SentTaskRecord{ID: "st_1", Owner: "Bob", Success: true}}
	require.NoError(t, pub.Publish(context.Background(), TopicTaskSent, event))
	require.NoError(t, pub.conn.Flush())

	select {
	case msg := <-ch:
		var got TaskSent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "st_1", got.Record.ID)
		assert.True(t, got.Record.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNewNATSPublisherBadURL(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1", nats.MaxReconnects(0), nats.Timeout(200*time.Millisecond))
	assert.Error(t, err)
}
