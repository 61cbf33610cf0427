package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portmap-ai/pkg/logging"
	"portmap-ai/pkg/model"
)

func TestPublisher_RecordRemediation(t *testing.T) {
	// Try to connect to NATS, skip test if not available
	conn, err := nats.Connect(nats.DefaultURL, nats.Timeout(time.Second))
	if err != nil {
		t.Skip("NATS server not available, skipping test")
	}
	defer conn.Close()

	sub, err := conn.SubscribeSync("portmap.test.remediation")
	require.NoError(t, err)

	p, err := NewPublisher(nats.DefaultURL, "portmap.test.remediation", logging.Discard())
	require.NoError(t, err)
	defer p.Close()
	assert.True(t, p.Ready())

	ev := model.RemediationEvent{ID: "e1", NodeID: "w1", Action: model.ActionAutoRemediate, Score: 0.9}
	require.NoError(t, p.RecordRemediation(context.Background(), ev))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "w1", msg.Header.Get("x-node-id"))
	var got model.RemediationEvent
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, ev.ID, got.ID)
}

func TestNewPublisher_Unreachable(t *testing.T) {
	_, err := NewPublisher("nats://127.0.0.1:1", "", logging.Discard())
	assert.Error(t, err)
}

func TestDefaultSubject(t *testing.T) {
	p := NewPublisherConn(nil, "", nil)
	assert.Equal(t, DefaultSubject, p.Subject())
	assert.False(t, p.Ready())
	assert.NoError(t, p.Close())
}
