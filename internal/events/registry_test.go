package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()

	ns, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second), "nats server not ready")
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestRegistry_StartAndGet(t *testing.T) {
	reg := NewRegistry(nil, nil)

	run := reg.Start("ai agents")
	require.NotEmpty(t, run.ID)
	assert.Equal(t, StatusRunning, run.Status)

	got, err := reg.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "ai agents", got.Keyword)

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_PublishesLifecycleEvents(t *testing.T) {
	nc := startTestNATS(t)
	reg := NewRegistry(nc, nil)

	sub, err := nc.SubscribeSync("runs.>")
	require.NoError(t, err)

	run := reg.Start("ai agents")

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, Subject(run.ID, KindStarted), msg.Subject)

	reg.Emitter(run.ID).StageCompleted(pipeline.ProgressEvent{
		Seq: 1, Stage: "research", Label: "Signal research completed", Timestamp: time.Now().UTC(),
	})
	msg, err = sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, Subject(run.ID, KindProgress), msg.Subject)

	var ev pipeline.ProgressEvent
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, 1, ev.Seq)
	assert.Equal(t, "research", ev.Stage)

	reg.Complete(run.ID, &pipeline.Report{})
	msg, err = sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, Subject(run.ID, KindCompleted), msg.Subject)

	got, err := reg.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)
}

func TestRegistry_CompleteAbortedReport(t *testing.T) {
	reg := NewRegistry(nil, nil)
	run := reg.Start("ai agents")

	reg.Complete(run.ID, &pipeline.Report{Aborted: true, AbortReason: "Keyword is empty."})

	got, err := reg.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, got.Status)
	assert.Equal(t, "Keyword is empty.", got.Report.AbortReason)
}

func TestRegistry_Fail(t *testing.T) {
	nc := startTestNATS(t)
	reg := NewRegistry(nc, nil)
	run := reg.Start("ai agents")

	sub, err := nc.SubscribeSync(Subject(run.ID, KindError))
	require.NoError(t, err)

	reg.Fail(run.ID, errors.New("stage gap_analysis: model timeout"))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Contains(t, payload["error"], "gap_analysis")

	got, err := reg.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
}

func TestRegistry_NilConnIsSafe(t *testing.T) {
	reg := NewRegistry(nil, nil)
	run := reg.Start("ai agents")

	reg.Emitter(run.ID).StageCompleted(pipeline.ProgressEvent{Seq: 1})
	reg.Complete(run.ID, &pipeline.Report{})

	got, err := reg.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "runs.abc.progress", Subject("abc", KindProgress))
	assert.Equal(t, "runs.abc.*", Subject("abc", "*"))
}
