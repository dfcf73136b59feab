package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/brdforge/internal/logging"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	server, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestNATSPublisher_Publish(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("brdforge.s1.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	p := NewNATSPublisher(nc, "")
	err = p.Publish(context.Background(), Event{
		Kind:      SynthesisSection,
		SessionID: "s1",
		Section:   "timeline",
		Status:    StatusComplete,
	})
	require.NoError(t, err)

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "brdforge.s1.synthesis.section", msg.Subject)

	var ev Event
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "timeline", ev.Section)
	assert.Equal(t, StatusComplete, ev.Status)
}

func TestConnect(t *testing.T) {
	server := startTestNATSServer(t)
	p, err := Connect(server.ClientURL(), "custom")
	require.NoError(t, err)
	assert.Equal(t, "custom.a_b.validation.completed", p.Subject("a.b", ValidationCompleted))
	assert.NoError(t, p.Close())

	_, err = Connect("nats://127.0.0.1:1", "x")
	assert.Error(t, err)
}

func TestSubjectToken(t *testing.T) {
	p := NewNATSPublisher(nil, "brdforge")
	assert.Equal(t, "brdforge._.classification.started", p.Subject("", ClassificationStarted))
	assert.Equal(t, "brdforge.a_b_c.classification.started", p.Subject("a*b>c", ClassificationStarted))
}

func TestNATSPublisher_CancelledContext(t *testing.T) {
	p := NewNATSPublisher(nil, "brdforge")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, Event{Kind: SynthesisStarted}), context.Canceled)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, Event) error { return errors.New("down") }

func TestEmit(t *testing.T) {
	rec := &Recorder{}
	Emit(context.Background(), rec, nil, Event{Kind: SynthesisStarted, SessionID: "s"})
	require.Len(t, rec.OfKind(SynthesisStarted), 1)
	assert.False(t, rec.Events()[0].Time.IsZero())

	tl := logging.NewTestLogger()
	Emit(context.Background(), failingPublisher{}, tl.Logger, Event{Kind: SynthesisStarted})
	tl.AssertLogged(t, zapcore.WarnLevel, "failed to publish event")

	Emit(context.Background(), nil, tl.Logger, Event{Kind: SynthesisStarted})
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), Event{}))
}
