package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"PPDesk/module/chat/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedGatewayRoundTrip(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sim := NewSimTransportFactory(SimConfig{
		History: map[string][]model.Message{
			"T1": {
				{ID: "H1", Content: "hello", Origin: model.OriginVisitor, Timestamp: t0},
				{ID: "H2", Content: "hi, how can I help?", Origin: model.OriginAgent, Timestamp: t0.Add(time.Minute)},
			},
		},
	})
	s := newTestSync(t, Config{}, WithTransport(sim), WithAPI(pendingHistory()))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))

	require.Eventually(t, func() bool {
		return s.Connected() && len(s.Messages("T1")) == 2
	}, wait, tick)
	msgs := s.Messages("T1")
	assert.Equal(t, []string{"H1", "H2"}, idsOf(msgs))
	assert.Equal(t, model.OriginVisitor, msgs[0].Origin)
	assert.True(t, msgs[0].Timestamp.Equal(t0))

	got, err := s.SendMessage(context.Background(), "T1", "my printer is on fire")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.ID, "local-"))

	require.Eventually(t, func() bool {
		m, ok := findMessage(s.Messages("T1"), func(m model.Message) bool { return m.Content == "my printer is on fire" })
		return ok && strings.HasPrefix(m.ID, "MSG-") && !m.Pending
	}, wait, tick)
	assert.Len(t, s.Messages("T1"), 3)
}

func TestSimulatedGatewayWithoutHistory(t *testing.T) {
	sim := NewSimTransportFactory(SimConfig{Latency: time.Millisecond})
	s := newTestSync(t, Config{}, WithTransport(sim), WithAPI(pendingHistory()))
	require.NoError(t, s.OpenConversation(context.Background(), "T2"))
	require.Eventually(t, s.Connected, wait, tick)
	assert.Empty(t, s.Messages("T2"))
}

func TestSimulatedTransportRejectsAfterClose(t *testing.T) {
	sim := NewSimTransportFactory(SimConfig{})
	tr, err := sim.Open("T3", &recordingHandler{})
	require.NoError(t, err)
	require.NoError(t, tr.Close(CloseNormal, ""))
	assert.Error(t, tr.Send([]byte(`{"type":"identify"}`)))
}
