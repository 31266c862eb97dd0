package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"PPDesk/module/chat/model"
	"PPDesk/tools/errs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	wait = 2 * time.Second
	tick = 5 * time.Millisecond
)

func TestOpenConversationKeepsOneSession(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSync(t, Config{}, WithTransport(f))
	ctx := context.Background()

	require.NoError(t, s.OpenConversation(ctx, "T1"))
	require.NoError(t, s.OpenConversation(ctx, "T1"))
	assert.Equal(t, 1, f.count(), "reopening the same ticket is a no-op")

	require.NoError(t, s.OpenConversation(ctx, "T2"))
	require.Equal(t, 2, f.count())

	closed, code := f.at(0).isClosed()
	assert.True(t, closed)
	assert.Equal(t, CloseNormal, code)
	closed, _ = f.at(1).isClosed()
	assert.False(t, closed)
	assert.Equal(t, "T2", s.Current())
	assert.Equal(t, model.StateConnecting, s.State())
}

func TestOpenConversationRejectsEmptyTicket(t *testing.T) {
	s := newTestSync(t, Config{}, WithTransport(&fakeFactory{}))
	err := s.OpenConversation(context.Background(), "  ")
	assert.True(t, errors.Is(err, errs.ErrArgs))
}

func TestIdentifyAndPushHistory(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSync(t, Config{UserID: "u-7"}, WithTransport(f), WithAPI(&fakeAPI{}))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))

	tr := f.last()
	tr.h.OnOpen()
	require.Eventually(t, s.Connected, wait, tick)

	require.Eventually(t, func() bool { return len(tr.framesOfType(FrameIdentify)) == 1 }, wait, tick)
	id := tr.framesOfType(FrameIdentify)[0]
	assert.Equal(t, "T1", id["ticketId"])
	assert.Equal(t, "u-7", id["userId"])

	tr.push(map[string]any{"type": FrameIdentifySuccess, "ticketId": "T1"})
	tr.push(map[string]any{
		"type":     FrameMessageHistory,
		"ticketId": "T1",
		"messages": []map[string]any{
			{"id": "H1", "content": "hello", "isClient": true, "timestamp": "2024-05-01T10:00:00Z"},
		},
	})

	require.Eventually(t, func() bool {
		msgs := s.Messages("T1")
		return len(msgs) == 1 && msgs[0].ID == "H1"
	}, wait, tick)
	m := s.Messages("T1")[0]
	assert.Equal(t, model.OriginVisitor, m.Origin)
	assert.True(t, s.Connected())
}

func TestPushHistoryReplaysInOrder(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSync(t, Config{}, WithTransport(f))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	tr := f.last()
	tr.h.OnOpen()

	tr.push(map[string]any{"type": FrameNewMessage, "ticketId": "T1", "data": map[string]any{"id": "X", "content": "old"}})
	tr.push(map[string]any{
		"type": FrameMessageHistory,
		"messages": []map[string]any{
			{"id": "1", "content": "a", "timestamp": "2024-05-01T10:00:03Z"},
			{"id": "2", "content": "b", "timestamp": "2024-05-01T10:00:01Z"},
			{"id": "3", "content": "c", "timestamp": "2024-05-01T10:00:02Z"},
		},
	})
	require.Eventually(t, func() bool {
		return strings.Join(idsOf(s.Messages("T1")), ",") == "1,2,3"
	}, wait, tick)
}

func TestDisconnectedSendConfirmsViaHTTP(t *testing.T) {
	api := &fakeAPI{postResp: map[string]any{"id": "S9", "content": "hi", "isClient": false}}
	f := &fakeFactory{}
	s := newTestSync(t, Config{}, WithTransport(f), WithAPI(api))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))

	got, err := s.SendMessage(context.Background(), "T1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "S9", got.ID)
	assert.False(t, got.Pending)
	assert.Equal(t, 1, api.postCount())
	assert.Empty(t, f.last().framesOfType(FrameNewMessage))

	msgs := s.Messages("T1")
	m, ok := findMessage(msgs, func(m model.Message) bool { return m.ID == "S9" })
	require.True(t, ok)
	assert.False(t, m.Pending)
	_, stale := findMessage(msgs, func(m model.Message) bool { return strings.HasPrefix(m.ID, "local-") })
	assert.False(t, stale)
}

func TestSendUsesCurrentConversation(t *testing.T) {
	api := &fakeAPI{postResp: map[string]any{"data": map[string]any{"id": "S1", "content": "x"}}}
	s := newTestSync(t, Config{}, WithTransport(&fakeFactory{}), WithAPI(api))

	_, err := s.SendMessage(context.Background(), "", "x")
	assert.True(t, errors.Is(err, errs.ErrNoConversation))

	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	got, err := s.SendMessage(context.Background(), "", "x")
	require.NoError(t, err)
	assert.Equal(t, "S1", got.ID)

	_, err = s.SendMessage(context.Background(), "T1", "   ")
	assert.True(t, errors.Is(err, errs.ErrArgs))
}

func TestSendHTTPWithoutIDConfirmsInPlace(t *testing.T) {
	api := &fakeAPI{postResp: map[string]any{"ok": true}}
	s := newTestSync(t, Config{}, WithTransport(&fakeFactory{}), WithAPI(api))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))

	got, err := s.SendMessage(context.Background(), "T1", "x")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.ID, "local-"))
	assert.False(t, got.Pending)
}

func TestTransportSendOverConnectedSession(t *testing.T) {
	api := &fakeAPI{}
	f := &fakeFactory{}
	s := newTestSync(t, Config{UserName: "Ana"}, WithTransport(f), WithAPI(api))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	tr := f.last()
	tr.h.OnOpen()
	require.Eventually(t, s.Connected, wait, tick)

	got, err := s.SendMessage(context.Background(), "T1", "on the wire")
	require.NoError(t, err)
	assert.True(t, got.Pending)
	assert.True(t, strings.HasPrefix(got.ID, "local-"))
	assert.Equal(t, 0, api.postCount())

	frames := tr.framesOfType(FrameNewMessage)
	require.Len(t, frames, 1)
	data := frames[0]["data"].(map[string]any)
	assert.Equal(t, "on the wire", data["content"])
	assert.Equal(t, false, data["isClient"])
	assert.Equal(t, "agent-1", data["userId"])
	assert.Equal(t, "Ana", data["userName"])
	assert.NotEmpty(t, data["timestamp"])

	// 回显在窗口内到达 -> 升级
	tr.push(map[string]any{
		"type":     FrameMessageReceived,
		"ticketId": "T1",
		"data": map[string]any{
			"id": "MSG-42", "content": "on the wire", "isClient": false,
			"timestamp": got.Timestamp.Add(5 * time.Second).Format(time.RFC3339Nano),
		},
	})
	require.Eventually(t, func() bool {
		_, ok := findMessage(s.Messages("T1"), func(m model.Message) bool { return m.ID == "MSG-42" && !m.Pending })
		return ok
	}, wait, tick)
	_, left := findMessage(s.Messages("T1"), func(m model.Message) bool { return m.ID == got.ID })
	assert.False(t, left)
}

func TestTransportSendConfirmsInPlaceWithoutEcho(t *testing.T) {
	api := &fakeAPI{}
	f := &fakeFactory{}
	s := newTestSync(t, Config{EchoWindow: 50 * time.Millisecond}, WithTransport(f), WithAPI(api))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	f.last().h.OnOpen()
	require.Eventually(t, s.Connected, wait, tick)

	got, err := s.SendMessage(context.Background(), "T1", "no echo")
	require.NoError(t, err)
	assert.True(t, got.Pending)

	require.Eventually(t, func() bool {
		m, ok := findMessage(s.Messages("T1"), func(m model.Message) bool { return m.ID == got.ID })
		return ok && !m.Pending && !m.Error
	}, wait, tick)
	assert.Equal(t, 0, api.postCount())
	assert.Len(t, f.last().framesOfType(FrameNewMessage), 1)
}

func TestQueuedSendsSettleAfterConversationSwitch(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{}
	f := &fakeFactory{gate: gate}
	s := newTestSync(t, Config{EchoWindow: 50 * time.Millisecond}, WithTransport(f), WithAPI(api))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	f.last().h.OnOpen()
	require.Eventually(t, s.Connected, wait, tick)

	const n = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errL []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), wait)
			defer cancel()
			_, err := s.SendMessage(ctx, "T1", "queued "+string(rune('a'+i)))
			mu.Lock()
			errL = append(errL, err)
			mu.Unlock()
		}(i)
	}
	queued := func() int {
		c := 0
		for _, m := range s.Messages("T1") {
			if strings.HasPrefix(m.Content, "queued ") {
				c++
			}
		}
		return c
	}
	require.Eventually(t, func() bool { return queued() == n }, wait, tick)

	require.NoError(t, s.OpenConversation(context.Background(), "T2"))
	close(gate)
	wg.Wait()

	for _, err := range errL {
		assert.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		for _, m := range s.Messages("T1") {
			if m.Pending {
				return false
			}
		}
		return true
	}, wait, tick)
	assert.Equal(t, n, queued())
	assert.Greater(t, api.postCount(), 0)
}

func TestSendReturnsWhenSynchronizerCloses(t *testing.T) {
	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	f := &fakeFactory{gate: gate}
	s := newTestSync(t, Config{}, WithTransport(f), WithAPI(&fakeAPI{}))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	f.last().h.OnOpen()
	require.Eventually(t, s.Connected, wait, tick)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.SendMessage(context.Background(), "T1", "late")
		errCh <- err
	}()
	require.Eventually(t, func() bool {
		_, ok := findMessage(s.Messages("T1"), func(m model.Message) bool { return m.Content == "late" })
		return ok
	}, wait, tick)
	require.NoError(t, s.Close())

	select {
	case err := <-errCh:
		if err != nil {
			assert.True(t, errors.Is(err, errs.ErrClosed) || errors.Is(err, errs.ErrSendFailed), err.Error())
		}
	case <-time.After(wait):
		t.Fatal("SendMessage did not return after Close")
	}
}

func TestTransportWriteFailureFallsBackToHTTP(t *testing.T) {
	api := &fakeAPI{postResp: map[string]any{"id": "S2", "content": "x"}}
	f := &fakeFactory{sendErr: errors.New("broken pipe")}
	s := newTestSync(t, Config{}, WithTransport(f), WithAPI(api))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	f.last().h.OnOpen()
	require.Eventually(t, s.Connected, wait, tick)

	got, err := s.SendMessage(context.Background(), "T1", "x")
	require.NoError(t, err)
	assert.Equal(t, "S2", got.ID)
	assert.Equal(t, 1, api.postCount())
}

func TestSendFailureFlagsMessage(t *testing.T) {
	api := &fakeAPI{postErr: errors.New("503")}
	s := newTestSync(t, Config{}, WithTransport(&fakeFactory{}), WithAPI(api))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))

	got, err := s.SendMessage(context.Background(), "T1", "lost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSendFailed))
	assert.True(t, got.Error)
	assert.False(t, got.Pending)

	msgs := s.Messages("T1")
	failed, ok := findMessage(msgs, func(m model.Message) bool { return m.ID == got.ID })
	require.True(t, ok)
	assert.True(t, failed.Error)
	sys, ok := findMessage(msgs, func(m model.Message) bool { return strings.HasPrefix(m.ID, SystemIDPrefix) })
	require.True(t, ok)
	assert.Equal(t, model.OriginSystem, sys.Origin)
}

func TestReconnectAfterAbnormalClose(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSync(t, Config{ReconnectDelay: 20 * time.Millisecond}, WithTransport(f))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	first := f.last()
	first.h.OnOpen()
	require.Eventually(t, s.Connected, wait, tick)

	first.h.OnClose(CloseAbnormal, "gone")
	require.Eventually(t, func() bool { return f.count() == 2 }, wait, tick)
	assert.Equal(t, model.StateConnecting, s.State())

	// 旧连接的迟到事件被忽略
	first.h.OnOpen()
	first.h.OnClose(CloseAbnormal, "late")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 2, f.count())
	assert.Equal(t, model.StateConnecting, s.State())
}

func TestConnectErrorSchedulesRetry(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSync(t, Config{ReconnectDelay: 20 * time.Millisecond}, WithTransport(f))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))

	f.last().h.OnError(errors.New("dial refused"))
	require.Eventually(t, func() bool { return f.count() == 2 }, wait, tick)
}

func TestConstructionFailureSchedulesRetry(t *testing.T) {
	f := &fakeFactory{openErr: errors.New("bad url")}
	s := newTestSync(t, Config{ReconnectDelay: 20 * time.Millisecond}, WithTransport(f))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	assert.Equal(t, model.StateDisconnected, s.State())

	f.mu.Lock()
	f.openErr = nil
	f.mu.Unlock()
	require.Eventually(t, func() bool { return f.count() == 1 }, wait, tick)
}

func TestNormalCloseDoesNotReconnect(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSync(t, Config{ReconnectDelay: 10 * time.Millisecond}, WithTransport(f))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	f.last().h.OnOpen()
	require.Eventually(t, s.Connected, wait, tick)

	f.last().h.OnClose(CloseNormal, "bye")
	require.Eventually(t, func() bool { return s.State() == model.StateDisconnected }, wait, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.count())
}

func TestCloseConversationCancelsRetry(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSync(t, Config{ReconnectDelay: 30 * time.Millisecond}, WithTransport(f))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	tr := f.last()
	tr.h.OnOpen()
	tr.h.OnClose(CloseAbnormal, "drop")
	require.Eventually(t, func() bool { return s.State() == model.StateReconnecting }, wait, tick)

	require.NoError(t, s.CloseConversation(context.Background()))
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, f.count())
	assert.Equal(t, "", s.Current())
	assert.Equal(t, model.StateDisconnected, s.State())
}

func TestCloseConversationUsesNormalCode(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSync(t, Config{}, WithTransport(f))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	require.NoError(t, s.CloseConversation(context.Background()))

	closed, code := f.last().isClosed()
	assert.True(t, closed)
	assert.Equal(t, CloseNormal, code)
}

func TestHistoryPlaceholderWhenUnavailable(t *testing.T) {
	api := &fakeAPI{fetchErr: errors.New("500")}
	s := newTestSync(t, Config{}, WithTransport(&fakeFactory{}), WithAPI(api))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))

	require.Eventually(t, func() bool { return len(s.Messages("T1")) == 1 }, wait, tick)
	m := s.Messages("T1")[0]
	assert.Equal(t, PlaceholderIDPrefix+"T1", m.ID)
	assert.Equal(t, model.OriginSystem, m.Origin)
	assert.Equal(t, placeholderUnavailable, m.Content)
}

func TestHistoryFromRESTReplays(t *testing.T) {
	api := &fakeAPI{history: map[string][]map[string]any{
		"T1": {
			{"id": "1", "content": "a", "isClient": true},
			{"id": "2", "content": "b"},
			{"content": ""},
		},
	}}
	reg := prometheus.NewRegistry()
	s := newTestSync(t, Config{}, WithTransport(&fakeFactory{}), WithAPI(api), WithMetrics(NewMetrics(reg)))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))

	require.Eventually(t, func() bool { return strings.Join(idsOf(s.Messages("T1")), ",") == "1,2" }, wait, tick)
}

func TestHistoryFallsBackToCache(t *testing.T) {
	api := &fakeAPI{fetchErr: errors.New("offline")}
	cache := &fakeCache{msgs: map[string][]model.Message{
		"T1": {
			{ID: "C1", Content: "cached", Origin: model.OriginVisitor},
			{ID: "local-9", Content: "unsent", Origin: model.OriginAgent, Pending: true},
		},
	}}
	s := newTestSync(t, Config{}, WithTransport(&fakeFactory{}), WithAPI(api), WithCache(cache))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))

	require.Eventually(t, func() bool { return len(s.Messages("T1")) == 2 }, wait, tick)
	msgs := s.Messages("T1")
	assert.Equal(t, "C1", msgs[0].ID)
	assert.True(t, msgs[1].Error)
	assert.False(t, msgs[1].Pending)
}

func TestHistoryMergesWhenPushArrivedFirst(t *testing.T) {
	api := &fakeAPI{
		fetchGate: make(chan struct{}),
		history: map[string][]map[string]any{
			"T1": {{"id": "H1", "content": "old"}, {"id": "P1", "content": "pushed"}},
		},
	}
	f := &fakeFactory{}
	s := newTestSync(t, Config{}, WithTransport(f), WithAPI(api))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	tr := f.last()
	tr.h.OnOpen()
	tr.push(map[string]any{"type": FrameNewMessage, "data": map[string]any{"id": "P1", "content": "pushed"}})
	require.Eventually(t, func() bool { return len(s.Messages("T1")) == 1 }, wait, tick)

	close(api.fetchGate)
	require.Eventually(t, func() bool { return strings.Join(idsOf(s.Messages("T1")), ",") == "P1,H1" }, wait, tick)
}

func TestHistoryIgnoredAfterSwitch(t *testing.T) {
	api := &fakeAPI{
		fetchGate: make(chan struct{}),
		history:   map[string][]map[string]any{"T1": {{"id": "H1", "content": "old"}}},
	}
	s := newTestSync(t, Config{}, WithTransport(&fakeFactory{}), WithAPI(api))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	require.NoError(t, s.CloseConversation(context.Background()))
	close(api.fetchGate)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, s.Messages("T1"))
}

func TestMalformedFramesAreDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f := &fakeFactory{}
	s := newTestSync(t, Config{}, WithTransport(f), WithMetrics(m), WithAPI(pendingHistory()))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	tr := f.last()
	tr.h.OnOpen()

	tr.h.OnMessage([]byte("not json"))
	tr.h.OnMessage([]byte(`{"type":"new_message"}`))
	tr.h.OnMessage([]byte(`{"type":"something_else"}`))
	tr.h.OnMessage([]byte(`{"type":"message_history","messages":"nope"}`))
	tr.push(map[string]any{"type": FrameError, "message": "denied"})
	tr.push(map[string]any{"content": "untyped but valid", "id": "U1"})

	require.Eventually(t, func() bool { return testutil.ToFloat64(m.droppedFrames) == 4 }, wait, tick)
	require.Eventually(t, func() bool { return len(s.Messages("T1")) == 1 }, wait, tick)
	assert.Equal(t, "U1", s.Messages("T1")[0].ID)
	assert.True(t, s.Connected())
}

func TestFramesForAnotherTicketAreDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f := &fakeFactory{}
	s := newTestSync(t, Config{}, WithTransport(f), WithMetrics(m), WithAPI(pendingHistory()))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	tr := f.last()
	tr.h.OnOpen()

	tr.push(map[string]any{"type": FrameNewMessage, "ticketId": "T2", "data": map[string]any{"id": "A", "content": "stray"}})
	tr.push(map[string]any{"type": FrameMessage, "message": map[string]any{"id": "B", "content": "nested stray", "ticketId": "T2"}})
	tr.push(map[string]any{"type": FrameMessageHistory, "ticketId": "T2", "messages": []map[string]any{{"id": "C", "content": "old"}}})
	tr.push(map[string]any{"type": FrameNewMessage, "ticketId": "T1", "data": map[string]any{"id": "D", "content": "mine"}})

	require.Eventually(t, func() bool { return len(s.Messages("T1")) == 1 }, wait, tick)
	assert.Equal(t, "D", s.Messages("T1")[0].ID)
	assert.Empty(t, s.Messages("T2"))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.droppedFrames))
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSync(t, Config{}, WithTransport(f), WithAPI(pendingHistory()))

	var mu sync.Mutex
	var got []model.Update
	unsub := s.Subscribe(func(u model.Update) {
		mu.Lock()
		got = append(got, u)
		mu.Unlock()
	})
	last := func() (model.Update, int) {
		mu.Lock()
		defer mu.Unlock()
		if len(got) == 0 {
			return model.Update{}, 0
		}
		return got[len(got)-1], len(got)
	}

	require.Eventually(t, func() bool { _, n := last(); return n >= 1 }, wait, tick)

	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	f.last().h.OnOpen()
	f.last().push(map[string]any{"type": FrameMessage, "message": map[string]any{"id": "M1", "content": "yo"}})

	require.Eventually(t, func() bool {
		u, _ := last()
		return u.ConversationID == "T1" && u.Connected && len(u.Messages) == 1
	}, wait, tick)

	u, _ := last()
	u.Messages[0].Content = "mutated"
	assert.Equal(t, "yo", s.Messages("T1")[0].Content)

	unsub()
	unsub()
	_, n := last()
	f.last().push(map[string]any{"type": FrameMessage, "message": map[string]any{"id": "M2", "content": "again"}})
	require.Eventually(t, func() bool { return len(s.Messages("T1")) == 2 }, wait, tick)
	time.Sleep(20 * time.Millisecond)
	_, n2 := last()
	assert.Equal(t, n, n2)
}

func TestClearDropsEverything(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSync(t, Config{}, WithTransport(f), WithAPI(pendingHistory()))
	require.NoError(t, s.OpenConversation(context.Background(), "T1"))
	f.last().h.OnOpen()
	f.last().push(map[string]any{"type": FrameMessage, "content": "x", "id": "1"})
	require.Eventually(t, func() bool { return len(s.Messages("T1")) == 1 }, wait, tick)

	require.NoError(t, s.Clear(context.Background()))
	assert.Empty(t, s.Messages("T1"))
	assert.Equal(t, "", s.Current())
	closed, _ := f.last().isClosed()
	assert.True(t, closed)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New(Config{}, WithTransport(&fakeFactory{}), WithLogger(zap.NewNop()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := s.OpenConversation(context.Background(), "T1")
	assert.True(t, errors.Is(err, errs.ErrClosed))
	assert.Equal(t, model.StateDisconnected, s.State())
	assert.Empty(t, s.Messages("T1"))
}
