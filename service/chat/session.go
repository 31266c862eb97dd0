package chat

import (
	"time"

	"PPDesk/module/chat/model"
	"PPDesk/tools/errs"
	"PPDesk/tools/safe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type outbound struct {
	data []byte
	done func(err error) // 在写协程里调用，可以为 nil
}

// session 一个会话的一条推送连接，字段只在事件循环里读写（out/stop 除外）。
type session struct {
	gen       uint64
	id        string
	ticketID  string
	state     model.SessionState
	transport Transport
	retrying  bool
	retry     *time.Timer

	out  chan outbound
	stop chan struct{}
}

func newSession(gen uint64, ticketID string, queue int) *session {
	return &session{
		gen:      gen,
		id:       uuid.NewString(),
		ticketID: ticketID,
		state:    model.StateConnecting,
		out:      make(chan outbound, queue),
		stop:     make(chan struct{}),
	}
}

// writer 每会话单写协程，保证上行帧顺序（identify 总在 new_message 之前）。
func (ss *session) writer(tr Transport) {
	for {
		select {
		case w := <-ss.out:
			err := tr.Send(w.data)
			if w.done != nil {
				w.done(err)
			}
		case <-ss.stop:
			return
		}
	}
}

// enqueue 队列满或会话已停止时返回 false。
func (ss *session) enqueue(w outbound) bool {
	select {
	case <-ss.stop:
		return false
	default:
	}
	select {
	case ss.out <- w:
		return true
	default:
		return false
	}
}

// closeTransport 停止写协程并关闭连接；之后本会话不再有上行帧。
// 队列里没写出去的帧以 ErrClosed 回调，由发送方走 HTTP 兜底。
func (ss *session) closeTransport(code int, reason string) {
	select {
	case <-ss.stop:
	default:
		close(ss.stop)
	}
	if ss.transport != nil {
		_ = ss.transport.Close(code, reason)
		ss.transport = nil
	}
	ss.drain()
}

// drain 在事件循环里取出残留帧，回调放到独立协程，避免回调 post 时阻塞循环。
func (ss *session) drain() {
	var left []outbound
loop:
	for {
		select {
		case w := <-ss.out:
			if w.done != nil {
				left = append(left, w)
			}
		default:
			break loop
		}
	}
	if len(left) == 0 {
		return
	}
	safe.SafeGo("session-drain", func() {
		for _, w := range left {
			w.done(errs.ErrClosed.WrapMsg("session closed before write"))
		}
	})
}

// teardown 额外取消重连定时器。
func (ss *session) teardown(code int, reason string) {
	if ss.retry != nil {
		ss.retry.Stop()
		ss.retry = nil
	}
	ss.closeTransport(code, reason)
}

// sessionHandler 把传输层回调投递回事件循环，并带上会话代号用于丢弃过期事件。
type sessionHandler struct {
	s   *Synchronizer
	gen uint64
}

func (h *sessionHandler) OnOpen() {
	h.s.post(func() { h.s.onOpen(h.gen) })
}

func (h *sessionHandler) OnMessage(data []byte) {
	h.s.post(func() { h.s.onFrame(h.gen, data) })
}

func (h *sessionHandler) OnError(err error) {
	h.s.post(func() { h.s.onError(h.gen, err) })
}

func (h *sessionHandler) OnClose(code int, reason string) {
	h.s.post(func() { h.s.onClose(h.gen, code, reason) })
}

// ===== 状态机（以下方法只在事件循环中调用） =====

// active 当前代号对应的会话，否则 nil。
func (s *Synchronizer) active(gen uint64) *session {
	if s.sess == nil || s.sess.gen != gen {
		return nil
	}
	return s.sess
}

// openSession Disconnected -> Connecting。
func (s *Synchronizer) openSession(ticketID string) {
	s.gen++
	ss := newSession(s.gen, ticketID, s.cfg.SendQueue)
	s.sess = ss
	s.metrics.SessionOpened()
	s.log.Info("session connecting", zap.String("ticketId", ticketID), zap.String("session", ss.id), zap.Uint64("gen", ss.gen))

	tr, err := s.transport.Open(ticketID, &sessionHandler{s: s, gen: ss.gen})
	if err != nil {
		s.log.Warn("transport construction failed", zap.String("ticketId", ticketID), zap.Error(err))
		ss.state = model.StateDisconnected
		s.scheduleRetry(ss)
		s.publish(ticketID)
		return
	}
	ss.transport = tr
	safe.SafeGo("session-writer", func() { ss.writer(tr) })
	s.publish(ticketID)
}

// closeSession 任意状态 -> Disconnected，使用主动关闭码。
func (s *Synchronizer) closeSession(reason string) {
	ss := s.sess
	if ss == nil {
		return
	}
	s.sess = nil
	ss.teardown(CloseNormal, reason)
	ss.state = model.StateDisconnected
	s.metrics.SetConnected(false)
	s.log.Info("session closed", zap.String("ticketId", ss.ticketID), zap.String("session", ss.id), zap.String("reason", reason))
	s.publish(ss.ticketID)
}

func (s *Synchronizer) onOpen(gen uint64) {
	ss := s.active(gen)
	if ss == nil || ss.state != model.StateConnecting {
		return
	}
	s.markConnected(ss)

	frame, err := BuildIdentify(ss.ticketID, s.cfg.UserID)
	if err != nil {
		s.log.Error("build identify frame", zap.Error(err))
		return
	}
	if !ss.enqueue(outbound{data: frame}) {
		s.log.Warn("identify not queued", zap.String("ticketId", ss.ticketID))
	}
}

func (s *Synchronizer) markConnected(ss *session) {
	if ss.state == model.StateConnected {
		return
	}
	ss.state = model.StateConnected
	ss.retrying = false
	s.metrics.SetConnected(true)
	s.log.Info("session connected", zap.String("ticketId", ss.ticketID), zap.String("session", ss.id))
	s.publish(ss.ticketID)
}

// onError Connecting -> Disconnected / Connected -> Reconnecting，并安排重连。
func (s *Synchronizer) onError(gen uint64, err error) {
	ss := s.active(gen)
	if ss == nil || ss.retrying {
		return
	}
	s.log.Warn("transport error", zap.String("ticketId", ss.ticketID), zap.String("session", ss.id), zap.Error(err))
	next := model.StateDisconnected
	if ss.state == model.StateConnected {
		next = model.StateReconnecting
	}
	s.dropTransport(ss, CloseAbnormal, "transport error")
	ss.state = next
	s.scheduleRetry(ss)
	s.publish(ss.ticketID)
}

// onClose 主动关闭码不重连，其余 -> Reconnecting。
func (s *Synchronizer) onClose(gen uint64, code int, reason string) {
	ss := s.active(gen)
	if ss == nil || ss.retrying {
		return
	}
	s.log.Info("transport closed", zap.String("ticketId", ss.ticketID), zap.Int("code", code), zap.String("reason", reason))
	s.dropTransport(ss, code, reason)
	if code == CloseNormal {
		ss.state = model.StateDisconnected
		s.publish(ss.ticketID)
		return
	}
	ss.state = model.StateReconnecting
	s.scheduleRetry(ss)
	s.publish(ss.ticketID)
}

// dropTransport 关闭底层连接但保留会话（等待重连）。
func (s *Synchronizer) dropTransport(ss *session, code int, reason string) {
	ss.closeTransport(code, reason)
	s.metrics.SetConnected(false)
}

// scheduleRetry 固定退避后重连；触发时会话仍是当前会话才继续。
func (s *Synchronizer) scheduleRetry(ss *session) {
	if ss.retrying {
		return
	}
	ss.retrying = true
	s.metrics.ReconnectScheduled()
	gen, ticketID := ss.gen, ss.ticketID
	s.log.Info("reconnect scheduled", zap.String("ticketId", ticketID), zap.Duration("delay", s.cfg.ReconnectDelay))
	ss.retry = time.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.post(func() { s.retryFire(gen, ticketID) })
	})
}

func (s *Synchronizer) retryFire(gen uint64, ticketID string) {
	ss := s.active(gen)
	if ss == nil || s.current != ticketID {
		return
	}
	ss.retry = nil
	s.openSession(ticketID)
}

// sessionState 当前会话状态（无会话视为 Disconnected）。
func (s *Synchronizer) sessionState() model.SessionState {
	if s.sess == nil {
		return model.StateDisconnected
	}
	return s.sess.state
}

func (s *Synchronizer) connectedTo(ticketID string) *session {
	if s.sess == nil || s.sess.ticketID != ticketID || s.sess.state != model.StateConnected {
		return nil
	}
	return s.sess
}

var errQueueFull = errs.ErrSendFailed.WithDetail("transport queue full")
