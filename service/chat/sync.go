package chat

import (
	"context"
	"strings"
	"sync"

	"PPDesk/logger"
	"PPDesk/module/chat/message"
	"PPDesk/module/chat/model"
	"PPDesk/tools/errs"
	"PPDesk/tools/safe"

	"go.uber.org/zap"
)

// Option 注入外部协作者。
type Option func(*Synchronizer)

// WithTransport 推送传输工厂（websocket 或模拟网关）。
func WithTransport(f TransportFactory) Option { return func(s *Synchronizer) { s.transport = f } }

// WithAPI REST 历史与 HTTP 兜底发送；nil 表示不可用。
func WithAPI(api MessageAPI) Option { return func(s *Synchronizer) { s.api = api } }

// WithCache 历史拉取失败时的本地兜底。
func WithCache(c Cache) Option { return func(s *Synchronizer) { s.cache = c } }

func WithMetrics(m *Metrics) Option { return func(s *Synchronizer) { s.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(s *Synchronizer) { s.log = l } }

// Synchronizer 维护一个会话的有序消息日志：乐观回显、推送事件、推送历史回放、HTTP 兜底结果
// 全部汇入同一个事件循环，状态只被该协程读写。
type Synchronizer struct {
	cfg       Config
	transport TransportFactory
	api       MessageAPI
	cache     Cache
	metrics   *Metrics
	log       *zap.Logger

	rec        *message.Reconciler
	norm       *message.Normalizer
	dispatcher *Dispatcher
	fanout     *Fanout

	ctx    context.Context // Close 时取消，约束后台网络调用
	cancel context.CancelFunc

	events    chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// ---- 以下只在事件循环内访问 ----
	convs    map[string]*message.Sequence
	current  string
	epoch    uint64 // 每次打开会话 +1，用于丢弃过期的历史结果
	sess     *session
	gen      uint64
	revision uint64
}

// New 启动事件循环。未注入传输时使用 websocket 传输（默认网关地址）。
func New(cfg Config, opts ...Option) *Synchronizer {
	cfg.norm()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan func(), 256),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		convs:  make(map[string]*message.Sequence),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Named("chat.sync")
	}
	if s.transport == nil {
		s.transport = NewWSTransportFactory(WSConfig{URL: DefaultGatewayURL, Logger: s.log})
	}
	s.rec = message.NewReconciler(cfg.reconcilerConfig())
	s.norm = message.NewNormalizer()
	s.fanout = NewFanout(cfg.SubscriberBuffer)
	s.dispatcher = defaultDispatcher()

	go s.loop()
	return s
}

func (s *Synchronizer) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.events:
			s.run(fn)
		case <-s.quit:
			return
		}
	}
}

func (s *Synchronizer) run(fn func()) {
	defer safe.Recover("chat.sync.loop")
	fn()
}

// post 投递到事件循环；循环已停止时返回 false。
func (s *Synchronizer) post(fn func()) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.events <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// call 投递并等待执行完成。
func (s *Synchronizer) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !s.post(func() {
		defer close(finished)
		fn()
	}) {
		return errs.ErrClosed.Wrap()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errs.ErrClosed.Wrap()
	}
}

// ===== 公共 API =====

// OpenConversation 关闭旧会话（如有），为 ticketID 建立唯一的推送会话，并在内存里没有真实消息时加载历史。
func (s *Synchronizer) OpenConversation(ctx context.Context, ticketID string) error {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return errs.ErrArgs.WrapMsg("ticketId is empty")
	}
	return s.call(ctx, func() {
		if s.current == ticketID && s.sess != nil {
			return
		}
		s.closeSession("switch conversation")
		s.current = ticketID
		s.epoch++
		s.sequence(ticketID)
		s.openSession(ticketID)
		s.loadHistory(ticketID)
	})
}

// CloseConversation 以主动关闭码断开当前会话；消息保留在内存。
func (s *Synchronizer) CloseConversation(ctx context.Context) error {
	return s.call(ctx, func() {
		s.closeSession("conversation closed")
		s.current = ""
	})
}

// Clear 断开会话并丢弃所有会话的内存消息。
func (s *Synchronizer) Clear(ctx context.Context) error {
	return s.call(ctx, func() {
		s.closeSession("cleared")
		s.current = ""
		s.convs = make(map[string]*message.Sequence)
		s.publish("")
	})
}

// Messages 返回某会话消息的副本。
func (s *Synchronizer) Messages(ticketID string) []model.Message {
	var out []model.Message
	_ = s.call(context.Background(), func() {
		if seq, ok := s.convs[ticketID]; ok {
			out = seq.Messages()
		}
	})
	if out == nil {
		out = []model.Message{}
	}
	return out
}

// Connected 当前会话是否已连接。
func (s *Synchronizer) Connected() bool {
	return s.State() == model.StateConnected
}

func (s *Synchronizer) State() model.SessionState {
	st := model.StateDisconnected
	_ = s.call(context.Background(), func() { st = s.sessionState() })
	return st
}

// Current 当前打开的会话 id，没有则为空。
func (s *Synchronizer) Current() string {
	var cur string
	_ = s.call(context.Background(), func() { cur = s.current })
	return cur
}

// Snapshot 当前会话的快照。
func (s *Synchronizer) Snapshot() model.Update {
	var u model.Update
	_ = s.call(context.Background(), func() { u = s.snapshot(s.current) })
	return u
}

// Subscribe 注册快照回调；订阅后立刻收到一次当前快照。返回退订函数。
func (s *Synchronizer) Subscribe(fn func(model.Update)) (unsubscribe func()) {
	id, unsub := s.fanout.Subscribe(fn)
	s.post(func() { s.fanout.SendTo(id, s.snapshot(s.current)) })
	return unsub
}

// Close 停止事件循环并断开会话。可重复调用。
func (s *Synchronizer) Close() error {
	s.closeOnce.Do(func() {
		finished := make(chan struct{})
		if s.post(func() {
			defer close(finished)
			s.closeSession("synchronizer closed")
		}) {
			<-finished
		}
		s.cancel()
		close(s.quit)
		<-s.done
		s.fanout.Close()
	})
	return nil
}

// ===== 事件循环内部 =====

func (s *Synchronizer) sequence(ticketID string) *message.Sequence {
	seq, ok := s.convs[ticketID]
	if !ok {
		seq = message.NewSequence()
		s.convs[ticketID] = seq
	}
	return seq
}

func (s *Synchronizer) snapshot(ticketID string) model.Update {
	u := model.Update{
		ConversationID: ticketID,
		Messages:       []model.Message{},
		State:          model.StateDisconnected,
		Revision:       s.revision,
	}
	if seq, ok := s.convs[ticketID]; ok {
		u.Messages = seq.Messages()
	}
	if s.sess != nil && s.sess.ticketID == ticketID {
		u.State = s.sess.state
		u.Connected = s.sess.state == model.StateConnected
	}
	return u
}

// publish 任何可见状态变化后调用。
func (s *Synchronizer) publish(ticketID string) {
	s.revision++
	s.fanout.Broadcast(s.snapshot(ticketID))
}

// applyInbound 对账一条入站消息并计数。
func (s *Synchronizer) applyInbound(ticketID string, m model.Message) message.Outcome {
	out := s.rec.Apply(s.sequence(ticketID), m)
	s.metrics.Reconciled(out.String())
	if out != message.Duplicate {
		s.log.Debug("message reconciled", zap.String("ticketId", ticketID), zap.String("id", m.ID), zap.Stringer("outcome", out))
	}
	return out
}

func (s *Synchronizer) replay(ticketID string, msgs []model.Message) {
	for _, out := range s.rec.Replay(s.sequence(ticketID), msgs) {
		s.metrics.Reconciled(out.String())
	}
}

// onFrame 解析并分发一帧；畸形帧记录后丢弃。
func (s *Synchronizer) onFrame(gen uint64, data []byte) {
	ss := s.active(gen)
	if ss == nil {
		return
	}
	f, err := ParseFrameJSON(data)
	if err != nil {
		s.dropFrame(ss, data, err)
		return
	}
	if f.TicketID == "" {
		f.TicketID = ss.ticketID
	}
	// 一条连接只属于一个工单
	if f.TicketID != ss.ticketID {
		s.dropFrame(ss, data, errs.ErrMalformedFrame.WrapMsg("frame for another ticket", "ticketId", f.TicketID))
		return
	}
	if err := s.dispatcher.Dispatch(s, ss, f); err != nil {
		s.dropFrame(ss, data, err)
	}
}

func (s *Synchronizer) dropFrame(ss *session, data []byte, err error) {
	s.metrics.FrameDropped()
	sample := data
	if len(sample) > 256 {
		sample = sample[:256]
	}
	s.log.Warn("frame dropped", zap.String("ticketId", ss.ticketID), zap.Error(err), zap.ByteString("sample", sample), zap.Int("len", len(data)))
}
