package chat

import (
	"sync"

	"PPDesk/module/chat/model"
	"PPDesk/tools/safe"
)

// subscriber 每个订阅者一个缓冲队列 + 一个消费协程，慢订阅者不阻塞事件循环。
type subscriber struct {
	id   uint64
	ch   chan model.Update
	fn   func(model.Update)
	stop chan struct{}
	once sync.Once
}

func (s *subscriber) close() { s.once.Do(func() { close(s.stop) }) }

func (s *subscriber) run() {
	for {
		select {
		case u := <-s.ch:
			s.deliver(u)
		case <-s.stop:
			return
		}
	}
}

func (s *subscriber) deliver(u model.Update) {
	defer safe.Recover("subscriber")
	s.fn(u)
}

// offer 非阻塞投递；队列满时丢弃最旧的快照（快照是全量状态，丢旧不丢新）。
func (s *subscriber) offer(u model.Update) {
	for i := 0; i < 2; i++ {
		select {
		case s.ch <- u:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Fanout 把快照广播给所有订阅者。
type Fanout struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	next   uint64
	buffer int
	closed bool
}

func NewFanout(buffer int) *Fanout {
	if buffer <= 0 {
		buffer = 16
	}
	return &Fanout{subs: make(map[uint64]*subscriber), buffer: buffer}
}

// Subscribe 返回订阅 id 与幂等的退订函数。
func (f *Fanout) Subscribe(fn func(model.Update)) (uint64, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	sub := &subscriber{id: f.next, ch: make(chan model.Update, f.buffer), fn: fn, stop: make(chan struct{})}
	if f.closed {
		return sub.id, func() {}
	}
	f.subs[sub.id] = sub
	go sub.run()
	return sub.id, func() { f.remove(sub.id) }
}

func (f *Fanout) remove(id uint64) {
	f.mu.Lock()
	sub, ok := f.subs[id]
	delete(f.subs, id)
	f.mu.Unlock()
	if ok {
		sub.close()
	}
}

func (f *Fanout) Broadcast(u model.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		sub.offer(u)
	}
}

// SendTo 只发给一个订阅者（用于订阅时的首个快照）。
func (f *Fanout) SendTo(id uint64, u model.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[id]; ok {
		sub.offer(u)
	}
}

func (f *Fanout) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[uint64]*subscriber)
	f.closed = true
	f.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}
