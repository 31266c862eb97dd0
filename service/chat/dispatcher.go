package chat

import (
	"PPDesk/tools/errs"
)

// FrameHandler 处理一种下行帧，运行在事件循环内。
type FrameHandler func(s *Synchronizer, sess *session, f Frame) error

// Dispatcher 按帧类型路由；未注册类型交给 fallback。
type Dispatcher struct {
	handlers map[string]FrameHandler
	fallback FrameHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]FrameHandler)}
}

func (d *Dispatcher) Register(typ string, h FrameHandler) { d.handlers[typ] = h }

func (d *Dispatcher) SetFallback(h FrameHandler) { d.fallback = h }

func (d *Dispatcher) GetHandler(typ string) FrameHandler {
	if h, ok := d.handlers[typ]; ok {
		return h
	}
	return d.fallback
}

func (d *Dispatcher) Dispatch(s *Synchronizer, sess *session, f Frame) error {
	h := d.GetHandler(f.Type)
	if h == nil {
		return errs.ErrMalformedFrame.WrapMsg("no handler", "type", f.Type)
	}
	return h(s, sess, f)
}
