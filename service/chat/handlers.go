package chat

import (
	"strings"

	"PPDesk/tools/decode"
	"PPDesk/tools/errs"

	"go.uber.org/zap"
)

func defaultDispatcher() *Dispatcher {
	d := NewDispatcher()
	d.Register(FrameConnectionEstablished, handleConnected)
	d.Register(FrameIdentifySuccess, handleConnected)
	d.Register(FrameError, handleServerError)
	d.Register(FrameMessageHistory, handleHistory)
	d.Register(FrameNewMessage, handleMessage)
	d.Register(FrameMessage, handleMessage)
	d.Register(FrameMessageReceived, handleMessage)
	d.SetFallback(handleUntyped)
	return d
}

func handleConnected(s *Synchronizer, ss *session, f Frame) error {
	s.log.Debug("gateway ack", zap.String("type", f.Type), zap.String("ticketId", ss.ticketID))
	s.markConnected(ss)
	return nil
}

func handleServerError(s *Synchronizer, ss *session, f Frame) error {
	msg, _ := decode.ReadString(f.Raw, "message")
	s.log.Warn("gateway error frame", zap.String("ticketId", ss.ticketID), zap.String("message", msg))
	return nil
}

// handleHistory 推送历史：清空后按顺序回放。
func handleHistory(s *Synchronizer, ss *session, f Frame) error {
	raws, ok := decode.ReadMapSlice(f.Raw, "messages")
	if !ok {
		return errs.ErrMalformedFrame.WrapMsg("message_history without messages array")
	}
	msgs, skipped := s.norm.NormalizeAll(raws)
	if skipped > 0 {
		s.log.Warn("history entries skipped", zap.String("ticketId", f.TicketID), zap.Int("skipped", skipped))
	}
	s.replay(f.TicketID, msgs)
	s.log.Info("history replayed", zap.String("ticketId", f.TicketID), zap.Int("count", len(msgs)), zap.String("source", "push"))
	s.publish(f.TicketID)
	return nil
}

func handleMessage(s *Synchronizer, ss *session, f Frame) error {
	nm, err := s.norm.Normalize(f.Raw)
	if err != nil {
		return err
	}
	if nm.TicketID != "" && nm.TicketID != ss.ticketID {
		return errs.ErrMalformedFrame.WrapMsg("message for another ticket", "ticketId", nm.TicketID)
	}
	s.applyInbound(ss.ticketID, nm.Message)
	s.publish(ss.ticketID)
	return nil
}

// handleUntyped 未知或缺失 type 的帧：带平铺 content 的按单条消息处理。
func handleUntyped(s *Synchronizer, ss *session, f Frame) error {
	content, _ := decode.ReadString(f.Raw, "content")
	if strings.TrimSpace(content) == "" {
		return errs.ErrMalformedFrame.WrapMsg("unrecognised frame", "type", f.Type)
	}
	return handleMessage(s, ss, f)
}

