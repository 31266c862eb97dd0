package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"PPDesk/module/chat/message"
	"PPDesk/module/chat/model"
	"PPDesk/tools/decode"
	"PPDesk/tools/errs"
	"PPDesk/tools/ids"
	"PPDesk/tools/safe"

	"go.uber.org/zap"
)

// 发送路径
const (
	PathTransport = "transport"
	PathHTTP      = "http"
	PathFailed    = "failed"
)

const sendFailedNotice = "Message could not be delivered. Please try again."

type sendResult struct {
	msg model.Message
	err error
}

// SendMessage 乐观追加一条 pending 本地消息，再经推送连接或 HTTP 兜底发出。
//   - 推送写成功：立即返回 pending 消息，等待回显升级；
//   - 推送写失败或未连接：HTTP POST，返回确认后的消息；
//   - 两条路径都失败：本地消息标记 error，追加系统提示，返回 ErrSendFailed。
//
// ctx 只约束等待，发送结果无论如何都会落到消息日志。
func (s *Synchronizer) SendMessage(ctx context.Context, ticketID, content string) (model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return model.Message{}, errs.ErrArgs.WrapMsg("content is empty")
	}
	ticketID = strings.TrimSpace(ticketID)

	res := make(chan sendResult, 1)
	resolve := func(m model.Message, err error) { res <- sendResult{msg: m, err: err} }

	err := s.call(ctx, func() {
		if ticketID == "" {
			ticketID = s.current
		}
		if ticketID == "" {
			resolve(model.Message{}, errs.ErrNoConversation.WrapMsg("no open conversation"))
			return
		}
		s.startSend(ticketID, content, resolve)
	})
	if err != nil {
		return model.Message{}, err
	}

	select {
	case r := <-res:
		return r.msg, r.err
	case <-ctx.Done():
		return model.Message{}, ctx.Err()
	case <-s.done:
		select {
		case r := <-res:
			return r.msg, r.err
		default:
			return model.Message{}, errs.ErrClosed.Wrap()
		}
	}
}

func (s *Synchronizer) startSend(ticketID, content string, resolve func(model.Message, error)) {
	local := model.Message{
		ID:        s.cfg.LocalIDPrefix + ids.GenerateString(),
		Content:   content,
		Origin:    s.cfg.Origin,
		UserName:  s.cfg.UserName,
		Timestamp: s.cfg.Clock(),
		Pending:   true,
	}
	s.rec.AddLocal(s.sequence(ticketID), local)
	s.publish(ticketID)

	out := model.NewOutbound(local, s.cfg.UserID)
	if ss := s.connectedTo(ticketID); ss != nil {
		frame, err := BuildNewMessage(ticketID, out)
		if err == nil {
			queued := ss.enqueue(outbound{data: frame, done: func(werr error) {
				if !s.post(func() { s.onTransportWritten(ticketID, local, out, werr, resolve) }) {
					resolve(local, errs.ErrClosed.Wrap())
				}
			}})
			if queued {
				return
			}
			err = errQueueFull
		}
		s.log.Warn("transport send unavailable, falling back to http", zap.String("ticketId", ticketID), zap.Error(err))
	}
	s.sendHTTP(ticketID, local, out, resolve)
}

func (s *Synchronizer) onTransportWritten(ticketID string, local model.Message, out model.OutboundMessage, err error, resolve func(model.Message, error)) {
	if err != nil {
		s.log.Warn("transport write failed, falling back to http", zap.String("ticketId", ticketID), zap.String("id", local.ID), zap.Error(err))
		s.sendHTTP(ticketID, local, out, resolve)
		return
	}
	s.metrics.Sent(PathTransport)
	s.armEchoTimeout(ticketID, local.ID)
	if m, ok := s.lookup(ticketID, local.ID); ok {
		resolve(m, nil)
		return
	}
	resolve(local, nil)
}

// armEchoTimeout 推送写成功但窗口内没等到回显时，原地确认。
func (s *Synchronizer) armEchoTimeout(ticketID, localID string) {
	time.AfterFunc(s.cfg.EchoWindow, func() {
		s.post(func() {
			seq, ok := s.convs[ticketID]
			if !ok {
				return
			}
			if s.rec.ConfirmInPlace(seq, localID) {
				s.log.Debug("no echo within window, confirmed in place", zap.String("ticketId", ticketID), zap.String("id", localID))
				s.publish(ticketID)
			}
		})
	})
}

// sendHTTP 在后台 POST，结果投递回事件循环。
func (s *Synchronizer) sendHTTP(ticketID string, local model.Message, out model.OutboundMessage, resolve func(model.Message, error)) {
	if s.api == nil {
		s.onHTTPResult(ticketID, local, nil, errs.ErrSendFailed.WrapMsg("no http api configured"), resolve)
		return
	}
	safe.SafeGo("chat.send.http", func() {
		raw, err := s.api.PostMessage(s.ctx, ticketID, out)
		if !s.post(func() { s.onHTTPResult(ticketID, local, raw, err, resolve) }) {
			resolve(local, errs.ErrClosed.Wrap())
		}
	})
}

func (s *Synchronizer) onHTTPResult(ticketID string, local model.Message, raw map[string]any, err error, resolve func(model.Message, error)) {
	seq := s.sequence(ticketID)
	if err != nil {
		s.metrics.Sent(PathFailed)
		s.log.Error("send failed", zap.String("ticketId", ticketID), zap.String("id", local.ID), zap.Error(err))
		s.rec.MarkFailed(seq, local.ID)
		s.rec.AddSystem(seq, model.Message{
			ID:        SystemIDPrefix + ids.GenerateString(),
			Content:   sendFailedNotice,
			Timestamp: s.cfg.Clock(),
		})
		s.publish(ticketID)
		failed, ok := seq.Get(local.ID)
		if !ok {
			failed = local
		}
		resolve(failed, errs.ErrSendFailed.WrapMsg(err.Error(), "ticketId", ticketID))
		return
	}

	s.metrics.Sent(PathHTTP)
	server := s.serverEcho(raw, local)
	outcome := s.rec.ConfirmLocal(seq, local.ID, server)
	s.log.Info("sent via http", zap.String("ticketId", ticketID), zap.String("localId", local.ID), zap.String("serverId", server.ID), zap.Stringer("outcome", outcome))
	s.publish(ticketID)

	id := local.ID
	if outcome == message.Upgraded || !seq.Has(local.ID) {
		id = server.ID
	}
	if m, ok := seq.Get(id); ok {
		resolve(m, nil)
		return
	}
	local.Pending = false
	resolve(local, nil)
}

// serverEcho 从 POST 响应中取服务端消息；响应没有 id 时返回空 id（原地确认）。
func (s *Synchronizer) serverEcho(raw map[string]any, local model.Message) model.Message {
	server := local
	server.ID = ""
	server.Pending = false
	if raw == nil {
		return server
	}
	for _, obj := range payloadCandidates(raw) {
		if v, ok := obj["id"]; ok && v != nil {
			if id := strings.TrimSpace(fmt.Sprint(v)); id != "" {
				server.ID = id
				break
			}
		}
	}
	if nm, err := s.norm.Normalize(raw); err == nil {
		server.Content = nm.Message.Content
	}
	return server
}

// payloadCandidates 与规范化器相同的顺序：平铺、data、message。
func payloadCandidates(raw map[string]any) []map[string]any {
	out := []map[string]any{raw}
	for _, key := range []string{"data", "message"} {
		if sub, ok := decode.ReadMap(raw, key); ok {
			out = append(out, sub)
		}
	}
	return out
}

func (s *Synchronizer) lookup(ticketID, id string) (model.Message, bool) {
	seq, ok := s.convs[ticketID]
	if !ok {
		return model.Message{}, false
	}
	return seq.Get(id)
}
