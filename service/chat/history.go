package chat

import (
	"strings"

	"PPDesk/module/chat/model"
	"PPDesk/tools/errs"
	"PPDesk/tools/safe"

	"go.uber.org/zap"
)

const (
	placeholderEmpty       = "No messages yet. Start the conversation below."
	placeholderUnavailable = "Message history is unavailable right now. New messages will still appear here."
)

type historyResult struct {
	fetched  []model.Message
	fetchErr error
	cached   []model.Message
}

// hasReal 内存里是否已有占位提示之外的消息。
func (s *Synchronizer) hasReal(ticketID string) bool {
	seq, ok := s.convs[ticketID]
	if !ok {
		return false
	}
	return seq.Any(func(m model.Message) bool { return !strings.HasPrefix(m.ID, PlaceholderIDPrefix) })
}

// loadHistory 首次打开（内存里没有真实消息）时在后台拉取 REST 历史与本地缓存。
func (s *Synchronizer) loadHistory(ticketID string) {
	if s.hasReal(ticketID) {
		return
	}
	epoch := s.epoch
	api, cache := s.api, s.cache
	safe.SafeGo("chat.history", func() {
		var res historyResult
		if api != nil {
			raws, err := api.FetchMessages(s.ctx, ticketID)
			if err != nil {
				res.fetchErr = err
			} else {
				msgs, skipped := s.norm.NormalizeAll(raws)
				if skipped > 0 {
					s.log.Warn("history entries skipped", zap.String("ticketId", ticketID), zap.Int("skipped", skipped))
				}
				res.fetched = msgs
			}
		} else {
			res.fetchErr = errs.ErrHistoryUnavailable.WrapMsg("no http api configured")
		}
		if cache != nil && (res.fetchErr != nil || len(res.fetched) == 0) {
			cached, err := cache.Load(s.ctx, ticketID)
			if err != nil {
				s.log.Warn("cache load failed", zap.String("ticketId", ticketID), zap.Error(err))
			}
			res.cached = cached
		}
		s.post(func() { s.onHistory(ticketID, epoch, res) })
	})
}

// onHistory 会话已切走则丢弃；内存里已有消息时只合并不覆盖。
func (s *Synchronizer) onHistory(ticketID string, epoch uint64, res historyResult) {
	if s.current != ticketID || s.epoch != epoch {
		s.log.Debug("stale history result dropped", zap.String("ticketId", ticketID))
		return
	}
	seq := s.sequence(ticketID)

	switch {
	case res.fetchErr == nil && len(res.fetched) > 0:
		if s.hasReal(ticketID) {
			for _, m := range res.fetched {
				s.applyInbound(ticketID, m)
			}
		} else {
			s.replay(ticketID, res.fetched)
		}
		s.log.Info("history loaded", zap.String("ticketId", ticketID), zap.Int("count", len(res.fetched)), zap.String("source", "http"))

	case s.hasReal(ticketID):
		// 期间已经通过推送拿到消息

	case len(res.cached) > 0:
		restored := make([]model.Message, 0, len(res.cached))
		for _, m := range res.cached {
			if m.Pending {
				// 上次进程退出时仍未确认，无法再确认
				m.Pending = false
				m.Error = true
			}
			restored = append(restored, m)
		}
		s.replay(ticketID, restored)
		s.log.Warn("history served from cache", zap.String("ticketId", ticketID), zap.Int("count", len(restored)), zap.Error(res.fetchErr))

	default:
		text := placeholderEmpty
		if res.fetchErr != nil {
			text = placeholderUnavailable
			s.log.Warn("history unavailable", zap.String("ticketId", ticketID), zap.Error(res.fetchErr))
		}
		s.rec.AddSystem(seq, model.Message{
			ID:        PlaceholderIDPrefix + ticketID,
			Content:   text,
			Timestamp: s.cfg.Clock(),
		})
	}
	s.publish(ticketID)
}
