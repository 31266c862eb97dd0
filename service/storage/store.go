package storage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"PPDesk/module/chat/model"
	"PPDesk/tools/errs"
)

// Store 会话消息的本地快照：历史拉取失败时的兜底来源。
type Store interface {
	Load(ctx context.Context, ticketID string) ([]model.Message, error)
	Save(ctx context.Context, ticketID string, msgs []model.Message) error
	Delete(ctx context.Context, ticketID string) error
	Close() error
}

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverBadger = "badger"
	DriverNone   = "none"

	DefaultTTL    = 7 * 24 * time.Hour
	DefaultPrefix = "desk:chat:msgs:"
)

// snapshot 落盘格式。
type snapshot struct {
	TicketID string          `json:"ticketId"`
	SavedAt  time.Time       `json:"savedAt"`
	Messages []model.Message `json:"messages"`
}

func encode(ticketID string, msgs []model.Message, now time.Time) ([]byte, error) {
	b, err := json.Marshal(snapshot{TicketID: ticketID, SavedAt: now, Messages: msgs})
	if err != nil {
		return nil, errs.WrapMsg(err, "encode snapshot", "ticketId", ticketID)
	}
	return b, nil
}

func decodeSnapshot(ticketID string, b []byte) ([]model.Message, error) {
	var s snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, errs.ErrMalformedFrame.WrapMsg("decode snapshot", "ticketId", ticketID, "err", err.Error())
	}
	return s.Messages, nil
}

func checkTicket(ticketID string) error {
	if strings.TrimSpace(ticketID) == "" {
		return errs.ErrArgs.WrapMsg("ticket id is empty")
	}
	return nil
}
