package storage

import (
	"context"
	"errors"
	"time"

	"PPDesk/module/chat/model"
	"PPDesk/tools/errs"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore 嵌入式快照存储，过期交给 badger 的 entry TTL。
type BadgerStore struct {
	db     *badger.DB
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewBadgerStore(db *badger.DB, prefix string, ttl time.Duration) *BadgerStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &BadgerStore{db: db, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *BadgerStore) key(ticketID string) []byte { return []byte(s.prefix + ticketID) }

func (s *BadgerStore) Load(_ context.Context, ticketID string) ([]model.Message, error) {
	if err := checkTicket(ticketID); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(ticketID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "badger get", "ticketId", ticketID)
	}
	return decodeSnapshot(ticketID, raw)
}

func (s *BadgerStore) Save(_ context.Context, ticketID string, msgs []model.Message) error {
	if err := checkTicket(ticketID); err != nil {
		return err
	}
	b, err := encode(ticketID, msgs, s.now())
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(s.key(ticketID), b)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return errs.WrapMsg(err, "badger set", "ticketId", ticketID)
	}
	return nil
}

func (s *BadgerStore) Delete(_ context.Context, ticketID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(ticketID))
	})
}

func (s *BadgerStore) Close() error { return s.db.Close() }
