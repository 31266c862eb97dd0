package natsx

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"PPDesk/logger"
	"PPDesk/module/chat/model"
	"PPDesk/tools/errs"
	"PPDesk/tools/safe"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	DefaultSubjectPrefix = "desk.chat.updates"
	HeaderMsgID          = "Nats-Msg-Id"
	HeaderRevision       = "Desk-Revision"
)

// UpdatePublisher 把同步器快照发布到 <prefix>.<ticketId>。
type UpdatePublisher struct {
	s       Sender
	prefix  string
	Retries int
	Backoff time.Duration
	log     *zap.Logger

	queue chan model.Update
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func NewUpdatePublisher(s Sender, prefix string, log *zap.Logger) *UpdatePublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if log == nil {
		log = logger.Named("chat.natsx")
	}
	p := &UpdatePublisher{
		s:       s,
		prefix:  strings.TrimSuffix(prefix, "."),
		Retries: 2,
		Backoff: 200 * time.Millisecond,
		log:     log,
		queue:   make(chan model.Update, 256),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	safe.SafeGo("chat.natsx.publish", p.loop)
	return p
}

// SubjectToken ticket id 里的 . * > 和空白在 subject 中有含义，替换为 _。
func SubjectToken(ticketID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, ticketID)
}

func (p *UpdatePublisher) Subject(ticketID string) string {
	return p.prefix + "." + SubjectToken(ticketID)
}

// MsgID JetStream 去重键。
func MsgID(u model.Update) string {
	return u.ConversationID + ":" + strconv.FormatUint(u.Revision, 10)
}

// Publish 同步发布一次快照（带重试）。
func (p *UpdatePublisher) Publish(ctx context.Context, u model.Update) error {
	if u.ConversationID == "" {
		return errs.ErrNoConversation.WrapMsg("update without conversation")
	}
	data, err := json.Marshal(u)
	if err != nil {
		return errs.WrapMsg(err, "encode update")
	}
	for i := 0; ; i++ {
		msg := nats.NewMsg(p.Subject(u.ConversationID))
		msg.Data = data
		msg.Header = toHeader(map[string]string{
			HeaderMsgID:    MsgID(u),
			HeaderRevision: strconv.FormatUint(u.Revision, 10),
		})
		err = p.s.PublishMsg(ctx, msg)
		if err == nil || i >= p.Retries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff):
		}
	}
}

// Observe 订阅回调：入队后由后台协程发布，队列满时丢弃最旧的一条。
func (p *UpdatePublisher) Observe(u model.Update) {
	if u.ConversationID == "" {
		return
	}
	for {
		select {
		case <-p.stop:
			return
		case p.queue <- u:
			return
		default:
		}
		select {
		case old := <-p.queue:
			p.log.Debug("publish queue full, dropping update", zap.String("ticketId", old.ConversationID), zap.Uint64("revision", old.Revision))
		default:
		}
	}
}

func (p *UpdatePublisher) loop() {
	defer close(p.done)
	for {
		select {
		case u := <-p.queue:
			p.publishLogged(u)
		case <-p.stop:
			for {
				select {
				case u := <-p.queue:
					p.publishLogged(u)
				default:
					return
				}
			}
		}
	}
}

func (p *UpdatePublisher) publishLogged(u model.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Publish(ctx, u); err != nil {
		p.log.Warn("publish update failed", zap.String("ticketId", u.ConversationID), zap.Uint64("revision", u.Revision), zap.Error(err))
	}
}

// Close 发布完队列中剩余快照后返回，幂等。
func (p *UpdatePublisher) Close() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}
