package console

import (
	"net/http"
	"time"

	"PPDesk/module/chat/model"
	"PPDesk/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 来源检查由 middleware.Origin 完成
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stream 把快照推给一个 websocket 客户端；慢客户端只保留最新的快照。
func (s *Server) stream(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Info("upgrade websocket failed", zap.Error(err))
		return
	}
	defer ws.Close()

	updates := make(chan model.Update, s.cfg.WSBuffer)
	unsub := s.sync.Subscribe(func(u model.Update) {
		for {
			select {
			case updates <- u:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsub()

	done := make(chan struct{})
	safe.SafeGo("console.ws.read", func() {
		defer close(done)
		pongWait := 2 * s.cfg.PingInterval
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(pongWait)) })
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case u := <-updates:
			_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := ws.WriteJSON(u); err != nil {
				s.log.Debug("push snapshot failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
