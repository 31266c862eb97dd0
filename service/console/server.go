package console

import (
	"context"
	"errors"
	"net/http"
	"time"

	"PPDesk/logger"
	"PPDesk/middleware"
	midsec "PPDesk/middleware/security"
	"PPDesk/module/chat/model"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Syncer 控制台需要的同步器能力。
type Syncer interface {
	OpenConversation(ctx context.Context, ticketID string) error
	CloseConversation(ctx context.Context) error
	SendMessage(ctx context.Context, ticketID, content string) (model.Message, error)
	Messages(ticketID string) []model.Message
	Current() string
	State() model.SessionState
	Connected() bool
	Snapshot() model.Update
	Subscribe(fn func(model.Update)) (unsubscribe func())
}

// Config 控制台 HTTP 配置。
type Config struct {
	Addr           string
	Auth           *midsec.Options // nil 或未配置密钥时不鉴权
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer // nil 使用默认注册表
	WSBuffer       int                 // 每个 websocket 客户端的快照缓冲（默认 16）
	PingInterval   time.Duration       // 默认 30s
}

func (c *Config) norm() {
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.Gatherer == nil {
		c.Gatherer = prometheus.DefaultGatherer
	}
	if c.WSBuffer <= 0 {
		c.WSBuffer = 16
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
}

type Server struct {
	cfg    Config
	sync   Syncer
	log    *zap.Logger
	engine *gin.Engine
}

func New(s Syncer, cfg Config, log *zap.Logger) *Server {
	cfg.norm()
	if log == nil {
		log = logger.Named("console")
	}
	srv := &Server{cfg: cfg, sync: s, log: log}
	srv.engine = srv.routes()
	return srv
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	e := gin.New()
	pre := middleware.NewManager()
	pre.Add(middleware.Origin(s.cfg.AllowedOrigins))
	e.Use(middleware.Recovery(s.log), middleware.AccessLog(s.log), pre.Use())

	e.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))

	var auth gin.HandlerFunc
	if s.cfg.Auth != nil && s.cfg.Auth.JWT.Enabled() {
		auth = midsec.Middleware(s.cfg.Auth)
	}
	api := middleware.NewRoutes(e.Group("/api"), auth)
	guarded := middleware.RouteOpt{IsAuth: true}
	api.GET("/status", s.status, guarded)
	api.POST("/conversations/close", s.closeConversation, guarded)
	api.POST("/conversations/:id/open", s.openConversation, guarded)
	api.GET("/conversations/:id/messages", s.messages, guarded)
	api.POST("/conversations/:id/messages", s.send, guarded)
	api.GET("/ws", s.stream, guarded)
	return e
}

// Run 阻塞直到 ctx 取消，然后优雅关闭。
func (s *Server) Run(ctx context.Context) error {
	hs := &http.Server{Addr: s.cfg.Addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("console listening", zap.String("addr", s.cfg.Addr))
		errCh <- hs.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}
