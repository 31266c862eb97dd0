package config

import "time"

const (
	GatewayWebsocket = "websocket"
	GatewaySimulated = "simulated"
)

// AppConfig deskchat 进程配置（yaml + .env + DESK_* 环境变量）。
type AppConfig struct {
	Log      LogConfig      `yaml:"log"`
	NodeID   int64          `yaml:"nodeId"` // 雪花 id 节点号
	Identity IdentityConfig `yaml:"identity"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	API      APIConfig      `yaml:"api"`
	Sync     SyncConfig     `yaml:"sync"`
	Storage  StorageConfig  `yaml:"storage"`
	Nats     NatsConfig     `yaml:"nats"`
	Console  ConsoleConfig  `yaml:"console"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// IdentityConfig 本端身份：客服（agent）或访客（visitor）。
type IdentityConfig struct {
	UserID   string `yaml:"userId"`
	UserName string `yaml:"userName"`
	Origin   string `yaml:"origin"`
}

type GatewayConfig struct {
	Mode           string        `yaml:"mode"` // websocket | simulated
	URL            string        `yaml:"url"`  // 含 {ticketId}
	ReconnectDelay time.Duration `yaml:"reconnectDelay"`
	PingInterval   time.Duration `yaml:"pingInterval"`
	DialTimeout    time.Duration `yaml:"dialTimeout"`
	Secret         string        `yaml:"secret"` // 非空时握手与 REST 携带 HS256 JWT
	TokenTTL       time.Duration `yaml:"tokenTTL"`
	SimLatency     time.Duration `yaml:"simLatency"`
}

type APIConfig struct {
	BaseURL string        `yaml:"baseUrl"` // 空表示没有 REST 接口
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

type SyncConfig struct {
	EchoWindow       time.Duration `yaml:"echoWindow"`
	ServerIDPrefix   string        `yaml:"serverIdPrefix"`
	LocalIDPrefix    string        `yaml:"localIdPrefix"`
	SendQueue        int           `yaml:"sendQueue"`
	SubscriberBuffer int           `yaml:"subscriberBuffer"`
}

type StorageConfig struct {
	Driver string        `yaml:"driver"` // memory | redis | badger | none
	TTL    time.Duration `yaml:"ttl"`
	Prefix string        `yaml:"prefix"`
	Redis  struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"poolSize"`
	} `yaml:"redis"`
	Badger struct {
		Path       string `yaml:"path"`
		InMemory   bool   `yaml:"inMemory"`
		SyncWrites bool   `yaml:"syncWrites"`
	} `yaml:"badger"`
}

type NatsConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Servers       []string `yaml:"servers"`
	User          string   `yaml:"user"`
	Password      string   `yaml:"password"`
	JetStream     bool     `yaml:"jetStream"`
	SubjectPrefix string   `yaml:"subjectPrefix"`
}

type ConsoleConfig struct {
	Addr           string   `yaml:"addr"`
	Secret         string   `yaml:"secret"` // 非空时 /api/* 需要 bearer JWT
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Default 本地开发可直接运行的默认值。
func Default() AppConfig {
	c := AppConfig{}
	c.Log.Level = "info"
	c.NodeID = 1
	c.Identity.Origin = "agent"
	c.Gateway.Mode = GatewayWebsocket
	c.Gateway.URL = "ws://localhost:8080/api/ws/chat/{ticketId}"
	c.Gateway.ReconnectDelay = 5 * time.Second
	c.Gateway.TokenTTL = 15 * time.Minute
	c.API.Timeout = 10 * time.Second
	c.API.Retries = 2
	c.Sync.EchoWindow = 30 * time.Second
	c.Storage.Driver = "memory"
	c.Storage.TTL = 7 * 24 * time.Hour
	c.Nats.SubjectPrefix = "desk.chat.updates"
	c.Console.Addr = ":8090"
	return c
}
