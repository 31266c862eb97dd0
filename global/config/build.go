package config

import (
	"time"

	midsec "PPDesk/middleware/security"
	"PPDesk/module/chat/model"
	"PPDesk/service/api"
	"PPDesk/service/chat"
	"PPDesk/service/console"
	"PPDesk/service/natsx"
	"PPDesk/service/storage"
	"PPDesk/service/storage/badgerdb"
	deskredis "PPDesk/service/storage/redis"
	"PPDesk/tools/security"
)

func (c AppConfig) origin() model.Origin {
	o, _ := model.ParseOrigin(c.Identity.Origin)
	return o
}

// ChatConfig 同步器配置。
func (c AppConfig) ChatConfig() chat.Config {
	return chat.Config{
		UserID:           c.Identity.UserID,
		UserName:         c.Identity.UserName,
		Origin:           c.origin(),
		ReconnectDelay:   c.Gateway.ReconnectDelay,
		ServerIDPrefix:   c.Sync.ServerIDPrefix,
		LocalIDPrefix:    c.Sync.LocalIDPrefix,
		EchoWindow:       c.Sync.EchoWindow,
		SendQueue:        c.Sync.SendQueue,
		SubscriberBuffer: c.Sync.SubscriberBuffer,
	}
}

// JWTOptions 网关与 REST 共用的签名配置；Secret 为空时 Enabled()=false。
func (c AppConfig) JWTOptions() security.Options {
	o := security.DefaultOptions([]byte(c.Gateway.Secret))
	o.TTL = c.Gateway.TokenTTL
	return o
}

// Tokens 网关令牌源；未配置密钥时返回 nil。
func (c AppConfig) Tokens() *security.TokenSource {
	o := c.JWTOptions()
	if !o.Enabled() {
		return nil
	}
	return security.NewTokenSource(o, c.Identity.UserID, c.Identity.UserName, c.Identity.Origin)
}

func (c AppConfig) WSConfig() chat.WSConfig {
	w := chat.WSConfig{
		URL:          c.Gateway.URL,
		PingInterval: c.Gateway.PingInterval,
		DialTimeout:  c.Gateway.DialTimeout,
	}
	if ts := c.Tokens(); ts != nil {
		w.Tokens = ts
	}
	return w
}

func (c AppConfig) SimConfig() chat.SimConfig {
	return chat.SimConfig{Latency: c.Gateway.SimLatency, ServerIDPrefix: c.Sync.ServerIDPrefix}
}

// TransportFactory 按 gateway.mode 选择传输。
func (c AppConfig) TransportFactory() chat.TransportFactory {
	if c.Gateway.Mode == GatewaySimulated {
		return chat.NewSimTransportFactory(c.SimConfig())
	}
	return chat.NewWSTransportFactory(c.WSConfig())
}

// APIConfig ok=false 表示没有配置 REST 接口。
func (c AppConfig) APIConfig() (api.Config, bool) {
	if c.API.BaseURL == "" {
		return api.Config{}, false
	}
	a := api.Config{BaseURL: c.API.BaseURL, Timeout: c.API.Timeout, RetryCount: c.API.Retries}
	if ts := c.Tokens(); ts != nil {
		a.Tokens = ts
	}
	return a, true
}

func (c AppConfig) StorageConfig() storage.Config {
	s := storage.Config{
		Driver: c.Storage.Driver,
		TTL:    c.Storage.TTL,
		Prefix: c.Storage.Prefix,
		Redis: deskredis.Config{
			Addr:     c.Storage.Redis.Addr,
			Password: c.Storage.Redis.Password,
			DB:       c.Storage.Redis.DB,
			PoolSize: c.Storage.Redis.PoolSize,
		},
	}
	if c.Storage.Badger.InMemory {
		s.Badger = badgerdb.InMemoryConfig()
	} else {
		s.Badger = badgerdb.DefaultConfig(c.Storage.Badger.Path)
		s.Badger.SyncWrites = c.Storage.Badger.SyncWrites
	}
	return s
}

// NatsConfig ok=false 表示未启用快照发布。
func (c AppConfig) NatsConfig() (natsx.Config, bool) {
	if !c.Nats.Enabled {
		return natsx.Config{}, false
	}
	n := natsx.Config{
		Servers:  c.Nats.Servers,
		User:     c.Nats.User,
		Password: c.Nats.Password,
		Mode:     natsx.Core,
	}
	if c.Nats.JetStream {
		n.Mode = natsx.JetStream
	}
	return n, true
}

func (c AppConfig) ConsoleConfig() console.Config {
	cc := console.Config{Addr: c.Console.Addr, AllowedOrigins: c.Console.AllowedOrigins}
	if c.Console.Secret != "" {
		o := security.DefaultOptions([]byte(c.Console.Secret))
		o.TTL = time.Hour
		cc.Auth = midsec.DefaultOptions(o)
	}
	return cc
}
