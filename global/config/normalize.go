package config

import (
	"net/url"
	"strings"

	"PPDesk/module/chat/model"
	"PPDesk/tools/errs"
)

// Normalize 补默认值并统一大小写。
func (c *AppConfig) Normalize() {
	d := Default()
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.NodeID <= 0 {
		c.NodeID = d.NodeID
	}
	c.Identity.Origin = strings.ToLower(strings.TrimSpace(c.Identity.Origin))
	if c.Identity.Origin == "" {
		c.Identity.Origin = d.Identity.Origin
	}
	c.Gateway.Mode = strings.ToLower(strings.TrimSpace(c.Gateway.Mode))
	if c.Gateway.Mode == "" {
		c.Gateway.Mode = d.Gateway.Mode
	}
	if c.Gateway.URL == "" {
		c.Gateway.URL = d.Gateway.URL
	}
	if c.Gateway.ReconnectDelay <= 0 {
		c.Gateway.ReconnectDelay = d.Gateway.ReconnectDelay
	}
	if c.Gateway.TokenTTL <= 0 {
		c.Gateway.TokenTTL = d.Gateway.TokenTTL
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.Timeout <= 0 {
		c.API.Timeout = d.API.Timeout
	}
	if c.Sync.EchoWindow <= 0 {
		c.Sync.EchoWindow = d.Sync.EchoWindow
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Storage.TTL <= 0 {
		c.Storage.TTL = d.Storage.TTL
	}
	if c.Nats.SubjectPrefix == "" {
		c.Nats.SubjectPrefix = d.Nats.SubjectPrefix
	}
	if c.Console.Addr == "" {
		c.Console.Addr = d.Console.Addr
	}
}

// Validate 拒绝无法启动的组合。
func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.Identity.UserID) == "" {
		return errs.ErrArgs.WrapMsg("identity.userId is required")
	}
	if _, ok := model.ParseOrigin(c.Identity.Origin); !ok || c.Identity.Origin == string(model.OriginSystem) {
		return errs.ErrArgs.WrapMsg("identity.origin must be agent or visitor", "origin", c.Identity.Origin)
	}
	switch c.Gateway.Mode {
	case GatewayWebsocket:
		u, err := url.Parse(strings.ReplaceAll(c.Gateway.URL, "{ticketId}", "x"))
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return errs.ErrArgs.WrapMsg("gateway.url must be ws:// or wss://", "url", c.Gateway.URL)
		}
		if !strings.Contains(c.Gateway.URL, "{ticketId}") {
			return errs.ErrArgs.WrapMsg("gateway.url must contain {ticketId}", "url", c.Gateway.URL)
		}
	case GatewaySimulated:
	default:
		return errs.ErrArgs.WrapMsg("gateway.mode must be websocket or simulated", "mode", c.Gateway.Mode)
	}
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errs.ErrArgs.WrapMsg("api.baseUrl must be http(s)://host", "url", c.API.BaseURL)
		}
	}
	switch c.Storage.Driver {
	case "memory", "none", "redis":
	case "badger":
		if c.Storage.Badger.Path == "" && !c.Storage.Badger.InMemory {
			return errs.ErrArgs.WrapMsg("storage.badger.path is required")
		}
	default:
		return errs.ErrArgs.WrapMsg("unknown storage.driver", "driver", c.Storage.Driver)
	}
	if c.Nats.Enabled && len(c.Nats.Servers) == 0 {
		return errs.ErrArgs.WrapMsg("nats.servers is required when nats is enabled")
	}
	if c.Sync.SendQueue < 0 || c.Sync.SubscriberBuffer < 0 {
		return errs.ErrArgs.WrapMsg("sync queue sizes must not be negative")
	}
	return nil
}
