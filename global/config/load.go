package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"PPDesk/tools/errs"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load 顺序：默认值 -> yaml 文件 -> .env（不覆盖已有环境变量）-> DESK_* 环境变量。
// path/envFile 为空时跳过对应步骤；envFile 不存在时忽略。
func Load(path, envFile string) (AppConfig, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, errs.WrapMsg(err, "read config", "path", path)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, errs.ErrArgs.WrapMsg("parse config", "path", path, "err", err.Error())
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return c, errs.WrapMsg(err, "load env file", "path", envFile)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return c, err
	}
	c.Normalize()
	return c, c.Validate()
}

type lookupFunc func(string) (string, bool)

type envReader struct {
	lookup lookupFunc
	err    error
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func (r *envReader) list(key string, dst *[]string) {
	if v, ok := r.lookup(key); ok {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
	}
}

func (r *envReader) integer(key string, dst *int) {
	if v, ok := r.lookup(key); ok && r.err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			r.err = errs.ErrArgs.WrapMsg("invalid integer", "env", key, "value", v)
			return
		}
		*dst = n
	}
}

func (r *envReader) i64(key string, dst *int64) {
	var n = int(*dst)
	r.integer(key, &n)
	*dst = int64(n)
}

func (r *envReader) boolean(key string, dst *bool) {
	if v, ok := r.lookup(key); ok && r.err == nil {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			r.err = errs.ErrArgs.WrapMsg("invalid bool", "env", key, "value", v)
			return
		}
		*dst = b
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	if v, ok := r.lookup(key); ok && r.err == nil {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			r.err = errs.ErrArgs.WrapMsg("invalid duration", "env", key, "value", v)
			return
		}
		*dst = d
	}
}

func (c *AppConfig) applyEnv(lookup lookupFunc) error {
	r := &envReader{lookup: lookup}
	r.str("DESK_LOG_LEVEL", &c.Log.Level)
	r.i64("DESK_NODE_ID", &c.NodeID)

	r.str("DESK_USER_ID", &c.Identity.UserID)
	r.str("DESK_USER_NAME", &c.Identity.UserName)
	r.str("DESK_ORIGIN", &c.Identity.Origin)

	r.str("DESK_GATEWAY_MODE", &c.Gateway.Mode)
	r.str("DESK_GATEWAY_URL", &c.Gateway.URL)
	r.duration("DESK_RECONNECT_DELAY", &c.Gateway.ReconnectDelay)
	r.duration("DESK_PING_INTERVAL", &c.Gateway.PingInterval)
	r.str("DESK_GATEWAY_SECRET", &c.Gateway.Secret)

	r.str("DESK_API_BASE_URL", &c.API.BaseURL)
	r.duration("DESK_API_TIMEOUT", &c.API.Timeout)

	r.duration("DESK_ECHO_WINDOW", &c.Sync.EchoWindow)

	r.str("DESK_STORAGE_DRIVER", &c.Storage.Driver)
	r.str("DESK_REDIS_ADDR", &c.Storage.Redis.Addr)
	r.str("DESK_REDIS_PASSWORD", &c.Storage.Redis.Password)
	r.integer("DESK_REDIS_DB", &c.Storage.Redis.DB)
	r.str("DESK_BADGER_PATH", &c.Storage.Badger.Path)

	r.boolean("DESK_NATS_ENABLED", &c.Nats.Enabled)
	r.list("DESK_NATS_SERVERS", &c.Nats.Servers)
	r.str("DESK_NATS_USER", &c.Nats.User)
	r.str("DESK_NATS_PASSWORD", &c.Nats.Password)
	r.boolean("DESK_NATS_JETSTREAM", &c.Nats.JetStream)

	r.str("DESK_CONSOLE_ADDR", &c.Console.Addr)
	r.str("DESK_CONSOLE_SECRET", &c.Console.Secret)
	r.list("DESK_CONSOLE_ORIGINS", &c.Console.AllowedOrigins)
	return r.err
}
