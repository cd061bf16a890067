package main

import (
	"time"

	"github.com/bloops-games/carousing/internal/auth"
	"github.com/bloops-games/carousing/internal/carousing"
	"github.com/bloops-games/carousing/internal/database"
	"github.com/bloops-games/carousing/internal/i18n"
	"github.com/bloops-games/carousing/internal/notify"
)

const (
	BackendBolt  = "bolt"
	BackendRedis = "redis"
)

type Config struct {
	Debug     bool   `envconfig:"CAROUSING_DEBUG" default:"false"`
	Port      string `envconfig:"CAROUSING_PORT" default:"8080"`
	ProfPort  string `envconfig:"CAROUSING_PROF_PORT"`
	CacheSize int    `envconfig:"CAROUSING_CACHE_SIZE" default:"256"`
	// Backend selects where shared documents live: bolt for a single node, redis for several
	Backend   string `envconfig:"CAROUSING_BACKEND" default:"bolt"`
	RedisAddr string `envconfig:"CAROUSING_REDIS_ADDR" default:"localhost:6379"`
	RedisDB   int    `envconfig:"CAROUSING_REDIS_DB" default:"0"`
	NodeID    string `envconfig:"CAROUSING_NODE_ID"`
	// PresenceTTL is how long a silent node's connections keep counting as online
	PresenceTTL time.Duration `envconfig:"CAROUSING_PRESENCE_TTL" default:"30s"`
	// AllowedOrigins may open the overlay websocket besides pages served from the same host
	AllowedOrigins []string `envconfig:"CAROUSING_ALLOWED_ORIGINS"`

	Auth      auth.Config
	Db        database.Config
	Carousing carousing.Config
	I18n      i18n.Config
	Telegram  notify.TelegramConfig
}
