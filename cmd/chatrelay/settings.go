package main

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

type Settings struct {
	Port     int    `env:"PORT,default=8000"`
	BasePath string `env:"BASE_PATH,default=/realtime"`

	JWTSecret   string `env:"JWT_SECRET,required=true"`
	JWTAudience string `env:"JWT_AUDIENCE"`
	JWTIssuer   string `env:"JWT_ISSUER"`
	APIKeys     string `env:"API_KEYS"`

	LogEncoding string `env:"LOG_ENCODING,default=console"`

	PersistenceDriver string `env:"PERSISTENCE_DRIVER,default=sqlite"`
	SQLitePath        string `env:"SQLITE_PATH,default=chronodil-chat.db"`
	DatabaseURL       string `env:"DATABASE_URL"`
	MongoDBURI        string `env:"MONGODB_URI"`
	MongoDBDatabase   string `env:"MONGODB_DATABASE,default=chronodil"`

	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL,default=chronodil:chat:rooms"`

	PersistenceTimeout time.Duration `env:"PERSISTENCE_TIMEOUT,default=5s"`
	AuthTimeout        time.Duration `env:"AUTH_TIMEOUT,default=10s"`
	PingInterval       time.Duration `env:"PING_INTERVAL,default=30s"`
	SendBufferSize     int           `env:"SEND_BUFFER_SIZE,default=64"`
	ReadLimit          int           `env:"READ_LIMIT,default=65536"`
	MaxContentLength   int           `env:"MAX_CONTENT_LENGTH,default=10000"`
	AllowedOrigins     string        `env:"ALLOWED_ORIGINS"`
}

func (s Settings) APIKeyList() []string {
	return splitList(s.APIKeys)
}

func (s Settings) AllowedOriginList() []string {
	return splitList(s.AllowedOrigins)
}

func splitList(value string) []string {
	return lo.Compact(lo.Map(strings.Split(value, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	}))
}
