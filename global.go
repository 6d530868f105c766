package nature

import (
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	Logger = zerolog.Nop()
	// Redis is nil unless a cache host is configured.
	Redis *redis.Client
)
