package nature

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type AppConfig struct {
	Mode         string
	ApiPort      string
	RealtimePort string
	// LLM selects the code-generation collaborator. An empty provider means no
	// collaborator: every function falls back to the deterministic stub.
	LLM struct {
		Provider   string // "", "ollama", "openai", "anthropic", "googleai"
		Model      string
		OllamaHost string
		APIKey     string
		Timeout    time.Duration
	}
	Recovery struct {
		MaxRegenerations int
	}
	Sandbox struct {
		MaxSteps uint64
		FileRoot string
	}
	SessionDSN      string
	ConnectionsFile string
	NatsConfig      struct {
		URL      string
		TenantID string
	}
	RedisConfig struct {
		Host     string
		Port     string
		Password string
		DB       int
		TTL      time.Duration
	}
	JWTSecret string
}

var config = DefaultConfig()

// DefaultConfig returns a configuration usable without any environment.
func DefaultConfig() AppConfig {
	var cfg AppConfig
	cfg.Mode = "dev"
	cfg.ApiPort = ":8080"
	cfg.RealtimePort = ":8081"
	cfg.LLM.OllamaHost = "http://localhost:11434"
	cfg.LLM.Timeout = 60 * time.Second
	cfg.Recovery.MaxRegenerations = 2
	cfg.Sandbox.MaxSteps = 10_000_000
	cfg.Sandbox.FileRoot = "sandbox"
	cfg.SessionDSN = ":memory:"
	cfg.NatsConfig.TenantID = "default"
	cfg.RedisConfig.Port = "6379"
	cfg.RedisConfig.TTL = 24 * time.Hour
	return cfg
}

// InitConfig loads envfile (a missing file is not an error, the process
// environment is used as is) and initializes the global Logger.
func InitConfig(envfile string) {
	Logger = initLogger()
	if err := godotenv.Load(envfile); err != nil {
		Logger.Debug().Str("file", envfile).Msg("No env file loaded, using process environment")
	}

	def := DefaultConfig()
	cfg := def
	cfg.Mode = GetEnv("RUN_MODE", def.Mode)
	cfg.ApiPort = GetEnv("API_PORT", def.ApiPort)
	cfg.RealtimePort = GetEnv("REALTIME_PORT", def.RealtimePort)
	cfg.LLM.Provider = strings.ToLower(GetEnv("LLM_PROVIDER", ""))
	cfg.LLM.Model = GetEnv("LLM_MODEL", def.LLM.Model)
	cfg.LLM.OllamaHost = GetEnv("OLLAMA_HOST", def.LLM.OllamaHost)
	cfg.LLM.APIKey = GetEnv("LLM_API_KEY", "")
	cfg.LLM.Timeout = getDurationEnvOrDefault("LLM_TIMEOUT", def.LLM.Timeout)
	cfg.Recovery.MaxRegenerations = getIntEnvOrDefault("MAX_REGENERATIONS", def.Recovery.MaxRegenerations)
	cfg.Sandbox.MaxSteps = uint64(getIntEnvOrDefault("SANDBOX_MAX_STEPS", int(def.Sandbox.MaxSteps)))
	cfg.Sandbox.FileRoot = GetEnv("SANDBOX_FILE_ROOT", def.Sandbox.FileRoot)
	cfg.SessionDSN = GetEnv("SESSION_DSN", def.SessionDSN)
	cfg.ConnectionsFile = GetEnv("CONNECTIONS_FILE", "")
	cfg.NatsConfig.URL = GetEnv("NATS_URL", "")
	cfg.NatsConfig.TenantID = GetEnv("TENANT_ID", def.NatsConfig.TenantID)
	cfg.RedisConfig.Host = GetEnv("REDIS_HOST", "")
	cfg.RedisConfig.Port = GetEnv("REDIS_PORT", def.RedisConfig.Port)
	cfg.RedisConfig.Password = GetEnv("REDIS_PASSWORD", "")
	cfg.RedisConfig.DB = getIntEnvOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.TTL = getDurationEnvOrDefault("REDIS_TTL", def.RedisConfig.TTL)
	cfg.JWTSecret = GetEnv("JWT_SECRET", "")
	config = cfg

	if config.Mode != "dev" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func GetConfig() AppConfig {
	return config
}

func GetEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func initLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
		NoColor:    false,
		FormatLevel: func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("  %s  ", i)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("%s=", i)
		},
		FormatFieldValue: func(i interface{}) string {
			return fmt.Sprintf("%s", i)
		},
	}

	return zerolog.New(output).With().Timestamp().Caller().Logger()
}
