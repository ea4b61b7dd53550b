package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chenmingyu/reverie/backend/internal/generate"
)

// Config aggregates every runtime setting of the service.
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Engine  EngineConfig
	Archive ArchiveConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	engine, err := loadEngineConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Engine:  engine,
		Archive: ArchiveConfig{DSN: strings.TrimSpace(os.Getenv("ARCHIVE_DSN"))},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the generation backend.
type AIConfig struct {
	Ark   generate.ArkConfig
	Model string
}

// Enabled reports whether credentials and a model are configured.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && c.Ark.Enabled()
}

func loadAIConfig() (AIConfig, error) {
	return AIConfig{
		Ark: generate.ArkConfig{
			APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		},
		Model: strings.TrimSpace(os.Getenv("ARK_MODEL")),
	}, nil
}

// EngineConfig tunes the session engine.
type EngineConfig struct {
	CacheTTL       time.Duration
	WindowSize     int
	Workers        int
	QueueDepth     int
	MaxRetries     int
	RequestTimeout time.Duration
	IdleTimeout    time.Duration
	EvictInterval  time.Duration
}

func loadEngineConfig() (EngineConfig, error) {
	cfg := EngineConfig{
		CacheTTL:       5 * time.Minute,
		WindowSize:     24,
		Workers:        3,
		QueueDepth:     64,
		MaxRetries:     2,
		RequestTimeout: 30 * time.Second,
		IdleTimeout:    30 * time.Minute,
		EvictInterval:  time.Minute,
	}

	var err error
	if cfg.CacheTTL, err = parseDurationEnv("ENGINE_CACHE_TTL", cfg.CacheTTL); err != nil {
		return EngineConfig{}, err
	}
	if cfg.RequestTimeout, err = parseDurationEnv("ENGINE_REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return EngineConfig{}, err
	}
	if cfg.IdleTimeout, err = parseDurationEnv("ENGINE_IDLE_TIMEOUT", cfg.IdleTimeout); err != nil {
		return EngineConfig{}, err
	}
	if cfg.EvictInterval, err = parseDurationEnv("ENGINE_EVICT_INTERVAL", cfg.EvictInterval); err != nil {
		return EngineConfig{}, err
	}
	if cfg.WindowSize, err = parseIntEnv("ENGINE_WINDOW_SIZE", cfg.WindowSize); err != nil {
		return EngineConfig{}, err
	}
	if cfg.Workers, err = parseIntEnv("ENGINE_WORKERS", cfg.Workers); err != nil {
		return EngineConfig{}, err
	}
	if cfg.QueueDepth, err = parseIntEnv("ENGINE_QUEUE_DEPTH", cfg.QueueDepth); err != nil {
		return EngineConfig{}, err
	}
	if cfg.MaxRetries, err = parseIntEnv("ENGINE_MAX_RETRIES", cfg.MaxRetries); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

// ArchiveConfig describes the optional durable message store.
type ArchiveConfig struct {
	DSN string
}

// Enabled reports whether write-through is configured.
func (c ArchiveConfig) Enabled() bool {
	return c.DSN != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
