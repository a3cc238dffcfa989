// Package config loads gateway settings from the environment and an optional
// YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/trivia/go/internal/dbconfig"
	"github.com/mcdev12/trivia/go/internal/room"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	CatalogFile     = "file"
	CatalogPostgres = "postgres"
	CatalogMongo    = "mongo"
)

// DefaultRoomTTL is how long an idle room document is kept by stores that expire keys.
const DefaultRoomTTL = 24 * time.Hour

type Config struct {
	Port           string
	StoreBackend   string
	CatalogBackend string
	QuestionsPath  string
	RedisAddr      string
	RedisPassword  string
	MongoURI       string
	MongoDB        string
	NatsURL        string
	DB             dbconfig.Config
	Game           room.Settings
	RoomTTL        time.Duration
}

// fileConfig is the YAML layout read from CONFIG_PATH.
type fileConfig struct {
	Game struct {
		MaxRounds    int           `yaml:"max_rounds"`
		TurnDuration time.Duration `yaml:"turn_duration"`
		UXDelay      time.Duration `yaml:"ux_delay"`
		RoomTTL      time.Duration `yaml:"room_ttl"`
	} `yaml:"game"`
}

// Load reads CONFIG_PATH when set, then applies environment overrides.
func Load() (Config, error) {
	cfg := Config{
		Port:           getEnv("GATEWAY_PORT", "8081"),
		StoreBackend:   getEnv("STORE_BACKEND", StoreMemory),
		CatalogBackend: getEnv("CATALOG_BACKEND", CatalogFile),
		QuestionsPath:  os.Getenv("QUESTIONS_PATH"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        getEnv("MONGO_DB", "trivia"),
		NatsURL:        os.Getenv("NATS_URL"),
		DB:             dbconfig.NewConfigFromEnv(),
		Game:           room.DefaultSettings(),
		RoomTTL:        DefaultRoomTTL,
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		fc, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}
		fc.apply(&cfg)
	}

	cfg.Game.MaxRounds = getEnvAsInt("MAX_ROUNDS", cfg.Game.MaxRounds)
	cfg.Game.TurnDuration = getEnvAsMillis("TURN_DURATION_MS", cfg.Game.TurnDuration)
	cfg.Game.UXDelay = getEnvAsMillis("UX_DELAY_MS", cfg.Game.UXDelay)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and unusable game settings.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.CatalogBackend {
	case CatalogFile, CatalogPostgres, CatalogMongo:
	default:
		return fmt.Errorf("unknown CATALOG_BACKEND %q", c.CatalogBackend)
	}
	if c.Game.MaxRounds < 1 {
		return fmt.Errorf("max rounds must be positive, got %d", c.Game.MaxRounds)
	}
	if c.Game.TurnDuration <= 0 {
		return fmt.Errorf("turn duration must be positive, got %s", c.Game.TurnDuration)
	}
	if c.Game.UXDelay < 0 {
		return fmt.Errorf("ux delay must not be negative, got %s", c.Game.UXDelay)
	}
	return nil
}

func loadFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return fc, nil
}

func (fc fileConfig) apply(cfg *Config) {
	if fc.Game.MaxRounds != 0 {
		cfg.Game.MaxRounds = fc.Game.MaxRounds
	}
	if fc.Game.TurnDuration != 0 {
		cfg.Game.TurnDuration = fc.Game.TurnDuration
	}
	if fc.Game.UXDelay != 0 {
		cfg.Game.UXDelay = fc.Game.UXDelay
	}
	if fc.Game.RoomTTL != 0 {
		cfg.RoomTTL = fc.Game.RoomTTL
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	ms := getEnvAsInt(key, -1)
	if ms < 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}
