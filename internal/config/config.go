package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StoreModeCloud  = "cloud"
	StoreModeLocal  = "local"
	StoreModeMemory = "memory"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	StoreMode             string
	DatabaseURL           string
	SQLitePath            string
	LocalOwnerID          string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	ShopTimezone          string
	PhoneRegion           string
	InsightTTLSeconds     int
	AsyncWorkers          int
	PubSubProjectID       string
	PubSubTopic           string
	PubSubCredentialsJSON string
	LogLevel              string
	LogFormat             string
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		StoreMode:             strings.ToLower(strings.TrimSpace(os.Getenv("STORE_MODE"))),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		SQLitePath:            os.Getenv("SQLITE_PATH"),
		LocalOwnerID:          getEnv("LOCAL_OWNER_ID", "local"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		ShopTimezone:          getEnv("SHOP_TIMEZONE", "Asia/Dhaka"),
		PhoneRegion:           getEnv("PHONE_REGION", "BD"),
		InsightTTLSeconds:     positiveInt("INSIGHT_TTL_SECONDS", 60),
		AsyncWorkers:          positiveInt("ASYNC_WORKERS", 4),
		PubSubProjectID:       firstEnv("PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"),
		PubSubTopic:           os.Getenv("PUBSUB_TOPIC"),
		PubSubCredentialsJSON: os.Getenv("PUBSUB_CREDENTIALS_JSON"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
	}
	cfg.StoreMode = cfg.ResolveStoreMode()
	return cfg
}

// ResolveStoreMode returns the explicit STORE_MODE, or infers it from which
// connection settings are present.
func (c Config) ResolveStoreMode() string {
	switch c.StoreMode {
	case StoreModeCloud, StoreModeLocal, StoreModeMemory:
		return c.StoreMode
	}
	if c.DatabaseURL != "" {
		return StoreModeCloud
	}
	if c.SQLitePath != "" {
		return StoreModeLocal
	}
	return StoreModeMemory
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func positiveInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
