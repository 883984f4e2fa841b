package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BotToken string

	YookassaShopID    string
	YookassaSecretKey string
	YookassaReturnURL string

	PrivateChannelID int64
	PrivateChatID    int64

	PostgresDSN string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	WebhookAddr string

	ReconcileInterval time.Duration
	ReapInterval      time.Duration
	NotifyHour        int

	CheckoutTTLHours int
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		BotToken:          strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		YookassaShopID:    strings.TrimSpace(os.Getenv("YOOKASSA_SHOP_ID")),
		YookassaSecretKey: strings.TrimSpace(os.Getenv("YOOKASSA_SECRET_KEY")),
		YookassaReturnURL: getEnv("YOOKASSA_RETURN_URL", "https://t.me/askeza_bot"),
		PostgresDSN:       strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		RedisHost:         getEnv("REDIS_HOST", "localhost"),
		RedisPort:         getEnv("REDIS_PORT", "6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		WebhookAddr:       getEnv("WEBHOOK_ADDR", ":8080"),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		ReapInterval:      getEnvDuration("REAP_INTERVAL", time.Hour),
		NotifyHour:        getEnvInt("NOTIFY_HOUR", 12),
		CheckoutTTLHours:  getEnvInt("CHECKOUT_TTL_HOURS", 24),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}
	if cfg.YookassaShopID == "" || cfg.YookassaSecretKey == "" {
		return nil, fmt.Errorf("YOOKASSA_SHOP_ID and YOOKASSA_SECRET_KEY are required")
	}

	var err error
	cfg.PrivateChannelID, err = getEnvChatID("PRIVATE_CHANNEL_ID")
	if err != nil {
		return nil, err
	}
	cfg.PrivateChatID, err = getEnvChatID("PRIVATE_CHAT_ID")
	if err != nil {
		return nil, err
	}

	if cfg.NotifyHour < 0 || cfg.NotifyHour > 23 {
		return nil, fmt.Errorf("NOTIFY_HOUR must be within 0..23, got %d", cfg.NotifyHour)
	}

	return cfg, nil
}

func getEnv(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getEnvChatID(name string) (int64, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid chat id %q", name, v)
	}
	return id, nil
}
