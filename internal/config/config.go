package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Sync     SyncConfig
	Alarm    AlarmConfig
	Order    OrderConfig
	Client   ClientConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host          string
	Port          string
	Username      string
	Password      string
	Database      string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MigrationsDir string
	AutoMigrate   bool
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

type RedisConfig struct {
	Addr          string
	Enabled       bool
	ChangeChannel string
	StoreInfoTTL  time.Duration
}

type KafkaConfig struct {
	Brokers     []string
	GroupID     string
	Enabled     bool
	ChangeTopic string
}

type AuthConfig struct {
	OIDCIssuer string
	ClientID   string
	// DevMode accepts unsigned tokens when no issuer is set. Local development only.
	DevMode bool
}

// SyncConfig holds the unconditional polling periods of each client view.
type SyncConfig struct {
	CourierInterval time.Duration
	AdminInterval   time.Duration
	OrderInterval   time.Duration
}

type AlarmConfig struct {
	VibrationPattern []time.Duration
	RepeatInterval   time.Duration
}

type OrderConfig struct {
	DeliveryFee float64
}

// ClientConfig is read by the terminal apps under cmd/.
type ClientConfig struct {
	APIURL string
	Token  string
	// ChangeFeed selects the push transport: "sse" or "kafka".
	ChangeFeed string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", ":8080"),
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   0, // SSE streams stay open
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			Username:      getEnv("DB_USERNAME", "delivery"),
			Password:      getEnv("DB_PASSWORD", "delivery"),
			Database:      getEnv("DB_NAME", "delivery"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:   getEnvBool("AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled:       getEnvBool("REDIS_ENABLED", true),
			ChangeChannel: getEnv("REDIS_CHANGE_CHANNEL", "orders:changes"),
			StoreInfoTTL:  getEnvDuration("STORE_INFO_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID:     getEnv("KAFKA_GROUP_ID", "delivery-clients"),
			Enabled:     getEnvBool("KAFKA_ENABLED", false),
			ChangeTopic: getEnv("KAFKA_TOPIC_ORDER_CHANGES", "order-changes"),
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			ClientID:   getEnv("OIDC_CLIENT_ID", "delivery-api"),
			DevMode:    getEnvBool("AUTH_DEV_MODE", false),
		},
		Sync: SyncConfig{
			CourierInterval: getEnvDuration("SYNC_COURIER_INTERVAL", 10*time.Second),
			AdminInterval:   getEnvDuration("SYNC_ADMIN_INTERVAL", 10*time.Second),
			OrderInterval:   getEnvDuration("SYNC_ORDER_INTERVAL", 3*time.Second),
		},
		Alarm: AlarmConfig{
			VibrationPattern: getEnvDurations("ALARM_VIBRATION_PATTERN", []time.Duration{
				500 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond,
				500 * time.Millisecond, 500 * time.Millisecond,
			}),
			RepeatInterval: getEnvDuration("ALARM_REPEAT_INTERVAL", 3*time.Second),
		},
		Order: OrderConfig{
			DeliveryFee: getEnvFloat("DELIVERY_FEE", 8.99),
		},
		Client: ClientConfig{
			APIURL:     getEnv("DELIVERY_API_URL", "http://localhost:8080"),
			Token:      getEnv("DELIVERY_TOKEN", ""),
			ChangeFeed: getEnv("CHANGE_FEED", "sse"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("10s") or bare milliseconds ("2500").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := parseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

// getEnvDurations parses a comma separated list such as "500,500,500".
func getEnvDurations(key string, defaultValue []time.Duration) []time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []time.Duration
	for _, part := range strings.Split(value, ",") {
		d, err := parseDuration(strings.TrimSpace(part))
		if err != nil || d <= 0 {
			return defaultValue
		}
		out = append(out, d)
	}
	return out
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func parseDuration(raw string) (time.Duration, error) {
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(raw)
}
