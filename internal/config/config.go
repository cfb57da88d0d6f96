package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Inventory InventoryConfig
	Checkin   CheckinConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Dir   string
	Level string
}

type RedisConfig struct {
	Addr    string
	Enabled bool
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	TicketIssued     string
	TicketCheckedIn  string
	TicketCancelled  string
	CheckinRejected  string
	RefundsCompleted string
}

type DatabaseConfig struct {
	Driver        string // postgres or sqlite
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MigrationsDir string
	AutoMigrate   bool
	SeedData      bool
}

type AuthConfig struct {
	JWTSecret  string
	OIDCIssuer string
}

type InventoryConfig struct {
	Backend         string // sql or redis
	ReclaimOnCancel bool
}

type CheckinConfig struct {
	NoncePolicy    string // totp or any
	NonceSecret    string
	NonceDigits    int
	NoncePeriod    time.Duration
	NonceSkew      int
	PersonalSign   bool
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8084"),
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Log: LogConfig{
			Dir:   getEnv("LOG_DIR", ""),
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled: getEnvBool("REDIS_ENABLED", true),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "admission-service"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				TicketIssued:     getEnv("KAFKA_TOPIC_TICKET_ISSUED", "ticketing.ticket.issued"),
				TicketCheckedIn:  getEnv("KAFKA_TOPIC_TICKET_CHECKED_IN", "ticketing.ticket.checked_in"),
				TicketCancelled:  getEnv("KAFKA_TOPIC_TICKET_CANCELLED", "ticketing.ticket.cancelled"),
				CheckinRejected:  getEnv("KAFKA_TOPIC_CHECKIN_REJECTED", "ticketing.checkin.rejected"),
				RefundsCompleted: getEnv("KAFKA_TOPIC_REFUNDS_COMPLETED", "ticketing.refund.completed"),
			},
		},
		Database: DatabaseConfig{
			Driver:        getEnv("DB_DRIVER", "sqlite"),
			DSN:           getEnv("DB_DSN", "file:admission.db?cache=shared"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:   getEnvBool("DB_AUTO_MIGRATE", true),
			SeedData:      getEnvBool("DB_SEED_DATA", false),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
		Inventory: InventoryConfig{
			Backend:         getEnv("INVENTORY_BACKEND", "sql"),
			ReclaimOnCancel: getEnvBool("SEAT_RECLAIM_ON_CANCEL", false),
		},
		Checkin: CheckinConfig{
			NoncePolicy:    getEnv("CHECKIN_NONCE_POLICY", "totp"),
			NonceSecret:    getEnv("CHECKIN_NONCE_SECRET", ""),
			NonceDigits:    getEnvInt("CHECKIN_NONCE_DIGITS", 4),
			NoncePeriod:    getEnvDuration("CHECKIN_NONCE_PERIOD", time.Minute),
			NonceSkew:      getEnvInt("CHECKIN_NONCE_SKEW", 1),
			PersonalSign:   getEnvBool("CHECKIN_PERSONAL_SIGN", false),
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
