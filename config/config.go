package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMongo  = "mongo"
	StorageSQLite = "sqlite"

	NotificationsCassandra = "cassandra"
	NotificationsSQLite    = "sqlite"
)

type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Notifications NotificationConfig
	Email         EmailConfig
	Logging       LoggingConfig
	Tracing       TracingConfig
	JWTSecret     string
	PlansFile     string
	OverdueSweep  time.Duration
}

type ServerConfig struct {
	Port         string
	CORSOrigin   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StorageConfig struct {
	Driver     string
	MongoURI   string
	MongoDB    string
	SQLitePath string
}

type NotificationConfig struct {
	Driver      string
	CassandraDB string
	Keyspace    string
	Workers     int
	MaxRetries  int
	RetryDelay  time.Duration
}

type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

type LoggingConfig struct {
	File   string
	Level  string
	Stdout bool
}

type TracingConfig struct {
	Enabled bool
	File    string
}

// Load reads configuration from the environment, after applying an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			CORSOrigin:   getEnv("CORS_ORIGIN", "*"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			Driver:     strings.ToLower(getEnv("STORAGE_DRIVER", StorageSQLite)),
			MongoURI:   getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
			MongoDB:    getEnv("MONGO_DB_NAME", "planner"),
			SQLitePath: getEnv("SQLITE_PATH", "data/planner.db"),
		},
		Notifications: NotificationConfig{
			Driver:      strings.ToLower(getEnv("NOTIFICATION_DRIVER", NotificationsSQLite)),
			CassandraDB: getEnv("CASS_DB", "127.0.0.1"),
			Keyspace:    getEnv("CASS_KEYSPACE", "notifications"),
			Workers:     getEnvInt("NOTIFY_WORKERS", 4),
			MaxRetries:  getEnvInt("NOTIFY_MAX_RETRIES", 3),
			RetryDelay:  getEnvDuration("NOTIFY_RETRY_DELAY", 500*time.Millisecond),
		},
		Email: EmailConfig{
			APIKey:    getEnv("SENDGRID_API_KEY", ""),
			FromEmail: getEnv("EMAIL_FROM", "noreply@project-planner.local"),
			FromName:  getEnv("EMAIL_FROM_NAME", "Project Planner"),
		},
		Logging: LoggingConfig{
			File:   getEnv("LOG_FILE", "logs/planner.log"),
			Level:  getEnv("LOG_LEVEL", "info"),
			Stdout: getEnvBool("LOG_STDOUT", false),
		},
		Tracing: TracingConfig{
			Enabled: getEnvBool("TRACING_ENABLED", false),
			File:    getEnv("TRACING_FILE", ""),
		},
		JWTSecret:    getEnv("JWT_SECRET", ""),
		PlansFile:    getEnv("PLANS_FILE", ""),
		OverdueSweep: getEnvDuration("OVERDUE_SWEEP_INTERVAL", 10*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
