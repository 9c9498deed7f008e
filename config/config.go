package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	MQDriverRabbitMQ = "rabbitmq"
	MQDriverPubSub   = "pubsub"

	StorageDriverMinio = "minio"
	StorageDriverGCS   = "gcs"
)

type Config struct {
	ServerPort    int
	LogLevel      string
	StoreDriver   string
	Database      DatabaseConfig
	Auth          AuthConfig
	Crypto        CryptoConfig
	Privacy       PrivacyConfig
	Retention     RetentionConfig
	MQ            MQConfig
	ObjectStorage ObjectStorageConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type AuthConfig struct {
	JWTSecret   string
	BcryptCost  int
	SessionTTL  time.Duration
	ExtendedTTL time.Duration
}

type CryptoConfig struct {
	// MasterSecret seeds the keyring that derives the answer, AI data
	// and digest keys.
	MasterSecret string
}

type RetentionConfig struct {
	ResponseDays int
	AuditDays    int
}

type MQConfig struct {
	Driver   string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type ObjectStorageConfig struct {
	Driver string
	Minio  MinioConfig
	GCS    GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "messagestack"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "messagestack_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	authConfig := AuthConfig{
		JWTSecret:   strings.TrimSpace(getEnv("JWT_SECRET", "")),
		BcryptCost:  getEnvInt("BCRYPT_COST", 12),
		SessionTTL:  getEnvDuration("SESSION_TTL", 24*time.Hour),
		ExtendedTTL: getEnvDuration("SESSION_EXTENDED_TTL", 30*24*time.Hour),
	}

	mqConfig := MQConfig{
		Driver: strings.ToLower(getEnv("MQ_DRIVER", "")),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	storageConfig := ObjectStorageConfig{
		Driver: strings.ToLower(getEnv("STORAGE_DRIVER", "")),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "messagestack"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	return Config{
		ServerPort:  getEnvInt("SERVER_PORT", 8080),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		Database:    dbConfig,
		Auth:        authConfig,
		Crypto: CryptoConfig{
			MasterSecret: strings.TrimSpace(getEnv("ENCRYPTION_SECRET", "")),
		},
		Privacy: PrivacyConfig{
			SettingsFile: getEnv("PRIVACY_SETTINGS_FILE", ""),
		},
		Retention: RetentionConfig{
			ResponseDays: getEnvInt("RESPONSE_RETENTION_DAYS", 365),
			AuditDays:    getEnvInt("AUDIT_RETENTION_DAYS", 365),
		},
		MQ:            mqConfig,
		ObjectStorage: storageConfig,
	}
}

// Validate reports configuration that would prevent the server from starting.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Crypto.MasterSecret == "" {
		errs = append(errs, errors.New("ENCRYPTION_SECRET is required"))
	}
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.MQ.Driver {
	case "", MQDriverRabbitMQ, MQDriverPubSub:
	default:
		errs = append(errs, fmt.Errorf("unsupported MQ_DRIVER %q", c.MQ.Driver))
	}
	switch c.ObjectStorage.Driver {
	case "", StorageDriverMinio, StorageDriverGCS:
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.ObjectStorage.Driver))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil || value <= 0 {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
