package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port        string   `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"corsOrigins"`
}

// StoreConfig selects the document store. Driver is "mongo" or "memory".
type StoreConfig struct {
	Driver      string            `mapstructure:"driver"`
	BatchSize   int32             `mapstructure:"batchSize"`
	Collections map[string]string `mapstructure:"collections"`
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"dbName"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	QueueKey string `mapstructure:"queueKey"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type S3Config struct {
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"accessKeyID"`
	SecretAccessKey  string `mapstructure:"secretAccessKey"`
	CloudFrontDomain string `mapstructure:"cloudFrontDomain"`
	Prefix           string `mapstructure:"prefix"`
}

type WorkflowConfig struct {
	ArchiveRejected bool `mapstructure:"archiveRejected"`
	MaxRetries      int  `mapstructure:"maxRetries"`
}

type LedgerConfig struct {
	MaxRetries int `mapstructure:"maxRetries"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// NotifyConfig tunes the delivery worker.
type NotifyConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	MaxAttempts int           `mapstructure:"maxAttempts"`
	PollTimeout time.Duration `mapstructure:"pollTimeout"`
}

// SeedConfig names the admin created on startup when the directory has no
// entry for AdminUserID. Seeding is skipped when AdminUserID is empty.
type SeedConfig struct {
	AdminUserID    string `mapstructure:"adminUserId"`
	AdminEmail     string `mapstructure:"adminEmail"`
	AdminFirstName string `mapstructure:"adminFirstName"`
	AdminLastName  string `mapstructure:"adminLastName"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	S3       S3Config       `mapstructure:"s3"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Seed     SeedConfig     `mapstructure:"seed"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

var envBindings = map[string]string{
	"server.port":              "SERVER_PORT",
	"server.mode":              "GIN_MODE",
	"store.driver":             "STORE_DRIVER",
	"store.batchSize":          "STORE_BATCH_SIZE",
	"mongo.uri":                "MONGO_URI",
	"mongo.dbName":             "MONGO_DBNAME",
	"redis.addr":               "REDIS_ADDR",
	"redis.password":           "REDIS_PASSWORD",
	"redis.db":                 "REDIS_DB",
	"redis.queueKey":           "REDIS_QUEUE_KEY",
	"jwt.secret":               "JWT_SECRET",
	"jwt.expiration":           "JWT_EXPIRATION",
	"s3.bucket":                "S3_BUCKET",
	"s3.region":                "S3_REGION",
	"s3.accessKeyID":           "S3_ACCESS_KEY_ID",
	"s3.secretAccessKey":       "S3_SECRET_ACCESS_KEY",
	"s3.cloudFrontDomain":      "S3_CLOUDFRONT_DOMAIN",
	"workflow.archiveRejected": "WORKFLOW_ARCHIVE_REJECTED",
	"workflow.maxRetries":      "WORKFLOW_MAX_RETRIES",
	"ledger.maxRetries":        "LEDGER_MAX_RETRIES",
	"smtp.host":                "SMTP_HOST",
	"smtp.port":                "SMTP_PORT",
	"smtp.username":            "SMTP_USERNAME",
	"smtp.password":            "SMTP_PASSWORD",
	"smtp.from":                "SMTP_FROM",
	"notify.concurrency":       "NOTIFY_CONCURRENCY",
	"seed.adminUserId":         "SEED_ADMIN_USER_ID",
	"seed.adminEmail":          "SEED_ADMIN_EMAIL",
	"logger.level":             "LOG_LEVEL",
	"logger.development":       "LOG_DEVELOPMENT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.corsOrigins", []string{"*"})
	v.SetDefault("store.driver", "mongo")
	v.SetDefault("store.batchSize", 100)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.dbName", "refill")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.queueKey", "notify:queue")
	v.SetDefault("jwt.expiration", 24*time.Hour)
	v.SetDefault("s3.prefix", "receipts")
	v.SetDefault("workflow.archiveRejected", false)
	v.SetDefault("workflow.maxRetries", 5)
	v.SetDefault("ledger.maxRetries", 5)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("notify.concurrency", 4)
	v.SetDefault("notify.maxAttempts", 5)
	v.SetDefault("notify.pollTimeout", 5*time.Second)
	v.SetDefault("logger.level", "info")
}

// LoadConfig reads path/config.yaml and overrides it with the bound
// environment variables. A .env file next to the config directory fills in
// variables the process environment does not set. Neither file is required.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if err := godotenv.Load(filepath.Join(path, "..", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return cfg, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "mongo", "memory":
	default:
		return fmt.Errorf("store.driver must be mongo or memory, got %q", c.Store.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	return nil
}
