package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Config represents the entire application configuration
type Config struct {
	Env      string         `json:"env"`
	Port     int            `json:"port"`
	AppName  string         `json:"app_name"`
	DocStore DocStoreConfig `json:"docstore"`
	Jobs     JobsConfig     `json:"jobs"`
	MongoDB  MongoDBConfig  `json:"mongodb"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
	S3       S3Config       `json:"s3"`
	Logging  LoggingConfig  `json:"logging"`
	CORS     CORSConfig     `json:"cors"`
	API      APIConfig      `json:"api"`
}

// DocStoreConfig contains the document store REST endpoint settings
type DocStoreConfig struct {
	BaseURL           string `json:"base_url"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	Database          string `json:"database"`
	RequestsPerMinute int    `json:"requests_per_minute"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
	Cache             bool   `json:"cache"`
	DefaultCacheTTL   int    `json:"default_cache_ttl"`
}

// JobsConfig contains bulk job defaults
type JobsConfig struct {
	ThreadCount     int `json:"thread_count"`
	WriteBatchSize  int `json:"write_batch_size"`
	ReadBatchSize   int `json:"read_batch_size"`
	DeleteBatchSize int `json:"delete_batch_size"`
	// ProgressInterval is how often, in seconds, running jobs flush progress
	ProgressInterval int `json:"progress_interval"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// RabbitMQConfig contains the job queue connection details
type RabbitMQConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	VHost         string `json:"vhost"`
	ExchangeName  string `json:"exchange_name"`
	QueueName     string `json:"queue_name"`
	PrefetchCount int    `json:"prefetch_count"`
}

// S3Config contains the object storage used as a job source or export target
type S3Config struct {
	AccessKey   string `json:"access_key"`
	SecretKey   string `json:"secret_key"`
	Bucket      string `json:"bucket"`
	Region      string `json:"region"`
	Endpoint    string `json:"endpoint"`
	Concurrency int    `json:"concurrency"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age,omitempty"` // Optional, seconds that preflight requests can be cached
}

// APIConfig contains settings for the HTTP status API
type APIConfig struct {
	Token string `json:"token"`
}

// MongoDBConfig contains MongoDB connection details
type MongoDBConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       string `json:"db"`
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig reads configuration from the specified file path, then applies
// DOCBULK_* environment overrides and validates the result
func LoadConfig(filePath string) (*Config, error) {
	// Read the configuration file
	configData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()

	// Unmarshal the JSON data over the defaults
	if err := json.Unmarshal(configData, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Default returns a configuration usable against a local store
func Default() *Config {
	return &Config{
		Env:     "development",
		Port:    8080,
		AppName: "docbulk",
		DocStore: DocStoreConfig{
			BaseURL:         "http://localhost:8000",
			TimeoutSeconds:  30,
			DefaultCacheTTL: 300,
		},
		Jobs: JobsConfig{
			WriteBatchSize:   100,
			ReadBatchSize:    100,
			DeleteBatchSize:  250,
			ProgressInterval: 5,
		},
		RabbitMQ: RabbitMQConfig{
			Port:         5672,
			VHost:        "/",
			ExchangeName: "docbulk",
			QueueName:    "jobs",
		},
		S3: S3Config{
			Concurrency: 8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ApplyEnv overrides selected values from the environment
func (c *Config) ApplyEnv() error {
	overrideString("DOCBULK_ENV", &c.Env)
	overrideString("DOCBULK_DOCSTORE_URL", &c.DocStore.BaseURL)
	overrideString("DOCBULK_DOCSTORE_USERNAME", &c.DocStore.Username)
	overrideString("DOCBULK_DOCSTORE_PASSWORD", &c.DocStore.Password)
	overrideString("DOCBULK_DOCSTORE_DATABASE", &c.DocStore.Database)
	overrideString("DOCBULK_MONGODB_URI", &c.MongoDB.URI)
	overrideString("DOCBULK_REDIS_ADDRESS", &c.Redis.Address)
	overrideString("DOCBULK_LOG_LEVEL", &c.Logging.Level)
	overrideString("DOCBULK_API_TOKEN", &c.API.Token)

	if err := overrideInt("DOCBULK_PORT", &c.Port); err != nil {
		return err
	}
	if err := overrideInt("DOCBULK_THREAD_COUNT", &c.Jobs.ThreadCount); err != nil {
		return err
	}
	return nil
}

// Validate checks the values a job or client cannot run without
func (c *Config) Validate() error {
	var errs []error
	if c.DocStore.BaseURL == "" {
		errs = append(errs, errors.New("docstore.base_url is required"))
	}
	if c.DocStore.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("docstore.requests_per_minute must not be negative"))
	}
	if c.Jobs.ThreadCount < 0 {
		errs = append(errs, errors.New("jobs.thread_count must not be negative"))
	}
	if c.Jobs.WriteBatchSize < 0 || c.Jobs.ReadBatchSize < 0 || c.Jobs.DeleteBatchSize < 0 {
		errs = append(errs, errors.New("jobs batch sizes must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func overrideString(key string, target *string) {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		*target = val
	}
}

func overrideInt(key string, target *int) error {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = parsed
	return nil
}
