package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config application configuration
type Config struct {
	App struct {
		Name string `yaml:"name"`
		Env  string `yaml:"env"`
	} `yaml:"app"`

	Database struct {
		Postgres struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			DBName   string `yaml:"dbname"`
			SSLMode  string `yaml:"sslmode"`
		} `yaml:"postgres"`
		MaxOpenConns int  `yaml:"max_open_conns"`
		MaxIdleConns int  `yaml:"max_idle_conns"`
		AutoMigrate  bool `yaml:"auto_migrate"`
	} `yaml:"database"`

	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
		Durable string `yaml:"durable"`
	} `yaml:"nats"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	API struct {
		Port         string        `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"api"`

	Engine struct {
		RuleConcurrency int `yaml:"rule_concurrency"`
	} `yaml:"engine"`

	Worker struct {
		// Embedded runs the worker pool inside the API process
		Embedded     bool          `yaml:"embedded"`
		Count        int           `yaml:"count"`
		PollInterval time.Duration `yaml:"poll_interval"`
		MaxAttempts  int           `yaml:"max_attempts"`
		BaseBackoff  time.Duration `yaml:"base_backoff"`
		MaxBackoff   time.Duration `yaml:"max_backoff"`
	} `yaml:"worker"`

	Scheduler struct {
		Embedded bool   `yaml:"embedded"`
		Daily    string `yaml:"daily"`
		Weekly   string `yaml:"weekly"`
		Timezone string `yaml:"timezone"`
	} `yaml:"scheduler"`

	Quota struct {
		// Backend postgres | redis | memory
		Backend string `yaml:"backend"`
	} `yaml:"quota"`

	Store struct {
		// Backend postgres | memory
		Backend string `yaml:"backend"`
	} `yaml:"store"`

	Marketplace struct {
		BaseURL string        `yaml:"base_url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"marketplace"`

	Vault struct {
		// Backend local | aws
		Backend      string `yaml:"backend"`
		LocalKey     string `yaml:"local_key"`
		SecretPrefix string `yaml:"secret_prefix"`
	} `yaml:"vault"`

	AWS struct {
		Region        string `yaml:"region"`
		SNSTopicARN   string `yaml:"sns_topic_arn"`
		LocalEndpoint string `yaml:"local_endpoint"`
	} `yaml:"aws"`

	Currency struct {
		Base  string             `yaml:"base"`
		Rates map[string]float64 `yaml:"rates"`
	} `yaml:"currency"`
}

// Default configuration used for missing keys
func Default() *Config {
	var c Config
	c.App.Name = "shoppilot"
	c.App.Env = "dev"
	c.Database.Postgres.Host = "localhost"
	c.Database.Postgres.Port = 5432
	c.Database.Postgres.User = "postgres"
	c.Database.Postgres.DBName = "shoppilot"
	c.Database.Postgres.SSLMode = "disable"
	c.Database.MaxOpenConns = 25
	c.Database.MaxIdleConns = 5
	c.NATS.URL = "nats://localhost:4222"
	c.NATS.Durable = "shoppilot"
	c.Redis.Addr = "localhost:6379"
	c.API.Port = "8080"
	c.API.ReadTimeout = 15 * time.Second
	c.API.WriteTimeout = 15 * time.Second
	c.Engine.RuleConcurrency = 8
	c.Worker.Count = 4
	c.Worker.PollInterval = 5 * time.Second
	c.Worker.MaxAttempts = 3
	c.Worker.BaseBackoff = 2 * time.Second
	c.Worker.MaxBackoff = 30 * time.Second
	c.Scheduler.Daily = "0 9 * * *"
	c.Scheduler.Weekly = "0 9 * * 1"
	c.Scheduler.Timezone = "Asia/Tokyo"
	c.Quota.Backend = "postgres"
	c.Store.Backend = "postgres"
	c.Marketplace.Timeout = 30 * time.Second
	c.Vault.Backend = "local"
	c.Vault.SecretPrefix = "shoppilot/marketplace/"
	c.AWS.Region = "ap-northeast-1"
	c.Currency.Base = "JPY"
	c.Currency.Rates = map[string]float64{"JPY": 1}
	return &c
}

// LoadConfig reads a YAML file over the defaults, then applies env overrides
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	overrideFromEnv(config)

	return config, nil
}

// overrideFromEnv environment variables win over the file
func overrideFromEnv(config *Config) {
	setString(&config.App.Name, "APP_NAME")
	setString(&config.App.Env, "APP_ENV")

	setString(&config.Database.Postgres.Host, "DB_HOST")
	setInt(&config.Database.Postgres.Port, "DB_PORT")
	setString(&config.Database.Postgres.User, "DB_USER")
	setString(&config.Database.Postgres.Password, "DB_PASSWORD")
	setString(&config.Database.Postgres.DBName, "DB_NAME")
	setString(&config.Database.Postgres.SSLMode, "DB_SSLMODE")

	setString(&config.NATS.URL, "NATS_URL")
	setBool(&config.NATS.Enabled, "NATS_ENABLED")

	setString(&config.Redis.Addr, "REDIS_ADDR")
	setString(&config.Redis.Password, "REDIS_PASSWORD")

	setString(&config.API.Port, "API_PORT")

	setInt(&config.Worker.Count, "WORKER_COUNT")
	setBool(&config.Worker.Embedded, "WORKER_EMBEDDED")

	setString(&config.Quota.Backend, "QUOTA_BACKEND")
	setString(&config.Store.Backend, "STORE_BACKEND")

	setString(&config.Marketplace.BaseURL, "MARKETPLACE_BASE_URL")
	setString(&config.Marketplace.APIKey, "MARKETPLACE_API_KEY")

	setString(&config.Vault.Backend, "VAULT_BACKEND")
	setString(&config.Vault.LocalKey, "VAULT_LOCAL_KEY")

	setString(&config.AWS.Region, "AWS_REGION")
	setString(&config.AWS.SNSTopicARN, "SNS_TOPIC_ARN")
	setString(&config.AWS.LocalEndpoint, "AWS_LOCAL_ENDPOINT")
}

func setString(dst *string, key string) {
	if env := os.Getenv(key); env != "" {
		*dst = env
	}
}

func setInt(dst *int, key string) {
	if env := os.Getenv(key); env != "" {
		if v, err := strconv.Atoi(env); err == nil && v > 0 {
			*dst = v
		}
	}
}

func setBool(dst *bool, key string) {
	if env := os.Getenv(key); env != "" {
		if v, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			*dst = v
		}
	}
}

// PostgresDSN libpq connection string
func (c *Config) PostgresDSN() string {
	pg := c.Database.Postgres
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode,
	)
}

// IsProduction production logging and gin release mode
func (c *Config) IsProduction() bool {
	return c.App.Env == "prod" || c.App.Env == "production"
}

// GetDefaultConfigPath configs/<APP_ENV>/app.yaml
func GetDefaultConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	return fmt.Sprintf("configs/%s/app.yaml", env)
}
