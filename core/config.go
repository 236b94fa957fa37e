package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
	DriverSQL    = "sql"

	ActivationAny   = "any"
	ActivationImage = "image"
)

type Config struct {
	Env            string `yaml:"env" env:"ENV" env-default:"prod"`
	TelegramApiKey string `yaml:"telegram_api_key" env:"TG_TOKEN" env-required:"true"`
	OpenAIApiKey   string `yaml:"openai_api_key" env:"OPENAI_API_KEY" env-required:"true"`
	OpenAIBaseURL  string `yaml:"openai_base_url" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	Username       string `yaml:"username" env:"BOT_USERNAME" env-default:""`
	Model          string `yaml:"model" env:"MODEL_NANO" env-default:"gpt-4o-mini"`
	ProModel       string `yaml:"pro_model" env:"MODEL_PRO" env-default:"gpt-4o"`
	ImageModel     string `yaml:"image_model" env:"IMAGE_MODEL" env-default:"gpt-image-1"`
	ImageSize      string `yaml:"image_size" env:"IMAGE_SIZE" env-default:"1024x1024"`
	RequestTimeout int    `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"120"`
	Workers        int    `yaml:"workers" env:"WORKERS" env-default:"16"`
	Quota          struct {
		FreeLimit     int    `yaml:"free_limit" env:"FREE_LIMIT" env-default:"5"`
		RefBonus      int    `yaml:"ref_bonus" env:"REF_BONUS" env-default:"3"`
		WindowSeconds int    `yaml:"window_seconds" env:"WINDOW_SECONDS" env-default:"604800"`
		Activation    string `yaml:"activation" env:"REF_ACTIVATION" env-default:"any"`
		MeterChat     bool   `yaml:"meter_chat" env:"METER_CHAT" env-default:"false"`
	} `yaml:"quota"`
	Webhook struct {
		URL    string `yaml:"url" env:"WEBHOOK_URL" env-default:""`
		Secret string `yaml:"secret" env:"WEBHOOK_SECRET" env-default:""`
		Port   string `yaml:"port" env:"PORT" env-default:"10000"`
	} `yaml:"webhook"`
	Storage struct {
		Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sql"`
		DSN    string `yaml:"dsn" env:"SQL_DSN" env-default:"genie.db"`
	} `yaml:"storage"`
	Mongo struct {
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"genie"`
	} `yaml:"mongo"`
	Redis struct {
		Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
		Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"127.0.0.1:6379"`
		Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
		TTLHours int    `yaml:"ttl_hours" env:"REDIS_TTL_HOURS" env-default:"168"`
	} `yaml:"redis"`
	Log struct {
		File       string `yaml:"file" env:"LOG_FILE" env-default:""`
		MaxSize    int    `yaml:"max_size" env:"LOG_MAX_SIZE" env-default:"100"`
		MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"3"`
		MaxAge     int    `yaml:"max_age" env:"LOG_MAX_AGE" env-default:"28"`
		Compress   bool   `yaml:"compress" env:"LOG_COMPRESS" env-default:"true"`
	} `yaml:"log"`
}

// Window is the length of the quota window.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Quota.WindowSeconds) * time.Second
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

func (c *Config) MongoURI() string {
	return fmt.Sprintf("mongodb://%s:%s@%s:%s", c.Mongo.User, c.Mongo.Password, c.Mongo.Host, c.Mongo.Port)
}

// WebhookSecret returns the path segment the webhook is served on.
// Without an explicit secret it is derived from the bot token so the
// token itself never appears in a URL.
func (c *Config) WebhookSecret() string {
	if c.Webhook.Secret != "" {
		return c.Webhook.Secret
	}
	sum := sha256.Sum256([]byte(c.TelegramApiKey))
	return hex.EncodeToString(sum[:])[:32]
}

func (c *Config) validate() error {
	var errs []error
	if c.TelegramApiKey == "" {
		errs = append(errs, errors.New("telegram api key is empty"))
	}
	if c.OpenAIApiKey == "" {
		errs = append(errs, errors.New("openai api key is empty"))
	}
	if c.Quota.FreeLimit < 0 {
		errs = append(errs, fmt.Errorf("free_limit must not be negative: %d", c.Quota.FreeLimit))
	}
	if c.Quota.RefBonus < 0 {
		errs = append(errs, fmt.Errorf("ref_bonus must not be negative: %d", c.Quota.RefBonus))
	}
	if c.Quota.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("window_seconds must be positive: %d", c.Quota.WindowSeconds))
	}
	switch c.Quota.Activation {
	case ActivationAny, ActivationImage:
	default:
		errs = append(errs, fmt.Errorf("unknown referral activation %q", c.Quota.Activation))
	}
	switch c.Storage.Driver {
	case DriverMemory, DriverMongo, DriverSQL:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive: %d", c.Workers))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive: %d", c.RequestTimeout))
	}
	return errors.Join(errs...)
}

// Load reads configuration from the yaml file at path, if it exists, and from
// the environment. A .env file in the working directory is applied first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	conf := &Config{}
	var err error
	if _, statErr := os.Stat(path); path != "" && statErr == nil {
		err = cleanenv.ReadConfig(path, conf)
	} else {
		err = cleanenv.ReadEnv(conf)
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("%w: %s; %s", ErrConfig, err, desc)
	}
	if err = conf.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return conf, nil
}

var (
	instance *Config
	loadErr  error
	once     sync.Once
)

func GetConfig(path string) (*Config, error) {
	once.Do(func() {
		instance, loadErr = Load(path)
	})
	return instance, loadErr
}

// MustLoad refuses to start the process in a half-configured state.
func MustLoad(path string) *Config {
	conf, err := GetConfig(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return conf
}
