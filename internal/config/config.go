package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the server settings. Values come from defaults, then the
// optional YAML file named by CONFIG_FILE, then environment variables.
type Config struct {
	Port              string        `yaml:"port"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	HTTPClientTimeout time.Duration `yaml:"http_client_timeout"`

	Lark     LarkConfig     `yaml:"lark"`
	Wecom    WecomConfig    `yaml:"wecom"`
	Telegram TelegramConfig `yaml:"telegram"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// LarkConfig holds the Lark (Feishu) app credentials.
type LarkConfig struct {
	AppID     string `yaml:"app_id"`
	AppSecret string `yaml:"app_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Enabled reports whether the Lark backend has credentials.
func (c LarkConfig) Enabled() bool { return c.AppID != "" && c.AppSecret != "" }

// WecomConfig holds the WeCom robot webhook base URL.
type WecomConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// TelegramConfig holds the Telegram bot settings.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	BaseURL  string `yaml:"base_url"`
}

// Enabled reports whether the Telegram backend has a bot token.
func (c TelegramConfig) Enabled() bool { return c.BotToken != "" }

// KafkaConfig holds the alert ingestion consumer settings.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumer_group"`
	AlertTopic    string   `yaml:"alert_topic"`
}

// Enabled reports whether alert ingestion over Kafka is configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:              "8080",
		LogLevel:          "info",
		LogFormat:         "json",
		HTTPClientTimeout: 10 * time.Second,
		Wecom: WecomConfig{
			WebhookURL: "https://qyapi.weixin.qq.com/cgi-bin/webhook/send",
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "notify-alerts",
			AlertTopic:    "notify.alerts",
		},
	}
}

// Load builds the configuration and validates it.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	if v := os.Getenv("HTTP_CLIENT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HTTP_CLIENT_TIMEOUT: %w", err)
		}
		c.HTTPClientTimeout = d
	}

	c.Lark.AppID = getEnv("LARK_APP_ID", c.Lark.AppID)
	c.Lark.AppSecret = getEnv("LARK_APP_SECRET", c.Lark.AppSecret)
	c.Lark.BaseURL = getEnv("LARK_BASE_URL", c.Lark.BaseURL)
	c.Wecom.WebhookURL = getEnv("WECOM_WEBHOOK_URL", c.Wecom.WebhookURL)
	c.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", c.Telegram.BotToken)
	c.Telegram.BaseURL = getEnv("TELEGRAM_BASE_URL", c.Telegram.BaseURL)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	c.Kafka.ConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", c.Kafka.ConsumerGroup)
	c.Kafka.AlertTopic = getEnv("KAFKA_ALERT_TOPIC", c.Kafka.AlertTopic)
	return nil
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535, got %q", c.Port)
	}
	if c.HTTPClientTimeout <= 0 {
		return fmt.Errorf("http_client_timeout must be positive, got %s", c.HTTPClientTimeout)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.LogFormat)
	}
	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}
	if c.Kafka.Enabled() && c.Kafka.AlertTopic == "" {
		return fmt.Errorf("kafka.alert_topic is required when kafka.brokers is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
