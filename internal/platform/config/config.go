package config

import (
	"time"
)

// Config is the process-wide configuration. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Recognizer    RecognizerConfig    `yaml:"recognizer"`
	Image         ImageConfig         `yaml:"image"`
	History       HistoryConfig       `yaml:"history"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	IP        string `yaml:"ip"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
	// MaxBodyBytes bounds the multipart body accepted by the API.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// RecognizerConfig describes the external chat-completion endpoint.
type RecognizerConfig struct {
	BaseURL            string        `yaml:"url"`
	APIKey             string        `yaml:"api_key"`
	DefaultModel       string        `yaml:"default_model"`
	Temperature        float64       `yaml:"temperature"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxAttempts        int           `yaml:"max_attempts"`
	RateLimitWait      time.Duration `yaml:"rate_limit_wait"`
	TransportRetryWait time.Duration `yaml:"transport_retry_wait"`
	SystemPrompt       string        `yaml:"system_prompt"`
	UserPrompt         string        `yaml:"user_prompt"`
}

// ImageConfig holds the preprocessor limits.
type ImageConfig struct {
	MaxFileSize  int64    `yaml:"max_file_size"`
	MaxWidth     int      `yaml:"max_width"`
	JPEGQuality  int      `yaml:"jpeg_quality"`
	MaxPixels    int64    `yaml:"max_pixels"`
	AllowedTypes []string `yaml:"allowed_types"`
	SaveDebug    bool     `yaml:"save_debug"`
	DebugDir     string   `yaml:"debug_dir"`
}

type HistoryConfig struct {
	Driver   string        `yaml:"driver"`
	Capacity int           `yaml:"capacity"`
	SQLite   SQLiteConfig  `yaml:"sqlite"`
	Redis    RedisConfig   `yaml:"redis"`
	TTL      time.Duration `yaml:"ttl"`
}

type SQLiteConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled"`
}
