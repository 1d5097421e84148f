package config

import "time"

const (
	DefaultSystemPrompt = "You are Kimi, specializing in mathematical tasks. " +
		"Task: Recognize mathematical formulas in the image. " +
		"Output pure LaTeX code only, without \\documentclass, comments, or non-formula content. " +
		"If no formula is detected, return an empty string."
	DefaultUserPrompt = "Extract the mathematical formula from the image. Return pure LaTeX code."
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:           "0.0.0.0",
			Port:         8000,
			StaticDir:    "./static",
			MaxBodyBytes: 6 * 1024 * 1024,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Recognizer: RecognizerConfig{
			BaseURL:            "https://api.moonshot.cn/v1/chat/completions",
			DefaultModel:       "moonshot-v1-8k-vision-preview",
			Temperature:        0.7,
			Timeout:            20 * time.Second,
			MaxAttempts:        4,
			RateLimitWait:      15 * time.Second,
			TransportRetryWait: 15 * time.Second,
			SystemPrompt:       DefaultSystemPrompt,
			UserPrompt:         DefaultUserPrompt,
		},
		Image: ImageConfig{
			MaxFileSize:  5 * 1024 * 1024,
			MaxWidth:     800,
			JPEGQuality:  90,
			MaxPixels:    4096 * 4096,
			AllowedTypes: []string{"image/png", "image/jpeg"},
			SaveDebug:    true,
			DebugDir:     "data/debug",
		},
		History: HistoryConfig{
			Driver:   "memory",
			Capacity: 200,
			SQLite: SQLiteConfig{
				DSN: "data/history.db",
			},
			Redis: RedisConfig{
				Prefix: "formula:history:",
			},
			TTL: 7 * 24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			Enabled: false,
		},
	}
}
