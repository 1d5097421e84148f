package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Candidate file names probed when no explicit path is configured.
var defaultConfigFiles = []string{".config.yaml", "config.yaml"}

// Loader builds a Config from defaults, an optional YAML file and the environment.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that reads .env, the YAML file and process env vars.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the YAML file location, overriding CONFIG_PATH and the defaults.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv overrides the environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load resolves the configuration. A missing config file is not an error; defaults apply.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("未找到 .env 文件，使用系统环境变量")
		}
	}

	cfg := DefaultConfig()
	path := l.resolvePath()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else {
		path = "defaults"
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	normalize(cfg)
	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{
		Config: cfg,
		Path:   path,
	}, nil
}

func (l *Loader) resolvePath() string {
	if l.path != "" {
		return l.path
	}
	if p, ok := l.lookupEnv("CONFIG_PATH"); ok && strings.TrimSpace(p) != "" {
		return strings.TrimSpace(p)
	}
	for _, candidate := range defaultConfigFiles {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func (l *Loader) env(keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := l.lookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func (l *Loader) applyEnv(cfg *Config) error {
	if v, ok := l.env("RECOGNIZER_API_KEY", "KIMI_API_KEY"); ok {
		cfg.Recognizer.APIKey = v
	}
	if v, ok := l.env("RECOGNIZER_BASE_URL", "KIMI_API_URL"); ok {
		cfg.Recognizer.BaseURL = v
	}
	if v, ok := l.env("RECOGNIZER_MODEL"); ok {
		cfg.Recognizer.DefaultModel = v
	}
	if v, ok := l.env("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := l.env("HISTORY_DRIVER"); ok {
		cfg.History.Driver = v
	}
	if v, ok := l.env("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// normalize canonicalises values that downstream code compares verbatim.
func normalize(cfg *Config) {
	cfg.History.Driver = strings.ToLower(strings.TrimSpace(cfg.History.Driver))
	if cfg.History.Driver == "" {
		cfg.History.Driver = "memory"
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if strings.TrimSpace(cfg.Recognizer.BaseURL) == "" {
		return fmt.Errorf("recognizer url is required")
	}
	if strings.TrimSpace(cfg.Recognizer.APIKey) == "" {
		return fmt.Errorf("recognizer api_key is required (set RECOGNIZER_API_KEY)")
	}
	if cfg.Recognizer.MaxAttempts < 1 {
		return fmt.Errorf("recognizer max_attempts must be >= 1, got %d", cfg.Recognizer.MaxAttempts)
	}
	if cfg.Recognizer.Timeout <= 0 {
		return fmt.Errorf("recognizer timeout must be positive")
	}
	if cfg.Image.MaxFileSize <= 0 {
		return fmt.Errorf("image max_file_size must be positive")
	}
	if cfg.Image.MaxWidth <= 0 {
		return fmt.Errorf("image max_width must be positive")
	}
	if cfg.Image.JPEGQuality < 1 || cfg.Image.JPEGQuality > 100 {
		return fmt.Errorf("image jpeg_quality must be within 1..100, got %d", cfg.Image.JPEGQuality)
	}
	if cfg.Image.MaxPixels <= 0 {
		return fmt.Errorf("image max_pixels must be positive")
	}
	if len(cfg.Image.AllowedTypes) == 0 {
		return fmt.Errorf("image allowed_types must not be empty")
	}
	switch cfg.History.Driver {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unsupported history driver: %s", cfg.History.Driver)
	}
	if cfg.History.Driver == "redis" && cfg.History.Redis.Addr == "" {
		return fmt.Errorf("history redis addr is required")
	}
	return nil
}
