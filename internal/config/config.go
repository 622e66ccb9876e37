package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	// StorageBackend selects where uploaded audio lives: local | minio.
	StorageBackend string `yaml:"storageBackend"`
	DataDir        string `yaml:"dataDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	GoogleCredentialsFile string   `yaml:"googleCredentialsFile"`
	GoogleProjectID       string   `yaml:"googleProjectID"`
	SpeechLanguages       []string `yaml:"speechLanguages"`
	AudioFormats          []string `yaml:"audioFormats"`
	MaxAudioBytes         int64    `yaml:"maxAudioBytes"`

	CaptionLanguages []string `yaml:"captionLanguages"`

	GeminiAPIKey          string  `yaml:"geminiAPIKey"`
	GeminiModel           string  `yaml:"geminiModel"`
	GeminiTemperature     float64 `yaml:"geminiTemperature"`
	GeminiMaxOutputTokens int     `yaml:"geminiMaxOutputTokens"`
	GeminiTimeout         string  `yaml:"geminiTimeout"`

	JWTSecret  string `yaml:"jwtSecret"`
	SessionTTL string `yaml:"sessionTTL"`

	IngestRateLimitPerMinute int   `yaml:"ingestRateLimitPerMinute"`
	MaxUploadBytes           int64 `yaml:"maxUploadBytes"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
	if v := os.Getenv("GOOGLE_PROJECT_ID"); v != "" {
		cfg.GoogleProjectID = v
	}
	if v := os.Getenv("SPEECH_LANGUAGES"); v != "" {
		cfg.SpeechLanguages = splitCSV(v)
	}
	if v := os.Getenv("CAPTION_LANGUAGES"); v != "" {
		cfg.CaptionLanguages = splitCSV(v)
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.GeminiModel = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		cfg.SessionTTL = v
	}
	if v := os.Getenv("INGEST_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IngestRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return errors.New("config: geminiAPIKey is required (set in config.yaml or GEMINI_API_KEY)")
	}
	switch cfg.StorageBackend {
	case "", "local":
		if strings.TrimSpace(cfg.DataDir) == "" {
			return errors.New("config: dataDir is required for local storage")
		}
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return errors.New("config: minioEndpoint, minioBucket, minioAccessKey and minioSecretKey are required for minio storage")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q (local or minio)", cfg.StorageBackend)
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for rate limiting")
	}
	if cfg.IngestRateLimitPerMinute < 0 {
		return errors.New("config: ingestRateLimitPerMinute must be >= 0")
	}
	if cfg.SessionTTL != "" {
		if _, err := time.ParseDuration(cfg.SessionTTL); err != nil {
			return fmt.Errorf("config: invalid sessionTTL: %w", err)
		}
	}
	if cfg.GeminiTimeout != "" {
		if _, err := time.ParseDuration(cfg.GeminiTimeout); err != nil {
			return fmt.Errorf("config: invalid geminiTimeout: %w", err)
		}
	}
	return nil
}

// SessionTTLDuration returns the parsed session lifetime, defaulting to
// 24 hours.
func (c FileConfig) SessionTTLDuration() time.Duration {
	if d, err := time.ParseDuration(c.SessionTTL); err == nil && d > 0 {
		return d
	}
	return 24 * time.Hour
}

// GeminiTimeoutDuration returns the parsed generation timeout,
// defaulting to 90 seconds.
func (c FileConfig) GeminiTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.GeminiTimeout); err == nil && d > 0 {
		return d
	}
	return 90 * time.Second
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
