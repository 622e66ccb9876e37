package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
port: "8080"
logLevel: info
databaseURL: postgres://localhost/kensho
redisAddr: localhost:6379
storageBackend: local
dataDir: /tmp/kensho-data
geminiAPIKey: test-key
jwtSecret: test-secret
sessionTTL: 12h
ingestRateLimitPerMinute: 10
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.SessionTTLDuration() != 12*time.Hour {
		t.Fatalf("SessionTTLDuration() = %v, want 12h", cfg.SessionTTLDuration())
	}
	if cfg.GeminiTimeoutDuration() != 90*time.Second {
		t.Fatalf("GeminiTimeoutDuration() = %v, want 90s default", cfg.GeminiTimeoutDuration())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://override/db")
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("INGEST_RATE_LIMIT_PER_MINUTE", "3")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://override/db" {
		t.Fatalf("DatabaseURL = %q, want env override", cfg.DatabaseURL)
	}
	if cfg.GeminiAPIKey != "env-key" {
		t.Fatalf("GeminiAPIKey = %q, want env override", cfg.GeminiAPIKey)
	}
	if cfg.IngestRateLimitPerMinute != 3 {
		t.Fatalf("IngestRateLimitPerMinute = %d, want 3", cfg.IngestRateLimitPerMinute)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "missing port",
			mutate:  func(s string) string { return strings.Replace(s, `port: "8080"`, "", 1) },
			wantErr: "port",
		},
		{
			name:    "missing database",
			mutate:  func(s string) string { return strings.Replace(s, "databaseURL: postgres://localhost/kensho", "", 1) },
			wantErr: "databaseURL",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(s string) string { return strings.Replace(s, "jwtSecret: test-secret", "", 1) },
			wantErr: "jwtSecret",
		},
		{
			name:    "unknown storage backend",
			mutate:  func(s string) string { return strings.Replace(s, "storageBackend: local", "storageBackend: ftp", 1) },
			wantErr: "storageBackend",
		},
		{
			name: "minio without endpoint",
			mutate: func(s string) string {
				return strings.Replace(s, "storageBackend: local", "storageBackend: minio", 1)
			},
			wantErr: "minioEndpoint",
		},
		{
			name:    "bad session ttl",
			mutate:  func(s string) string { return strings.Replace(s, "sessionTTL: 12h", "sessionTTL: yesterday", 1) },
			wantErr: "sessionTTL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.mutate(validYAML)))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("missing file must error")
	}
}
