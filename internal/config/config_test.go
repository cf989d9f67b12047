package config

import (
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Engine: EngineConfig{BaseURL: "https://engine.example.com", APIKey: "k"},
		Vault:  VaultConfig{EncryptionKey: "0123456789abcdef0123456789abcdef"},
		Auth:   AuthConfig{JWTSecret: "secret"},
	}
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
engine:
  base_url: https://engine.example.com
  api_key: file-key
vault:
  encryption_key: 0123456789abcdef0123456789abcdef
auth:
  jwt_secret: secret
database:
  backend: memory
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ENGINE_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.APIKey != "env-key" {
		t.Fatalf("api key = %q, want env override", cfg.Engine.APIKey)
	}
	if cfg.Server.Port != 8090 {
		t.Fatalf("default port = %d", cfg.Server.Port)
	}
	if cfg.Database.Backend != "memory" {
		t.Fatalf("backend = %q", cfg.Database.Backend)
	}
}

func TestValidateRejectsMissingEngine(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("accepted missing engine base_url")
	}

	cfg = validConfig()
	cfg.Engine.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("accepted missing engine api_key")
	}
}

func TestValidateBackendRequirements(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Backend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatal("accepted postgres backend without dsn")
	}
	cfg.Database.DSN = "postgres://localhost/db"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cfg = validConfig()
	cfg.Database.Backend = "supabase"
	if err := cfg.Validate(); err == nil {
		t.Fatal("accepted supabase backend without url and key")
	}

	cfg = validConfig()
	cfg.Database.Backend = "cassandra"
	if err := cfg.Validate(); err == nil {
		t.Fatal("accepted unknown backend")
	}
}

func TestEncryptionKeyBytesFormats(t *testing.T) {
	raw := "0123456789abcdef0123456789abcdef"

	cfg := validConfig()
	cfg.Vault.EncryptionKey = raw
	key, err := cfg.EncryptionKeyBytes()
	if err != nil || len(key) != 32 {
		t.Fatalf("raw key: %v, len %d", err, len(key))
	}

	cfg.Vault.EncryptionKey = base64.StdEncoding.EncodeToString([]byte(raw))
	key, err = cfg.EncryptionKeyBytes()
	if err != nil || len(key) != 32 {
		t.Fatalf("base64 key: %v, len %d", err, len(key))
	}

	cfg.Vault.EncryptionKey = hex.EncodeToString([]byte(raw))
	key, err = cfg.EncryptionKeyBytes()
	if err != nil || len(key) != 32 {
		t.Fatalf("hex key: %v, len %d", err, len(key))
	}

	cfg.Vault.EncryptionKey = "short"
	if _, err := cfg.EncryptionKeyBytes(); err == nil {
		t.Fatal("accepted short key")
	}
}
