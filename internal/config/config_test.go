package config

import (
	"strings"
	"testing"
)

func validSecret() string {
	return strings.Repeat("ab", 32)
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", strings.Repeat("x", 32))
	t.Setenv("SERVER_SECRET", validSecret())
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want 8080", cfg.ServerPort)
	}
	if cfg.ServerEnv != "production" {
		t.Errorf("ServerEnv = %q, want production", cfg.ServerEnv)
	}
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true, want false for default env")
	}
}

func TestLoadMissingJWTSecret(t *testing.T) {
	t.Setenv("SERVER_SECRET", validSecret())

	if _, err := Load(); err == nil {
		t.Fatal("Load() with no JWT_SECRET should error")
	}
}

func TestLoadShortJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")
	t.Setenv("SERVER_SECRET", validSecret())

	if _, err := Load(); err == nil {
		t.Fatal("Load() with short JWT_SECRET should error")
	}
}

func TestLoadMissingServerSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("x", 32))

	if _, err := Load(); err == nil {
		t.Fatal("Load() with no SERVER_SECRET should error")
	}
}

func TestLoadInvalidServerSecretLength(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("x", 32))
	t.Setenv("SERVER_SECRET", "deadbeef")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with too-short SERVER_SECRET should error")
	}
}

func TestLoadInvalidPort(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_PORT", "70000")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with out-of-range SERVER_PORT should error")
	}
}

func TestLoadDatabaseMinExceedsMax(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_MIN_CONNS", "30")
	t.Setenv("DATABASE_MAX_CONNS", "10")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with DATABASE_MIN_CONNS > DATABASE_MAX_CONNS should error")
	}
}

func TestLoadPartialInitOwnerIsRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INIT_OWNER_USERNAME", "root")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with only INIT_OWNER_USERNAME set should error")
	}
}

func TestLoadInitOwnerBothSet(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INIT_OWNER_USERNAME", "root")
	t.Setenv("INIT_OWNER_PASSWORD", "correct-horse-battery")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InitOwnerUsername != "root" {
		t.Errorf("InitOwnerUsername = %q, want root", cfg.InitOwnerUsername)
	}
}

func TestLoadInvalidDurationFormat(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_ACCESS_TTL", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with malformed JWT_ACCESS_TTL should error")
	}
}

func TestLoadDevelopmentMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}
}
