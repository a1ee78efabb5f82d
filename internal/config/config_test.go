package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port: got %d, want 8080", cfg.Port)
	}
	if cfg.Mode != "release" {
		t.Fatalf("mode: got %q, want release", cfg.Mode)
	}
	if cfg.Presence != "listeners" {
		t.Fatalf("presence: got %q, want listeners", cfg.Presence)
	}
	if cfg.PingPeriod != 54*time.Second {
		t.Fatalf("ping period: got %v, want 54s", cfg.PingPeriod)
	}
	if cfg.Auth.Attempts != 3 {
		t.Fatalf("auth attempts: got %d, want 3", cfg.Auth.Attempts)
	}
	if cfg.Auth.Timeout != 3*time.Second {
		t.Fatalf("auth timeout: got %v, want 3s", cfg.Auth.Timeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SIGRELAY_PORT", "9191")
	t.Setenv("SIGRELAY_PRESENCE", "all")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9191 {
		t.Fatalf("port: got %d, want 9191", cfg.Port)
	}
	if cfg.Presence != "all" {
		t.Fatalf("presence: got %q, want all", cfg.Presence)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bogus presence policy", "SIGRELAY_PRESENCE", "everyone"},
		{"zero auth attempts", "SIGRELAY_AUTH_ATTEMPTS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected load to fail for %s=%s", tt.key, tt.value)
			}
		})
	}
}
