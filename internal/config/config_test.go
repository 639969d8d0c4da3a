package config

import (
	"net"
	"os"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Errorf("Addr = %q, want :8787", cfg.Addr)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.AuditTimeout() != 2*time.Second {
		t.Errorf("AuditTimeout = %s, want 2s", cfg.AuditTimeout())
	}
	if cfg.AccessTokenTTL() != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %s, want 15m", cfg.AccessTokenTTL())
	}
	if cfg.DBMaxOpenConns != 20 || cfg.DBConnLifetime() != 30*time.Minute {
		t.Errorf("DB pool = %d / %s, want 20 / 30m", cfg.DBMaxOpenConns, cfg.DBConnLifetime())
	}
	if cfg.ViewCacheSize != 1024 {
		t.Errorf("ViewCacheSize = %d, want 1024", cfg.ViewCacheSize)
	}
	if cfg.AIConfigured() {
		t.Error("AI should not be configured without AI_API_KEY")
	}
	if cfg.SMTPFromName != "Stride" {
		t.Errorf("SMTPFromName = %q", cfg.SMTPFromName)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_SECRET", testSecret)
	os.Setenv("API_ADDR", ":9090")
	os.Setenv("BCRYPT_COST", "10")
	os.Setenv("AUDIT_WRITE_TIMEOUT", "500ms")
	os.Setenv("AI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("BcryptCost = %d, want 10", cfg.BcryptCost)
	}
	if cfg.AuditTimeout() != 500*time.Millisecond {
		t.Errorf("AuditTimeout = %s", cfg.AuditTimeout())
	}
	if !cfg.AIConfigured() {
		t.Error("AI should be configured")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "short secret", env: map[string]string{"JWT_SECRET": "short"}, want: "JWT_SECRET"},
		{name: "bcrypt too low", env: map[string]string{"JWT_SECRET": testSecret, "BCRYPT_COST": "3"}, want: "BCRYPT_COST"},
		{name: "bcrypt too high", env: map[string]string{"JWT_SECRET": testSecret, "BCRYPT_COST": "32"}, want: "BCRYPT_COST"},
		{name: "bad duration", env: map[string]string{"JWT_SECRET": testSecret, "ACCESS_TTL": "soon"}, want: "ACCESS_TTL"},
		{name: "bad proxy", env: map[string]string{"JWT_SECRET": testSecret, "TRUSTED_PROXIES": "10.0.0.0/8, proxy.local"}, want: "TRUSTED_PROXIES"},
		{name: "negative pool", env: map[string]string{"JWT_SECRET": testSecret, "DB_MAX_OPEN_CONNS": "-1"}, want: "DB_MAX_OPEN_CONNS"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			for key, value := range tc.env {
				os.Setenv(key, value)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.HasPrefix(err.Error(), "config:") || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %q, want config: ... %s", err, tc.want)
			}
		})
	}
}

func TestTrustedProxyNets(t *testing.T) {
	cfg := &Config{TrustedProxies: " 10.0.0.0/8, 192.0.2.7 ,,::1"}
	nets, err := cfg.TrustedProxyNets()
	if err != nil {
		t.Fatalf("TrustedProxyNets: %v", err)
	}
	if len(nets) != 3 {
		t.Fatalf("got %d networks, want 3", len(nets))
	}
	for _, tc := range []struct {
		ip   string
		want bool
	}{
		{"10.1.2.3", true},
		{"192.0.2.7", true},
		{"192.0.2.8", false},
		{"::1", true},
	} {
		got := false
		for _, n := range nets {
			if n.Contains(net.ParseIP(tc.ip)) {
				got = true
			}
		}
		if got != tc.want {
			t.Errorf("%s trusted = %t, want %t", tc.ip, got, tc.want)
		}
	}
}
