package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	// One variable set so every other field takes its tag default.
	t.Setenv("MCPCTX_LOG_LEVEL", "info")
	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), got); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MCPCTX_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("MCPCTX_STORE", "sqlite")
	t.Setenv("MCPCTX_SQLITE_DSN", ":memory:")
	t.Setenv("MCPCTX_AUTH_MODE", "hmac")
	t.Setenv("MCPCTX_ISSUER", "https://issuer.example.com")
	t.Setenv("MCPCTX_AUDIENCE", "mcp")
	t.Setenv("MCPCTX_HMAC_SECRET", "s3cret")
	t.Setenv("MCPCTX_SCOPES", "mcp:read, mcp:search,")
	t.Setenv("MCPCTX_SESSION_TIMEOUT", "90s")
	t.Setenv("MCPCTX_LOG_LEVEL", "debug")
	t.Setenv("MCPCTX_ORG", "/Acme")

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.HTTPAddr = "127.0.0.1:9000"
	want.Store = StoreSQLite
	want.SQLiteDSN = ":memory:"
	want.AuthMode = AuthHMAC
	want.Issuer = "https://issuer.example.com"
	want.Audience = "mcp"
	want.HMACSecret = "s3cret"
	want.Scopes = "mcp:read, mcp:search,"
	want.SessionTimeout = 90 * time.Second
	want.LogLevel = "debug"
	want.Org = "/Acme"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"mcp:read", "mcp:search"}, got.RequiredScopes()); diff != "" {
		t.Fatalf("scopes mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown store", func(c *Config) { c.Store = "postgres" }, `unknown store "postgres"`},
		{"unknown auth", func(c *Config) { c.AuthMode = "basic" }, `unknown auth mode "basic"`},
		{"hmac without secret", func(c *Config) {
			c.AuthMode, c.Issuer, c.Audience = AuthHMAC, "iss", "aud"
		}, "MCPCTX_HMAC_SECRET"},
		{"static without jwks", func(c *Config) {
			c.AuthMode, c.Issuer, c.Audience = AuthStatic, "iss", "aud"
		}, "MCPCTX_JWKS_URI"},
		{"discovery without issuer", func(c *Config) { c.AuthMode, c.Audience = AuthDiscovery, "aud" }, "MCPCTX_ISSUER"},
		{"discovery", func(c *Config) { c.AuthMode, c.Issuer, c.Audience = AuthDiscovery, "iss", "aud" }, ""},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"seed without org", func(c *Config) { c.SeedDir = "testdata" }, "MCPCTX_ORG"},
		{"seed with org", func(c *Config) { c.SeedDir, c.Org = "testdata", "/Acme" }, ""},
		{"zero page size", func(c *Config) { c.PageSize = 0 }, "page size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("MCPCTX_STORE", "cassandra")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}
