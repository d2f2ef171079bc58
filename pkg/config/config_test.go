package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func validConfig() *Config {
	c := &Config{
		Env: "prod",
		Near: NearConfig{
			NodeURL:    "https://rpc.testnet.near.org",
			ContractID: "registry.testnet",
			AccountID:  "relay.testnet",
			SecretKey:  "ed25519:abc",
		},
		CircleCI: CircleCIConfig{
			ProjectSlug:   "gh/near/registry-builds",
			APIKey:        "ci-key",
			WebhookSecret: "hook-secret",
		},
	}
	c.applyDefaults()
	return c
}

func TestLoadConfigOptionalEmptyPath(t *testing.T) {
	t.Setenv("PORT", "9999")

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Expected Port=9999 from env, got %d", cfg.Port)
	}
}

func TestLoadConfigOptionalDefaults(t *testing.T) {
	cfg, err := LoadConfigOptional("   ")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"port", cfg.Port, 8000},
		{"poll interval", cfg.PollInterval().String(), "5s"},
		{"poll buffer", cfg.Poll.Buffer, 16},
		{"artifact concurrency", cfg.CircleCI.ArtifactConcurrency, 2},
		{"http timeout", cfg.HTTPTimeout().String(), "30s"},
		{"body cap", cfg.CircleCI.MaxBodyBytes, int64(32 * 1024)},
		{"gas", cfg.Near.Gas, uint64(100_000_000_000_000)},
		{"status policy", cfg.Near.StatusPolicy, "fixed"},
		{"status base", cfg.Near.StatusBaseMillis, 2000},
		{"status attempts", cfg.Near.StatusMaxAttempts, 0},
		{"circleci base", cfg.CircleCI.BaseURL, "https://circleci.com"},
		{"circleci rps", cfg.CircleCI.RequestsPerSecond, 10.0},
		{"dispatch", cfg.Dispatch.Enabled, false},
		{"retention", cfg.JobRetention().String(), "24h0m0s"},
		{"env", cfg.Env, "dev"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadConfigOptionalFileNotExist(t *testing.T) {
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected non-nil config")
	}
}

func TestLoadConfigOptionalInvalidYAML(t *testing.T) {
	path := writeFile(t, "invalid.yaml", `
port: 8080
redisAddr: "localhost:6379"
  invalid indentation here
  more bad yaml
`)
	if _, err := LoadConfigOptional(path); err == nil {
		t.Fatal("Expected error when loading invalid YAML, got nil")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeFile(t, "relay.yaml", `
port: 8080
redisAddr: "redis:6379"
env: "test"
near:
  nodeUrl: "https://rpc.testnet.near.org"
  contractId: "registry.testnet"
  statusPolicy: "linear"
  statusBaseMillis: 500
  statusMaxMillis: 4000
  statusMaxAttempts: 20
circleci:
  projectSlug: "gh/near/registry-builds"
  webhookSecret: "file-secret"
dispatch:
  enabled: true
  branch: "verify"
adminAuth:
  provider: static
  config:
    token: "t-1"
    scopes: ["registry:admin"]
`)
	cfg, err := LoadConfigOptional(path)
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.Port != 8080 || cfg.RedisAddr != "redis:6379" || cfg.Env != "test" {
		t.Errorf("top level not loaded: %+v", cfg)
	}
	if cfg.Near.StatusPolicy != "linear" || cfg.Near.StatusMaxAttempts != 20 || cfg.Near.StatusMaxMillis != 4000 {
		t.Errorf("status policy not loaded: %+v", cfg.Near)
	}
	if !cfg.Dispatch.Enabled || cfg.Dispatch.Branch != "verify" {
		t.Errorf("dispatch not loaded: %+v", cfg.Dispatch)
	}

	pc, ok, err := cfg.AdminProvider()
	if err != nil || !ok {
		t.Fatalf("AdminProvider: ok=%v err=%v", ok, err)
	}
	var raw struct {
		Token  string   `json:"token"`
		Scopes []string `json:"scopes"`
	}
	if err := json.Unmarshal(pc.Config, &raw); err != nil {
		t.Fatalf("provider config not JSON: %v", err)
	}
	if pc.Type != "static" || raw.Token != "t-1" || raw.Scopes[0] != AdminScope {
		t.Errorf("unexpected provider %s %+v", pc.Type, raw)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "relay.yaml", `
port: 8080
redisAddr: "localhost:6379"
near:
  contractId: "file.testnet"
circleci:
  apiKey: "file-key"
`)
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "env-redis:6380")
	t.Setenv("CONTRACT_ID", "env.testnet")
	t.Setenv("CIRCLECI_API_KEY", "env-key")
	t.Setenv("ACCOUNT_ID", "relay.testnet")
	t.Setenv("SECRET_KEY", "ed25519:xyz")
	t.Setenv("DISPATCH_ENABLED", "true")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := LoadConfigOptional(path)
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.Port != 9090 || cfg.RedisAddr != "env-redis:6380" {
		t.Errorf("env did not override: port=%d redis=%s", cfg.Port, cfg.RedisAddr)
	}
	if cfg.Near.ContractID != "env.testnet" || cfg.CircleCI.APIKey != "env-key" {
		t.Errorf("env did not override nested values: %+v %+v", cfg.Near, cfg.CircleCI)
	}
	if !cfg.SignerConfigured() || !cfg.Dispatch.Enabled || cfg.LogFormat != "text" {
		t.Errorf("unexpected %+v", cfg)
	}
}

func TestAdminTokenEnv(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "secret-admin")
	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	pc, ok, err := cfg.AdminProvider()
	if err != nil || !ok || pc.Type != "static" {
		t.Fatalf("AdminProvider: %+v ok=%v err=%v", pc, ok, err)
	}
	if !strings.Contains(string(pc.Config), `"registry:admin"`) {
		t.Errorf("admin token missing scope: %s", pc.Config)
	}
}

func TestNetworkConfigSuppliesNodeURL(t *testing.T) {
	path := writeFile(t, "testnet.json", `{"networkId":"testnet","nodeUrl":"https://rpc.testnet.near.org","walletUrl":"https://wallet.testnet.near.org","helperUrl":"https://helper.testnet.near.org","explorerUrl":"https://explorer.testnet.near.org"}`)
	t.Setenv("NETWORK_CONFIG", path)

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.Near.NodeURL != "https://rpc.testnet.near.org" || cfg.Near.NetworkID != "testnet" {
		t.Errorf("network config not applied: %+v", cfg.Near)
	}

	t.Setenv("NEAR_NODE_URL", "http://localhost:3030")
	cfg, err = LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.Near.NodeURL != "http://localhost:3030" {
		t.Errorf("explicit node url must win, got %s", cfg.Near.NodeURL)
	}
}

func TestNetworkConfigErrors(t *testing.T) {
	if _, err := LoadNetworkConfig(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadNetworkConfig(writeFile(t, "bad.json", `{"networkId":"x"}`)); err == nil {
		t.Error("expected error for missing nodeUrl")
	}
	t.Setenv("NETWORK_CONFIG", writeFile(t, "broken.json", `{`))
	if _, err := LoadConfigOptional(""); err == nil {
		t.Error("expected error for unparsable network config")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing webhook secret", func(c *Config) { c.CircleCI.WebhookSecret = "" }, "webhookSecret"},
		{"missing slug", func(c *Config) { c.CircleCI.ProjectSlug = "" }, "projectSlug"},
		{"missing api key", func(c *Config) { c.CircleCI.APIKey = "" }, "apiKey"},
		{"artifact concurrency above cap", func(c *Config) { c.CircleCI.ArtifactConcurrency = 8 }, "artifactConcurrency"},
		{"artifact concurrency at cap", func(c *Config) { c.CircleCI.ArtifactConcurrency = 2 }, ""},
		{"missing node url", func(c *Config) { c.Near.NodeURL = "" }, "nodeUrl"},
		{"bad node url", func(c *Config) { c.Near.NodeURL = "rpc.near.org" }, "nodeUrl"},
		{"missing contract", func(c *Config) { c.Near.ContractID = "" }, "contractId"},
		{"account without key", func(c *Config) { c.Near.SecretKey = "" }, "set together"},
		{"no signer outside dev", func(c *Config) { c.Near.AccountID, c.Near.SecretKey = "", "" }, "required in non-dev"},
		{"no signer in dev", func(c *Config) { c.Env = "dev"; c.Near.AccountID, c.Near.SecretKey = "", "" }, ""},
		{"unknown policy", func(c *Config) { c.Near.StatusPolicy = "random" }, "statusPolicy"},
		{"inverted policy bounds", func(c *Config) { c.Near.StatusMaxMillis = 10 }, "statusMaxMillis"},
		{"auth provider without config", func(c *Config) { c.AdminAuth.Provider = "jwks" }, "adminAuth.config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
