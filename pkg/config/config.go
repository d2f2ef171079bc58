package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/NEAR-Edu/contract-registry/pkg/auth"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port              int    `yaml:"port"`
	RedisAddr         string `yaml:"redisAddr"`
	RedisPassword     string `yaml:"redisPassword"`
	RedisDB           int    `yaml:"redisDb"`
	Timezone          string `yaml:"timezone"`
	LogLevel          string `yaml:"logLevel"`
	LogFormat         string `yaml:"logFormat"`
	Env               string `yaml:"env"`
	LocalArtifactsDir string `yaml:"localArtifactsDir"`
	HTTPTimeoutSecs   int    `yaml:"httpTimeoutSeconds"`

	Near      NearConfig      `yaml:"near"`
	CircleCI  CircleCIConfig  `yaml:"circleci"`
	Poll      PollConfig      `yaml:"poll"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Jobs      JobsConfig      `yaml:"jobs"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	AdminAuth AuthConfig      `yaml:"adminAuth"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type NearConfig struct {
	// NetworkConfig is a path to a NEAR network JSON file supplying nodeUrl.
	NetworkConfig string `yaml:"networkConfig"`
	NetworkID     string `yaml:"networkId"`
	NodeURL       string `yaml:"nodeUrl"`
	ContractID    string `yaml:"contractId"`
	AccountID     string `yaml:"accountId"`
	SecretKey     string `yaml:"secretKey"`
	Gas           uint64 `yaml:"gas"`

	StatusPolicy      string `yaml:"statusPolicy"`
	StatusBaseMillis  int    `yaml:"statusBaseMillis"`
	StatusMaxMillis   int    `yaml:"statusMaxMillis"`
	StatusMaxAttempts int    `yaml:"statusMaxAttempts"`
}

type CircleCIConfig struct {
	BaseURL             string  `yaml:"baseUrl"`
	ProjectSlug         string  `yaml:"projectSlug"`
	APIKey              string  `yaml:"apiKey"`
	WebhookSecret       string  `yaml:"webhookSecret"`
	MaxBodyBytes        int64   `yaml:"maxBodyBytes"`
	ArtifactConcurrency int     `yaml:"artifactConcurrency"`
	RequestsPerSecond   float64 `yaml:"requestsPerSecond"`
	Burst               int     `yaml:"burst"`
}

type PollConfig struct {
	IntervalMillis int `yaml:"intervalMillis"`
	Buffer         int `yaml:"buffer"`
}

type DispatchConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Branch        string `yaml:"branch"`
	ClaimTTLHours int    `yaml:"claimTtlHours"`
}

type JobsConfig struct {
	RetentionHours         int `yaml:"retentionHours"`
	CleanupIntervalSeconds int `yaml:"cleanupIntervalSeconds"`
}

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

type RateLimitConfig struct {
	Webhook RateLimitBucketConfig `yaml:"webhook"`
	Admin   RateLimitBucketConfig `yaml:"admin"`
}

// AuthConfig selects a registered auth provider for the operator API.
// Config is provider specific and handed over as JSON.
type AuthConfig struct {
	Provider string         `yaml:"provider"`
	Config   map[string]any `yaml:"config"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	OTLPInsecure bool    `yaml:"otlpInsecure"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

// NetworkConfig is the NEAR network description file format.
type NetworkConfig struct {
	NetworkID   string `json:"networkId"`
	NodeURL     string `json:"nodeUrl"`
	ArchivalURL string `json:"archivalUrl,omitempty"`
	WalletURL   string `json:"walletUrl,omitempty"`
	HelperURL   string `json:"helperUrl,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

func LoadNetworkConfig(path string) (*NetworkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read network config: %w", err)
	}
	var nc NetworkConfig
	if err := json.Unmarshal(data, &nc); err != nil {
		return nil, fmt.Errorf("parse network config %s: %w", path, err)
	}
	if strings.TrimSpace(nc.NodeURL) == "" {
		return nil, fmt.Errorf("network config %s: nodeUrl is required", path)
	}
	return &nc, nil
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadConfigOptional loads filePath when it exists and otherwise builds the
// configuration from environment variables and defaults alone.
func LoadConfigOptional(filePath string) (*Config, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath != "" {
		if _, err := os.Stat(filePath); err == nil {
			return LoadConfig(filePath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	var c Config
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) finalize() error {
	c.applyEnv()
	if c.Near.NetworkConfig != "" {
		nc, err := LoadNetworkConfig(c.Near.NetworkConfig)
		if err != nil {
			return err
		}
		if c.Near.NodeURL == "" {
			c.Near.NodeURL = nc.NodeURL
		}
		if c.Near.NetworkID == "" {
			c.Near.NetworkID = nc.NetworkID
		}
	}
	c.applyDefaults()

	log.Printf("Relay Config: {Port:%d Redis:%s Env:%s Node:%s Contract:%s Signer:%s Project:%s Dispatch:%t}\n",
		c.Port, c.RedisAddr, c.Env, c.Near.NodeURL, c.Near.ContractID, c.Near.AccountID, c.CircleCI.ProjectSlug, c.Dispatch.Enabled)
	return nil
}

func (c *Config) applyEnv() {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setInt("PORT", &c.Port)
	setString("REDIS_ADDR", &c.RedisAddr)
	setString("REDIS_PASSWORD", &c.RedisPassword)
	setString("ENV", &c.Env)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("LOG_FORMAT", &c.LogFormat)
	setString("LOCAL_ARTIFACTS_DIR", &c.LocalArtifactsDir)

	setString("NETWORK_CONFIG", &c.Near.NetworkConfig)
	setString("NEAR_NODE_URL", &c.Near.NodeURL)
	setString("CONTRACT_ID", &c.Near.ContractID)
	setString("ACCOUNT_ID", &c.Near.AccountID)
	setString("SECRET_KEY", &c.Near.SecretKey)

	setString("CIRCLECI_BASE_URL", &c.CircleCI.BaseURL)
	setString("CIRCLECI_PROJECT_SLUG", &c.CircleCI.ProjectSlug)
	setString("CIRCLECI_API_KEY", &c.CircleCI.APIKey)
	setString("CIRCLECI_WEBHOOK_SECRET", &c.CircleCI.WebhookSecret)

	setInt("POLL_INTERVAL_MILLIS", &c.Poll.IntervalMillis)
	setBool("DISPATCH_ENABLED", &c.Dispatch.Enabled)
	setString("DISPATCH_BRANCH", &c.Dispatch.Branch)

	if v := strings.TrimSpace(os.Getenv("ADMIN_TOKEN")); v != "" {
		c.AdminAuth = AuthConfig{
			Provider: "static",
			Config:   map[string]any{"token": v, "subject": "admin-token", "scopes": []any{AdminScope}},
		}
	}

	setBool("TRACING_ENABLED", &c.Tracing.Enabled)
	setString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Tracing.SampleRatio = f
		}
	}
}

const (
	AdminScope = "registry:admin"

	DefaultCircleCIBaseURL = "https://circleci.com"
	DefaultMaxBodyBytes    = 32 << 10
	DefaultGas             = 100_000_000_000_000
)

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.LocalArtifactsDir == "" {
		c.LocalArtifactsDir = "/tmp/contract-registry-artifacts"
	}
	if c.HTTPTimeoutSecs <= 0 {
		c.HTTPTimeoutSecs = 30
	}

	if c.Near.Gas == 0 {
		c.Near.Gas = DefaultGas
	}
	if c.Near.StatusPolicy == "" {
		c.Near.StatusPolicy = "fixed"
	}
	if c.Near.StatusBaseMillis <= 0 {
		c.Near.StatusBaseMillis = 2000
	}
	if c.Near.StatusMaxMillis <= 0 {
		c.Near.StatusMaxMillis = c.Near.StatusBaseMillis
	}

	if c.CircleCI.BaseURL == "" {
		c.CircleCI.BaseURL = DefaultCircleCIBaseURL
	}
	if c.CircleCI.MaxBodyBytes <= 0 {
		c.CircleCI.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.CircleCI.ArtifactConcurrency <= 0 {
		c.CircleCI.ArtifactConcurrency = 2
	}
	if c.CircleCI.RequestsPerSecond <= 0 {
		c.CircleCI.RequestsPerSecond = 10
	}
	if c.CircleCI.Burst <= 0 {
		c.CircleCI.Burst = 10
	}

	if c.Poll.IntervalMillis <= 0 {
		c.Poll.IntervalMillis = 5000
	}
	if c.Poll.Buffer <= 0 {
		c.Poll.Buffer = 16
	}
	if c.Dispatch.Branch == "" {
		c.Dispatch.Branch = "main"
	}
	if c.Dispatch.ClaimTTLHours <= 0 {
		c.Dispatch.ClaimTTLHours = 24
	}
	if c.Jobs.RetentionHours <= 0 {
		c.Jobs.RetentionHours = 24
	}
	if c.Jobs.CleanupIntervalSeconds <= 0 {
		c.Jobs.CleanupIntervalSeconds = 60
	}
	if c.RateLimit.Webhook == (RateLimitBucketConfig{}) {
		c.RateLimit.Webhook = RateLimitBucketConfig{RequestsPerMinute: 120, BurstSize: 20}
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "contract-registry-relay"
	}
}

func (c *Config) IsDev() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "dev")
}

// SignerConfigured reports whether on-chain resolution can run.
func (c *Config) SignerConfigured() bool {
	return strings.TrimSpace(c.Near.AccountID) != "" && strings.TrimSpace(c.Near.SecretKey) != ""
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSecs) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMillis) * time.Millisecond
}

func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.Jobs.RetentionHours) * time.Hour
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AdminProvider returns the operator API auth provider config, or false when
// the operator API is not configured.
func (c *Config) AdminProvider() (auth.ProviderConfig, bool, error) {
	if strings.TrimSpace(c.AdminAuth.Provider) == "" {
		return auth.ProviderConfig{}, false, nil
	}
	raw, err := json.Marshal(c.AdminAuth.Config)
	if err != nil {
		return auth.ProviderConfig{}, false, fmt.Errorf("adminAuth.config: %w", err)
	}
	return auth.ProviderConfig{Type: c.AdminAuth.Provider, Config: raw}, true, nil
}

// maxArtifactConcurrency matches the assembler's per-job fetch cap.
const maxArtifactConcurrency = 2

var statusPolicies = map[string]bool{
	"fixed": true, "linear": true, "exponential": true, "exp_equal_jitter": true, "exp_full_jitter": true,
}

func (c *Config) Validate() error {
	var errs []string
	dev := c.IsDev()

	if strings.TrimSpace(c.CircleCI.WebhookSecret) == "" {
		errs = append(errs, "circleci.webhookSecret is required")
	}
	if strings.TrimSpace(c.CircleCI.ProjectSlug) == "" {
		errs = append(errs, "circleci.projectSlug is required")
	}
	if strings.TrimSpace(c.CircleCI.APIKey) == "" {
		errs = append(errs, "circleci.apiKey is required")
	}
	if c.CircleCI.ArtifactConcurrency > maxArtifactConcurrency {
		errs = append(errs, fmt.Sprintf("circleci.artifactConcurrency must not exceed %d", maxArtifactConcurrency))
	}
	if !validHTTPURL(c.CircleCI.BaseURL) {
		errs = append(errs, "circleci.baseUrl must be a valid http(s) URL")
	}
	if c.Near.NodeURL == "" {
		errs = append(errs, "near.nodeUrl (or near.networkConfig) is required")
	} else if !validHTTPURL(c.Near.NodeURL) {
		errs = append(errs, "near.nodeUrl must be a valid http(s) URL")
	}
	if strings.TrimSpace(c.Near.ContractID) == "" {
		errs = append(errs, "near.contractId is required")
	}

	hasAccount := strings.TrimSpace(c.Near.AccountID) != ""
	hasKey := strings.TrimSpace(c.Near.SecretKey) != ""
	switch {
	case hasAccount != hasKey:
		errs = append(errs, "near.accountId and near.secretKey must be set together")
	case !hasAccount && !dev:
		errs = append(errs, "near.accountId and near.secretKey are required in non-dev")
	}
	if !statusPolicies[c.Near.StatusPolicy] {
		errs = append(errs, fmt.Sprintf("near.statusPolicy %q is not supported", c.Near.StatusPolicy))
	}
	if c.Near.StatusMaxMillis < c.Near.StatusBaseMillis {
		errs = append(errs, "near.statusMaxMillis must not be below near.statusBaseMillis")
	}

	if c.Dispatch.Enabled && !hasAccount && !dev {
		errs = append(errs, "dispatch requires signer credentials outside dev")
	}
	if c.AdminAuth.Provider != "" && len(c.AdminAuth.Config) == 0 {
		errs = append(errs, "adminAuth.config is required when adminAuth.provider is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
