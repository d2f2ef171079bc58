package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

type profile struct {
	BaseURL       string `yaml:"baseUrl"`
	Token         string `yaml:"token"`
	WebhookSecret string `yaml:"webhookSecret"`
	NodeURL       string `yaml:"nodeUrl"`
	ContractID    string `yaml:"contractId"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

// applyProfile fills every setting not given as a flag or env var from the active profile.
func applyProfile(s *settings, changed func(string) bool, cfg cliConfig) {
	active := resolveProfileName(s.profile, cfg)
	prof := cfg.Profiles[active]
	if !changed("base-url") && os.Getenv("REGISTRY_BASE_URL") == "" && prof.BaseURL != "" {
		s.baseURL = prof.BaseURL
	}
	if !changed("token") && os.Getenv("REGISTRY_TOKEN") == "" && prof.Token != "" {
		s.token = prof.Token
	}
	if s.webhookSecret == "" {
		s.webhookSecret = prof.WebhookSecret
	}
	if s.nodeURL == "" {
		s.nodeURL = prof.NodeURL
	}
	if s.contractID == "" {
		s.contractID = prof.ContractID
	}
	s.profile = active
}

func initCmd(s *settings, ui *ui) *cobra.Command {
	var noPrompt bool
	var prof profile
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(s.profile, cfg)
			cur := cfg.Profiles[active]
			prof.BaseURL = firstNonEmpty(prof.BaseURL, cur.BaseURL, s.baseURL)
			prof.NodeURL = firstNonEmpty(prof.NodeURL, cur.NodeURL, s.nodeURL)
			prof.ContractID = firstNonEmpty(prof.ContractID, cur.ContractID, s.contractID)
			prof.Token = firstNonEmpty(prof.Token, cur.Token)
			prof.WebhookSecret = firstNonEmpty(prof.WebhookSecret, cur.WebhookSecret)

			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				prof.BaseURL = prompt(reader, "Relay base URL", prof.BaseURL)
				prof.NodeURL = prompt(reader, "NEAR node URL", prof.NodeURL)
				prof.ContractID = prompt(reader, "Registry contract id", prof.ContractID)
				if prof.Token == "" {
					if prof.Token, err = promptSecret("Operator token (optional)"); err != nil {
						return err
					}
				}
				if prof.WebhookSecret == "" {
					if prof.WebhookSecret, err = promptSecret("Webhook secret (optional)"); err != nil {
						return err
					}
				}
			}

			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || s.profile != "" {
				cfg.CurrentProfile = active
			}
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s (token %s)\n", ui.ok("[OK]"), active, cfgPath, maskToken(prof.Token))
			return nil
		},
	}
	cmd.Flags().StringVar(&prof.BaseURL, "relay-url", "", "Relay base URL")
	cmd.Flags().StringVar(&prof.NodeURL, "node-url", "", "NEAR node URL")
	cmd.Flags().StringVar(&prof.ContractID, "contract", "", "Registry contract id")
	cmd.Flags().StringVar(&prof.Token, "operator-token", "", "Operator bearer token")
	cmd.Flags().StringVar(&prof.WebhookSecret, "webhook-secret", "", "CircleCI webhook secret")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("REGISTRY_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".registryctl", "config.yaml")
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	var cfg cliConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cliConfig{Profiles: map[string]profile{}}, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", nil
		}
		return strings.TrimSpace(line), nil
	}
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func maskToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
