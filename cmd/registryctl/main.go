package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

// settings are the resolved connection values shared by every command.
type settings struct {
	profile       string
	baseURL       string
	token         string
	webhookSecret string
	nodeURL       string
	contractID    string
}

type client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newClient(s *settings) *client {
	return &client{
		baseURL:    strings.TrimRight(s.baseURL, "/"),
		token:      s.token,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (c *client) request(method, path string, body []byte, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, nil
}

// getJSON decodes a 2xx response into out, or returns the server's error.
func (c *client) getJSON(method, path string, out any) error {
	status, resp, err := c.request(method, path, nil, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("error (%d): %s", status, strings.TrimSpace(string(resp)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp, out)
}

func main() {
	s := &settings{
		profile:       getenv("REGISTRY_PROFILE", ""),
		baseURL:       getenv("REGISTRY_BASE_URL", "http://localhost:8000"),
		token:         getenv("REGISTRY_TOKEN", ""),
		webhookSecret: getenv("CIRCLECI_WEBHOOK_SECRET", ""),
		nodeURL:       getenv("NEAR_NODE_URL", ""),
		contractID:    getenv("CONTRACT_ID", ""),
	}
	ui := newUI()

	root := &cobra.Command{
		Use:   "registryctl",
		Short: "Contract registry operator CLI",
		Long:  "Operator CLI for the contract registry relay: code hashes, webhook signing, contract views and manual resolution.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&s.baseURL, "base-url", s.baseURL, "Relay base URL")
	root.PersistentFlags().StringVar(&s.token, "token", s.token, "Operator bearer token")
	root.PersistentFlags().StringVar(&s.profile, "profile", s.profile, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadConfig()
		applyProfile(s, cmd.Flags().Changed, cfg)
		return nil
	}

	root.AddCommand(
		initCmd(s, ui),
		hashCmd(ui),
		keygenCmd(ui),
		signCmd(s, ui),
		pendingCmd(s, ui),
		requestCmd(s, ui),
		verifyCmd(s, ui),
		feeCmd(s, ui),
		jobCmd(s, ui),
		resolveCmd(s, ui),
		watchCmd(s, ui),
		submitCmd(s, ui),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func helpTemplate(ui *ui) string {
	title := ui.title("registryctl")
	return fmt.Sprintf(`%s: contract registry operator CLI

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  registryctl hash out/out.wasm
  registryctl sign --file payload.json --send
  registryctl pending
  registryctl resolve failure 12
  registryctl fee set 1000000000000000000000000
  registryctl submit https://github.com/org/contract --fee 1000 --account alice.testnet
  registryctl watch --node-url https://rpc.testnet.near.org --contract registry.testnet

`, title, configPath())
}
