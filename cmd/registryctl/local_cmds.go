package main

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/NEAR-Edu/contract-registry/internal/circleci"
	"github.com/NEAR-Edu/contract-registry/internal/near"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// hashFile returns the code hash of the file at path, reporting progress to bar when set.
func hashFile(path string, bar io.Writer) (domain.CodeHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	var w io.Writer = h
	if bar != nil {
		w = io.MultiWriter(h, bar)
	}
	if _, err := io.Copy(w, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return domain.CodeHash(h.Sum(nil)), nil
}

func hashCmd(ui *ui) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:     "hash <file>",
		Short:   "Print the base58 SHA-256 code hash of a binary",
		Example: "registryctl hash out/out.wasm",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var bar io.Writer
			if !quiet {
				if st, err := os.Stat(args[0]); err == nil {
					bar = progressbar.NewOptions64(st.Size(),
						progressbar.OptionSetDescription("Hashing"),
						progressbar.OptionSetWriter(os.Stderr),
						progressbar.OptionSetWidth(18),
						progressbar.OptionShowBytes(true),
						progressbar.OptionClearOnFinish(),
					)
				}
			}
			hash, err := hashFile(args[0], bar)
			if err != nil {
				return err
			}
			fmt.Println(hash.String())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the hash")
	return cmd
}

func keygenCmd(ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 key pair in NEAR format",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := near.GenerateKeyPair()
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.info("public_key:"), kp.PublicKeyString())
			fmt.Printf("%s %s\n", ui.warn("secret_key:"), kp.SecretKeyString())
			fmt.Println(ui.dim("Add the public key to the relay account as a full access key."))
			return nil
		},
	}
}

func signCmd(s *settings, ui *ui) *cobra.Command {
	var (
		file string
		data string
		send bool
	)
	cmd := &cobra.Command{
		Use:     "sign",
		Short:   "Compute the circleci-signature header for a webhook body",
		Example: "registryctl sign --data '{\"job\":{\"number\":42,\"status\":\"success\"}}' --send",
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.webhookSecret == "" {
				return errors.New("webhook secret is required (set CIRCLECI_WEBHOOK_SECRET or run `registryctl init`)")
			}
			body := []byte(data)
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				body = b
			}
			if len(body) == 0 {
				return errors.New("a body is required (--data or --file)")
			}
			header := circleci.SignatureHeaderValue([]byte(s.webhookSecret), body)
			if !send {
				fmt.Printf("%s: %s\n", circleci.SignatureHeader, header)
				return nil
			}

			c := newClient(s)
			c.token = ""
			status, resp, err := c.request(http.MethodPost, "/webhook", body, map[string]string{
				circleci.SignatureHeader: header,
				"Content-Type":           "application/json",
			})
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, strings.TrimSpace(string(resp)))
			}
			fmt.Printf("%s %s\n", ui.ok("[OK]"), strings.TrimSpace(string(resp)))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Read the body from a file")
	cmd.Flags().StringVar(&data, "data", "", "Body given inline")
	cmd.Flags().BoolVar(&send, "send", false, "POST the signed body to the relay webhook")
	return cmd
}
