package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/NEAR-Edu/contract-registry/internal/near"
	"github.com/NEAR-Edu/contract-registry/internal/watch"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// withSpinner runs fn while a spinner with label is shown.
func withSpinner(label string, fn func() error) error {
	spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
	spin.Suffix = " " + label
	spin.Writer = os.Stderr
	spin.Start()
	err := fn()
	spin.Stop()
	return err
}

func printRequest(ui *ui, r domain.VerificationRequest) {
	status := string(r.Status)
	switch r.Status {
	case domain.VerificationSuccess:
		status = ui.ok(status)
	case domain.VerificationFailure:
		status = ui.err(status)
	default:
		status = ui.warn(status)
	}
	line := fmt.Sprintf("#%-5d %-8s %s %s", r.ID, status, r.Repository, ui.dim("fee="+r.Fee.String()))
	if len(r.CodeHash) > 0 {
		line += " " + ui.info(r.CodeHash.String())
	}
	fmt.Println(line)
}

func pendingCmd(s *settings, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List pending verification requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Requests []domain.VerificationRequest `json:"requests"`
			}
			err := withSpinner("Fetching pending requests...", func() error {
				return newClient(s).getJSON(http.MethodGet, "/v1/registry/requests/pending", &out)
			})
			if err != nil {
				return err
			}
			if len(out.Requests) == 0 {
				fmt.Println(ui.dim("No pending requests."))
				return nil
			}
			for _, r := range out.Requests {
				printRequest(ui, r)
			}
			return nil
		},
	}
}

func requestCmd(s *settings, ui *ui) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Verification request operations",
	}
	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a verification request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid request id %q", args[0])
			}
			var r domain.VerificationRequest
			if err := newClient(s).getJSON(http.MethodGet, "/v1/registry/requests/"+strconv.FormatUint(id, 10), &r); err != nil {
				return err
			}
			printRequest(ui, r)
			return nil
		},
	}
	cmd.AddCommand(get)
	return cmd
}

func verifyCmd(s *settings, ui *ui) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:     "verify [code-hash]",
		Short:   "Look up the verification stored for a code hash",
		Example: "registryctl verify --file out/out.wasm",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var hash domain.CodeHash
			var err error
			switch {
			case file != "":
				hash, err = hashFile(file, nil)
			case len(args) == 1:
				hash, err = domain.ParseCodeHash(args[0])
			default:
				err = errors.New("a code hash or --file is required")
			}
			if err != nil {
				return err
			}
			var res domain.VerificationResult
			if err := newClient(s).getJSON(http.MethodGet, "/v1/registry/verifications/"+hash.String(), &res); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.ok("[VERIFIED]"), res.CodeHash.String())
			fmt.Printf("  repository: %s\n  branch:     %s\n  commit:     %s\n  request:    #%d\n  code:       %s\n",
				res.Repository, res.Branch, res.Commit, res.RequestID, ui.dim(res.CodeURL))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Hash a local binary and look it up")
	return cmd
}

func feeCmd(s *settings, ui *ui) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fee",
		Short: "Show the verification fee in yoctoNEAR",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Fee domain.U128 `json:"verificationFee"`
			}
			if err := newClient(s).getJSON(http.MethodGet, "/v1/registry/fee", &out); err != nil {
				return err
			}
			fmt.Println(out.Fee.String())
			return nil
		},
	}
	set := &cobra.Command{
		Use:   "set <yoctoNEAR>",
		Short: "Change the verification fee (operator; relay account must own the contract)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.token == "" {
				return errors.New("operator token is required")
			}
			fee, err := domain.ParseU128(args[0])
			if err != nil {
				return err
			}
			body, _ := json.Marshal(map[string]string{"verificationFee": fee.String()})
			var status int
			var resp []byte
			err = withSpinner("Waiting for the transaction outcome...", func() error {
				var err error
				status, resp, err = newClient(s).request(http.MethodPut, "/v1/registry/fee", body, map[string]string{"Content-Type": "application/json"})
				return err
			})
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, strings.TrimSpace(string(resp)))
			}
			var out struct {
				TxHash string `json:"txHash"`
			}
			_ = json.Unmarshal(resp, &out)
			fmt.Printf("%s fee set to %s %s\n", ui.ok("[OK]"), fee.String(), ui.dim("tx="+out.TxHash))
			return nil
		},
	}
	cmd.AddCommand(set)
	return cmd
}

// submitCmd files a verification request from a local key, without the relay.
func submitCmd(s *settings, ui *ui) *cobra.Command {
	var (
		accountID, secretKey string
		checkout, path       string
		fee, storage         string
	)
	cmd := &cobra.Command{
		Use:   "submit <repository>",
		Short: "Submit request_verification to the contract from a local account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.nodeURL == "" || s.contractID == "" {
				return errors.New("--node-url and --contract are required")
			}
			signer, err := near.NewSigner(accountID, secretKey)
			if err != nil {
				return err
			}
			call := domain.RequestVerificationCall{Repository: args[0], Checkout: checkout, Path: path}
			if call.Fee, err = domain.ParseU128(fee); err != nil {
				return fmt.Errorf("--fee: %w", err)
			}
			if call.StorageDeposit, err = domain.ParseU128(storage); err != nil {
				return fmt.Errorf("--storage-deposit: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			sub := near.NewSubmitter(near.NewClient(s.nodeURL, 30*time.Second), signer)

			var out near.Outcome
			err = withSpinner("Waiting for the transaction outcome...", func() error {
				var err error
				out, err = sub.Submit(ctx, s.contractID, call)
				return err
			})
			if err != nil {
				return err
			}
			var req domain.VerificationRequest
			if err := json.Unmarshal(out.Value, &req); err == nil {
				printRequest(ui, req)
			}
			fmt.Printf("%s %s\n", ui.ok("[SUBMITTED]"), ui.dim("tx="+out.TxHash))
			return nil
		},
	}
	cmd.Flags().StringVar(&s.nodeURL, "node-url", s.nodeURL, "NEAR node JSON-RPC URL")
	cmd.Flags().StringVar(&s.contractID, "contract", s.contractID, "Registry contract id")
	cmd.Flags().StringVar(&accountID, "account", os.Getenv("ACCOUNT_ID"), "Signing account id")
	cmd.Flags().StringVar(&secretKey, "secret-key", os.Getenv("SECRET_KEY"), "Signing key (ed25519:...)")
	cmd.Flags().StringVar(&checkout, "checkout", "", "Commit, tag or branch to build")
	cmd.Flags().StringVar(&path, "path", "", "Contract path inside the repository")
	cmd.Flags().StringVar(&fee, "fee", "0", "Verification fee in yoctoNEAR")
	cmd.Flags().StringVar(&storage, "storage-deposit", "0", "Extra deposit for request storage in yoctoNEAR")
	return cmd
}

func jobCmd(s *settings, ui *ui) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "CI job operations",
	}
	get := &cobra.Command{
		Use:   "get <number>",
		Short: "Show the cached result of a CI job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJob(s, ui, http.MethodGet, "/v1/registry/jobs/"+args[0], "")
		},
	}
	assemble := &cobra.Command{
		Use:   "assemble <number>",
		Short: "Re-run artifact assembly for a CI job (operator)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.token == "" {
				return errors.New("operator token is required")
			}
			return printJob(s, ui, http.MethodPost, "/v1/registry/jobs/"+args[0]+"/assemble", "Assembling artifacts...")
		},
	}
	cmd.AddCommand(get, assemble)
	return cmd
}

func printJob(s *settings, ui *ui, method, path, label string) error {
	var rec domain.JobRecord
	call := func() error { return newClient(s).getJSON(method, path, &rec) }
	var err error
	if label != "" {
		err = withSpinner(label, call)
	} else {
		err = call()
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s job %d\n", ui.title("[JOB]"), rec.JobNumber)
	if rec.Result != nil {
		fmt.Printf("  code_hash:  %s\n", ui.info(rec.Result.CodeHash.String()))
	}
	if rec.RequestID != nil {
		fmt.Printf("  request:    #%d\n", *rec.RequestID)
	}
	if rec.Resolution != domain.ResolutionNone {
		fmt.Printf("  resolution: %s %s\n", rec.Resolution, ui.dim(rec.TxHash))
	}
	if rec.Error != "" {
		fmt.Printf("  error:      %s\n", ui.err(rec.Error))
	}
	return nil
}

func resolveCmd(s *settings, ui *ui) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Manual on-chain resolution (operator)",
	}
	failure := &cobra.Command{
		Use:   "failure <id>",
		Short: "Mark a pending request as failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.token == "" {
				return errors.New("operator token is required")
			}
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid request id %q", args[0])
			}
			var out struct {
				TxHash string `json:"txHash"`
			}
			err = withSpinner("Submitting verification_failure...", func() error {
				return newClient(s).getJSON(http.MethodPost, fmt.Sprintf("/v1/registry/requests/%d/failure", id), &out)
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s Request #%d resolved as failure (tx %s)\n", ui.ok("[OK]"), id, out.TxHash)
			return nil
		},
	}
	cmd.AddCommand(failure)
	return cmd
}

func watchCmd(s *settings, ui *ui) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream newly pending verification requests straight from a NEAR node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.nodeURL == "" || s.contractID == "" {
				return errors.New("--node-url and --contract are required")
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			node := near.NewClient(s.nodeURL, 30*time.Second)
			poller := watch.NewPoller(node, s.contractID, interval, 16, nil)
			fmt.Printf("%s %s on %s every %s\n", ui.title("[WATCH]"), s.contractID, s.nodeURL, interval)
			for req := range poller.Watch(ctx) {
				printRequest(ui, req)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&s.nodeURL, "node-url", s.nodeURL, "NEAR node JSON-RPC URL")
	cmd.Flags().StringVar(&s.contractID, "contract", s.contractID, "Registry contract id")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Poll interval")
	return cmd
}
