package near

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/NEAR-Edu/contract-registry/internal/backoff"
	"github.com/NEAR-Edu/contract-registry/internal/metrics"
	"github.com/NEAR-Edu/contract-registry/internal/tracing"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ChainRPC is the node surface the submitter needs.
type ChainRPC interface {
	ViewAccessKey(ctx context.Context, accountID string, pub ed25519.PublicKey) (AccessKeyView, error)
	BroadcastTxAsync(ctx context.Context, signed []byte) (string, error)
	TxStatus(ctx context.Context, txHash, senderID string) (TxStatus, error)
}

// StatusPolicy drives the wait between status queries while a transaction is not
// yet visible. MaxAttempts <= 0 polls until an outcome or cancellation.
type StatusPolicy struct {
	Backoff     backoff.Policy
	MaxAttempts int
}

func DefaultStatusPolicy() StatusPolicy {
	return StatusPolicy{Backoff: backoff.Policy{Name: backoff.Fixed, Base: 2 * time.Second}}
}

// Outcome is the terminal success of a submitted transaction.
type Outcome struct {
	TxHash string
	Value  []byte
}

type Submitter struct {
	rpc    ChainRPC
	signer Signer
	gas    uint64
	policy StatusPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	rngMu sync.Mutex
	rng   *rand.Rand
}

type SubmitterOption func(*Submitter)

func WithGas(gas uint64) SubmitterOption {
	return func(s *Submitter) {
		if gas > 0 {
			s.gas = gas
		}
	}
}

func WithStatusPolicy(p StatusPolicy) SubmitterOption {
	return func(s *Submitter) { s.policy = p }
}

func WithLogger(logger *slog.Logger) SubmitterOption {
	return func(s *Submitter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSleep replaces the wait between status queries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) SubmitterOption {
	return func(s *Submitter) { s.sleep = fn }
}

// WithRand sets the source of backoff jitter. By default jitter comes from the
// shared, randomly seeded source so relays polling the same node spread out.
func WithRand(rng *rand.Rand) SubmitterOption {
	return func(s *Submitter) { s.rng = rng }
}

func NewSubmitter(rpc ChainRPC, signer Signer, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		rpc:    rpc,
		signer: signer,
		gas:    DefaultGas,
		policy: DefaultStatusPolicy(),
		logger: slog.Default(),
		sleep:  sleepOrDone,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Submitter) AccountID() string { return s.signer.AccountID }

// Submit signs and broadcasts call against receiver, then waits for its final outcome.
// Cancelling ctx after the broadcast only stops observing the transaction.
func (s *Submitter) Submit(ctx context.Context, receiver string, call domain.ContractCall) (Outcome, error) {
	method := call.Method()
	ctx, span := tracing.Start(ctx, "near", "Submit",
		attribute.String("near.receiver", receiver), attribute.String("near.method", method))

	out, err := s.submit(ctx, receiver, call)
	outcome := "success"
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("near.tx_hash", out.TxHash))
	case errors.Is(err, ErrExecution):
		outcome = "execution_error"
	case errors.Is(err, ErrKeyLookup):
		outcome = "key_lookup_error"
	case errors.Is(err, domain.ErrInvalidCall):
		outcome = "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	default:
		outcome = "rpc_error"
	}
	tracing.End(span, err)
	metrics.TransactionsTotal.WithLabelValues(method, outcome).Inc()
	return out, err
}

func (s *Submitter) submit(ctx context.Context, receiver string, call domain.ContractCall) (Outcome, error) {
	if err := call.Validate(); err != nil {
		return Outcome{}, err
	}
	args, err := json.Marshal(call)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: marshal args: %v", domain.ErrInvalidCall, err)
	}

	key, err := s.rpc.ViewAccessKey(ctx, s.signer.AccountID, s.signer.Key.Public)
	if err != nil {
		return Outcome{}, err
	}

	tx := Transaction{
		SignerID:   s.signer.AccountID,
		PublicKey:  s.signer.Key.Public,
		Nonce:      key.Nonce + 1,
		ReceiverID: receiver,
		BlockHash:  key.BlockHash,
		Actions: []FunctionCall{{
			MethodName: call.Method(),
			Args:       args,
			Gas:        s.gas,
			Deposit:    call.Deposit(),
		}},
	}
	signed := tx.Sign(s.signer.Key.Private)

	hash, err := s.rpc.BroadcastTxAsync(ctx, signed.Encode())
	if err != nil {
		return Outcome{}, fmt.Errorf("broadcast %s: %w", call.Method(), err)
	}
	s.logger.Info("transaction broadcast", "method", call.Method(), "receiver", receiver, "tx", hash, "nonce", tx.Nonce)

	return s.AwaitOutcome(ctx, hash)
}

type pollState int

const (
	stateQuery pollState = iota
	stateWait
)

// AwaitOutcome polls the status of txHash. Unknown and not-yet-executed transactions
// are waited on per the StatusPolicy; any other RPC error is returned at once.
func (s *Submitter) AwaitOutcome(ctx context.Context, txHash string) (Outcome, error) {
	state := stateQuery
	attempts := 0
	for {
		switch state {
		case stateWait:
			if s.policy.MaxAttempts > 0 && attempts >= s.policy.MaxAttempts {
				return Outcome{}, fmt.Errorf("%w: %s after %d queries", ErrStatusPollExhausted, txHash, attempts)
			}
			if err := s.sleep(ctx, s.statusDelay(attempts)); err != nil {
				return Outcome{}, err
			}
			state = stateQuery

		case stateQuery:
			attempts++
			st, err := s.rpc.TxStatus(ctx, txHash, s.signer.AccountID)
			switch {
			case errors.Is(err, ErrUnknownTransaction):
				metrics.TransactionStatusPollsTotal.WithLabelValues("unknown").Inc()
				state = stateWait
			case err != nil:
				metrics.TransactionStatusPollsTotal.WithLabelValues("error").Inc()
				return Outcome{}, err
			case st.Pending:
				metrics.TransactionStatusPollsTotal.WithLabelValues("pending").Inc()
				state = stateWait
			case st.Failure != nil:
				metrics.TransactionStatusPollsTotal.WithLabelValues("failure").Inc()
				return Outcome{}, &ExecutionError{TxHash: txHash, Failure: st.Failure}
			default:
				metrics.TransactionStatusPollsTotal.WithLabelValues("success").Inc()
				return Outcome{TxHash: txHash, Value: st.SuccessValue}, nil
			}
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Submitter) statusDelay(attempts int) time.Duration {
	if s.rng == nil {
		return s.policy.Backoff.Delay(attempts, nil)
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.policy.Backoff.Delay(attempts, s.rng)
}
