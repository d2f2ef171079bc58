// Package neartest runs an in-memory NEAR JSON-RPC node hosting the verification
// registry contract, for tests that exercise real wire formats.
package neartest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/NEAR-Edu/contract-registry/internal/near"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"

	"github.com/mr-tron/base58"
)

type txRecord struct {
	signed  near.SignedTransaction
	status  json.RawMessage
	unknown int
}

type Node struct {
	srv *httptest.Server

	mu            sync.Mutex
	contractID    string
	owner         string
	fee           domain.U128
	requests      []domain.VerificationRequest
	verifications map[string]domain.VerificationResult
	nonces        map[string]uint64
	txs           map[string]*txRecord
	statusQueries map[string]int
	unknownPolls  int
	clock         uint64
	blockHash     [32]byte
	broadcasts    []near.SignedTransaction
	failViews     bool
}

// NewNode starts a node whose contract is owned by owner. The server is closed
// when the test ends.
func NewNode(t testing.TB, contractID, owner string) *Node {
	t.Helper()
	n := &Node{
		contractID:    contractID,
		owner:         owner,
		fee:           domain.NewU128(1000),
		verifications: map[string]domain.VerificationResult{},
		nonces:        map[string]uint64{},
		txs:           map[string]*txRecord{},
		statusQueries: map[string]int{},
		blockHash:     sha256.Sum256([]byte("genesis")),
		clock:         1_600_000_000_000_000_000,
	}
	n.srv = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *Node) URL() string { return n.srv.URL }

func (n *Node) ContractID() string { return n.contractID }

func (n *Node) AddAccessKey(accountID string, pub ed25519.PublicKey, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nonces[keyID(accountID, pub)] = nonce
}

func (n *Node) Nonce(accountID string, pub ed25519.PublicKey) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nonces[keyID(accountID, pub)]
}

// SetUnknownPolls makes each new transaction answer UNKNOWN_TRANSACTION k times
// before reporting its outcome.
func (n *Node) SetUnknownPolls(k int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unknownPolls = k
}

// FailViews makes call_function queries return a query error.
func (n *Node) FailViews(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failViews = fail
}

// AddRequest stores a pending request directly, as if a user had paid for it.
func (n *Node) AddRequest(repository string) domain.VerificationRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.appendRequest(repository, n.fee)
}

func (n *Node) Request(id uint64) (domain.VerificationRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if id >= uint64(len(n.requests)) {
		return domain.VerificationRequest{}, false
	}
	return n.requests[id], true
}

func (n *Node) Verification(hash domain.CodeHash) (domain.VerificationResult, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.verifications[hash.String()]
	return v, ok
}

func (n *Node) Broadcasts() []near.SignedTransaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]near.SignedTransaction(nil), n.broadcasts...)
}

func (n *Node) StatusQueries(txHash string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.statusQueries[txHash]
}

func (n *Node) appendRequest(repository string, fee domain.U128) domain.VerificationRequest {
	n.clock += 1_000_000_000
	req := domain.VerificationRequest{
		ID:         uint64(len(n.requests)),
		Repository: repository,
		Fee:        fee,
		Status:     domain.VerificationPending,
		CreatedAt:  n.clock,
		UpdatedAt:  n.clock,
	}
	n.requests = append(n.requests, req)
	return req
}

func keyID(accountID string, pub ed25519.PublicKey) string {
	return accountID + "|" + near.FormatPublicKey(pub)
}

type rpcEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (n *Node) handle(w http.ResponseWriter, r *http.Request) {
	var env rpcEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	result, rpcErr := n.dispatch(env.Method, env.Params)
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": env.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func handlerError(cause, message string) *near.RPCError {
	return &near.RPCError{
		Name:    "HANDLER_ERROR",
		Cause:   &near.RPCErrorCause{Name: cause},
		Code:    -32000,
		Message: "Server error",
		Data:    json.RawMessage(fmt.Sprintf("%q", message)),
	}
}

func (n *Node) dispatch(method string, params json.RawMessage) (any, *near.RPCError) {
	switch method {
	case "query":
		return n.query(params)
	case "broadcast_tx_async":
		return n.broadcast(params)
	case "tx":
		return n.txStatus(params)
	}
	return nil, &near.RPCError{Name: "REQUEST_VALIDATION_ERROR", Cause: &near.RPCErrorCause{Name: "METHOD_NOT_FOUND"}, Code: -32601, Message: "Method not found"}
}

func (n *Node) query(params json.RawMessage) (any, *near.RPCError) {
	var q struct {
		RequestType string `json:"request_type"`
		AccountID   string `json:"account_id"`
		PublicKey   string `json:"public_key"`
		MethodName  string `json:"method_name"`
		ArgsBase64  string `json:"args_base64"`
	}
	if err := json.Unmarshal(params, &q); err != nil {
		return nil, handlerError("PARSE_ERROR", err.Error())
	}
	switch q.RequestType {
	case "view_access_key":
		pub, err := near.ParsePublicKey(q.PublicKey)
		if err != nil {
			return nil, handlerError("PARSE_ERROR", err.Error())
		}
		nonce, ok := n.nonces[keyID(q.AccountID, pub)]
		if !ok {
			return nil, handlerError("UNKNOWN_ACCESS_KEY", "access key "+q.PublicKey+" does not exist")
		}
		return map[string]any{
			"nonce":        nonce,
			"permission":   "FullAccess",
			"block_height": 100,
			"block_hash":   base58.Encode(n.blockHash[:]),
		}, nil
	case "call_function":
		if q.AccountID != n.contractID {
			return nil, handlerError("UNKNOWN_ACCOUNT", "account "+q.AccountID+" does not exist")
		}
		if n.failViews {
			return map[string]any{"error": "wasm execution failed", "logs": []string{}}, nil
		}
		args, err := base64.StdEncoding.DecodeString(q.ArgsBase64)
		if err != nil {
			return nil, handlerError("PARSE_ERROR", err.Error())
		}
		out, err := n.view(q.MethodName, args)
		if err != nil {
			return map[string]any{"error": err.Error(), "logs": []string{}}, nil
		}
		raw, _ := json.Marshal(out)
		ints := make([]int, len(raw))
		for i, b := range raw {
			ints[i] = int(b)
		}
		return map[string]any{
			"result":       ints,
			"logs":         []string{},
			"block_height": 100,
			"block_hash":   base58.Encode(n.blockHash[:]),
		}, nil
	}
	return nil, handlerError("UNKNOWN_REQUEST_TYPE", q.RequestType)
}

func (n *Node) broadcast(params json.RawMessage) (any, *near.RPCError) {
	var p []string
	if err := json.Unmarshal(params, &p); err != nil || len(p) != 1 {
		return nil, handlerError("PARSE_ERROR", "expected one base64 transaction")
	}
	raw, err := base64.StdEncoding.DecodeString(p[0])
	if err != nil {
		return nil, handlerError("PARSE_ERROR", err.Error())
	}
	signed, err := near.DecodeSignedTransaction(raw)
	if err != nil {
		return nil, handlerError("PARSE_ERROR", err.Error())
	}
	if !signed.Verify() {
		return nil, handlerError("INVALID_TRANSACTION", "invalid signature")
	}
	id := keyID(signed.SignerID, signed.PublicKey)
	current, ok := n.nonces[id]
	if !ok {
		return nil, handlerError("INVALID_TRANSACTION", "access key not found")
	}
	if signed.Nonce <= current {
		return nil, handlerError("INVALID_TRANSACTION", "invalid nonce")
	}
	if signed.BlockHash != n.blockHash {
		return nil, handlerError("INVALID_TRANSACTION", "expired block hash")
	}
	n.nonces[id] = signed.Nonce
	n.broadcasts = append(n.broadcasts, signed)

	hash := signed.HashString()
	n.txs[hash] = &txRecord{
		signed:  signed,
		status:  n.execute(signed),
		unknown: n.unknownPolls,
	}
	return hash, nil
}

func (n *Node) txStatus(params json.RawMessage) (any, *near.RPCError) {
	var p []string
	if err := json.Unmarshal(params, &p); err != nil || len(p) != 2 {
		return nil, handlerError("PARSE_ERROR", "expected [hash, sender]")
	}
	n.statusQueries[p[0]]++
	rec, ok := n.txs[p[0]]
	if !ok || rec.signed.SignerID != p[1] {
		return nil, handlerError("UNKNOWN_TRANSACTION", "transaction "+p[0]+" doesn't exist")
	}
	if rec.unknown > 0 {
		rec.unknown--
		return nil, handlerError("UNKNOWN_TRANSACTION", "transaction "+p[0]+" doesn't exist")
	}
	return map[string]any{
		"status": rec.status,
		"transaction": map[string]any{
			"hash":        p[0],
			"signer_id":   rec.signed.SignerID,
			"receiver_id": rec.signed.ReceiverID,
			"nonce":       rec.signed.Nonce,
		},
		"transaction_outcome": map[string]any{},
		"receipts_outcome":    []any{},
	}, nil
}
