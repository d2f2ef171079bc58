package near

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/NEAR-Edu/contract-registry/pkg/domain"
	"github.com/mr-tron/base58"
)

const (
	keyTypeED25519       = 0
	actionFunctionCall   = 2
	DefaultGas    uint64 = 100_000_000_000_000 // 100 TGas
)

type FunctionCall struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    domain.U128
}

// Transaction is an unsigned transaction carrying function-call actions.
type Transaction struct {
	SignerID   string
	PublicKey  ed25519.PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []FunctionCall
}

func (t Transaction) Encode() []byte {
	var w borshWriter
	w.string(t.SignerID)
	w.u8(keyTypeED25519)
	w.fixed(t.PublicKey)
	w.u64(t.Nonce)
	w.string(t.ReceiverID)
	w.fixed(t.BlockHash[:])
	w.u32(uint32(len(t.Actions)))
	for _, a := range t.Actions {
		w.u8(actionFunctionCall)
		w.string(a.MethodName)
		w.bytes(a.Args)
		w.u64(a.Gas)
		w.u128(a.Deposit)
	}
	return w.buf.Bytes()
}

// Hash is the SHA-256 of the borsh encoding; it is both the signed message and the tx id.
func (t Transaction) Hash() [32]byte {
	return sha256.Sum256(t.Encode())
}

func (t Transaction) Sign(key ed25519.PrivateKey) SignedTransaction {
	h := t.Hash()
	return SignedTransaction{Transaction: t, Signature: ed25519.Sign(key, h[:])}
}

type SignedTransaction struct {
	Transaction
	Signature []byte
}

func (s SignedTransaction) Encode() []byte {
	var w borshWriter
	w.fixed(s.Transaction.Encode())
	w.u8(keyTypeED25519)
	w.fixed(s.Signature)
	return w.buf.Bytes()
}

// HashString is the base58 transaction id nodes report.
func (s SignedTransaction) HashString() string {
	h := s.Hash()
	return base58.Encode(h[:])
}

// Verify checks the signature against the embedded public key.
func (s SignedTransaction) Verify() bool {
	h := s.Hash()
	return len(s.PublicKey) == ed25519.PublicKeySize && ed25519.Verify(s.PublicKey, h[:], s.Signature)
}

// DecodeSignedTransaction parses the borsh form produced by SignedTransaction.Encode.
func DecodeSignedTransaction(b []byte) (SignedTransaction, error) {
	r := &borshReader{b: b}
	var tx Transaction
	var err error
	if tx.SignerID, err = r.string(); err != nil {
		return SignedTransaction{}, err
	}
	if err := expectKeyType(r); err != nil {
		return SignedTransaction{}, err
	}
	pub, err := r.take(ed25519.PublicKeySize)
	if err != nil {
		return SignedTransaction{}, err
	}
	tx.PublicKey = append(ed25519.PublicKey(nil), pub...)
	if tx.Nonce, err = r.u64(); err != nil {
		return SignedTransaction{}, err
	}
	if tx.ReceiverID, err = r.string(); err != nil {
		return SignedTransaction{}, err
	}
	bh, err := r.take(32)
	if err != nil {
		return SignedTransaction{}, err
	}
	copy(tx.BlockHash[:], bh)
	n, err := r.u32()
	if err != nil {
		return SignedTransaction{}, err
	}
	for i := uint32(0); i < n; i++ {
		kind, err := r.u8()
		if err != nil {
			return SignedTransaction{}, err
		}
		if kind != actionFunctionCall {
			return SignedTransaction{}, fmt.Errorf("borsh: unsupported action %d", kind)
		}
		var a FunctionCall
		if a.MethodName, err = r.string(); err != nil {
			return SignedTransaction{}, err
		}
		if a.Args, err = r.bytes(); err != nil {
			return SignedTransaction{}, err
		}
		if a.Gas, err = r.u64(); err != nil {
			return SignedTransaction{}, err
		}
		if a.Deposit, err = r.u128(); err != nil {
			return SignedTransaction{}, err
		}
		tx.Actions = append(tx.Actions, a)
	}
	if err := expectKeyType(r); err != nil {
		return SignedTransaction{}, err
	}
	sig, err := r.take(ed25519.SignatureSize)
	if err != nil {
		return SignedTransaction{}, err
	}
	if err := r.done(); err != nil {
		return SignedTransaction{}, err
	}
	return SignedTransaction{Transaction: tx, Signature: append([]byte(nil), sig...)}, nil
}

func expectKeyType(r *borshReader) error {
	kt, err := r.u8()
	if err != nil {
		return err
	}
	if kt != keyTypeED25519 {
		return fmt.Errorf("borsh: unsupported key type %d", kt)
	}
	return nil
}
