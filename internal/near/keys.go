package near

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const ed25519Prefix = "ed25519:"

// KeyPair is an ed25519 access key in NEAR's "ed25519:<base58>" text format.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// ParseSecretKey accepts a 64-byte expanded key or a 32-byte seed.
func ParseSecretKey(s string) (KeyPair, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, ed25519Prefix) {
		return KeyPair{}, errors.New("secret key must start with ed25519:")
	}
	raw, err := base58.Decode(strings.TrimPrefix(s, ed25519Prefix))
	if err != nil {
		return KeyPair{}, fmt.Errorf("decode secret key: %w", err)
	}
	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv = ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return KeyPair{}, fmt.Errorf("secret key has %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	return KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, ed25519Prefix) {
		return nil, errors.New("public key must start with ed25519:")
	}
	raw, err := base58.Decode(strings.TrimPrefix(s, ed25519Prefix))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

func FormatPublicKey(pub ed25519.PublicKey) string {
	return ed25519Prefix + base58.Encode(pub)
}

func (k KeyPair) PublicKeyString() string { return FormatPublicKey(k.Public) }

func (k KeyPair) SecretKeyString() string { return ed25519Prefix + base58.Encode(k.Private) }

// Signer is an account together with one of its full access keys.
type Signer struct {
	AccountID string
	Key       KeyPair
}

func NewSigner(accountID, secretKey string) (Signer, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Signer{}, errors.New("signer account id is required")
	}
	key, err := ParseSecretKey(secretKey)
	if err != nil {
		return Signer{}, err
	}
	return Signer{AccountID: accountID, Key: key}, nil
}
