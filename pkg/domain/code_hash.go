package domain

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

var ErrInvalidCodeHash = errors.New("invalid code hash")

// CodeHash is the SHA-256 digest of a compiled contract binary. Its text form is base58.
type CodeHash []byte

func HashBytes(code []byte) CodeHash {
	sum := sha256.Sum256(code)
	return CodeHash(sum[:])
}

// ParseCodeHash decodes a base58 SHA-256 digest. Anything that does not decode
// to exactly 32 bytes is rejected with ErrInvalidCodeHash.
func ParseCodeHash(s string) (CodeHash, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidCodeHash)
	}
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base58 decode: %v", ErrInvalidCodeHash, err)
	}
	if len(b) != sha256.Size {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidCodeHash, sha256.Size, len(b))
	}
	return CodeHash(b), nil
}

func (h CodeHash) String() string { return base58.Encode(h) }

func (h CodeHash) Equal(other CodeHash) bool {
	if len(h) != len(other) {
		return false
	}
	for i := range h {
		if h[i] != other[i] {
			return false
		}
	}
	return true
}

func (h CodeHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *CodeHash) UnmarshalText(text []byte) error {
	parsed, err := ParseCodeHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
