package domain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// U64 travels as a decimal JSON string, the way contract methods take ids.
type U64 uint64

func (u U64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(u), 10))
}

func (u *U64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %q: %w", s, err)
	}
	*u = U64(n)
	return nil
}

// U128 is an unsigned 128-bit balance in yoctoNEAR. JSON form is a decimal string;
// numbers are accepted on input.
type U128 struct {
	Hi uint64
	Lo uint64
}

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

func NewU128(v uint64) U128 { return U128{Lo: v} }

func ParseU128(s string) (U128, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return U128{}, fmt.Errorf("invalid u128 %q", s)
	}
	return U128FromBig(n)
}

func U128FromBig(n *big.Int) (U128, error) {
	if n.Sign() < 0 || n.Cmp(maxU128) > 0 {
		return U128{}, fmt.Errorf("u128 out of range: %s", n.String())
	}
	lo := new(big.Int).And(n, new(big.Int).SetUint64(^uint64(0)))
	hi := new(big.Int).Rsh(n, 64)
	return U128{Hi: hi.Uint64(), Lo: lo.Uint64()}, nil
}

func (u U128) Big() *big.Int {
	n := new(big.Int).SetUint64(u.Hi)
	n.Lsh(n, 64)
	return n.Or(n, new(big.Int).SetUint64(u.Lo))
}

func (u U128) String() string { return u.Big().String() }

func (u U128) IsZero() bool { return u.Hi == 0 && u.Lo == 0 }

func (u U128) Cmp(other U128) int {
	switch {
	case u.Hi < other.Hi:
		return -1
	case u.Hi > other.Hi:
		return 1
	case u.Lo < other.Lo:
		return -1
	case u.Lo > other.Lo:
		return 1
	}
	return 0
}

// Add saturates at the maximum value.
func (u U128) Add(other U128) U128 {
	sum, err := U128FromBig(new(big.Int).Add(u.Big(), other.Big()))
	if err != nil {
		return U128{Hi: ^uint64(0), Lo: ^uint64(0)}
	}
	return sum
}

// LittleEndian returns the 16-byte little-endian encoding.
func (u U128) LittleEndian() [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint64(out[:8], u.Lo)
	binary.LittleEndian.PutUint64(out[8:], u.Hi)
	return out
}

func (u U128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *U128) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	parsed, err := ParseU128(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
