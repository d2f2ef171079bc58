package near

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/NEAR-Edu/contract-registry/pkg/domain"
)

// borshWriter covers the subset of borsh needed for function-call transactions.
type borshWriter struct {
	buf bytes.Buffer
}

func (w *borshWriter) u8(v uint8) { w.buf.WriteByte(v) }

func (w *borshWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *borshWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *borshWriter) u128(v domain.U128) {
	b := v.LittleEndian()
	w.buf.Write(b[:])
}

func (w *borshWriter) fixed(b []byte) { w.buf.Write(b) }

func (w *borshWriter) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf.Write(b)
}

func (w *borshWriter) string(s string) { w.bytes([]byte(s)) }

var errShortBuffer = errors.New("borsh: unexpected end of input")

type borshReader struct {
	b   []byte
	off int
}

func (r *borshReader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.b) {
		return nil, errShortBuffer
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *borshReader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *borshReader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *borshReader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *borshReader) u128() (domain.U128, error) {
	b, err := r.take(16)
	if err != nil {
		return domain.U128{}, err
	}
	return domain.U128{Lo: binary.LittleEndian.Uint64(b[:8]), Hi: binary.LittleEndian.Uint64(b[8:])}, nil
}

func (r *borshReader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (r *borshReader) string() (string, error) {
	b, err := r.bytes()
	return string(b), err
}

func (r *borshReader) done() error {
	if r.off != len(r.b) {
		return fmt.Errorf("borsh: %d trailing bytes", len(r.b)-r.off)
	}
	return nil
}
