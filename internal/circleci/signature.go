package circleci

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	SignatureHeader  = "circleci-signature"
	SignatureVersion = "v1"
)

var (
	// ErrIncompatibleSignatureVersion is returned when the header carries no v1 pair.
	ErrIncompatibleSignatureVersion = errors.New("incompatible signature version")
	ErrInvalidSignature             = errors.New("invalid signature")
)

// ExtractCompatibleSignature returns the signature of the first pair tagged with
// SignatureVersion in a comma-separated list of version=signature pairs.
func ExtractCompatibleSignature(header string) (string, bool) {
	for _, pair := range strings.Split(header, ",") {
		version, sig, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		if version == SignatureVersion {
			return sig, true
		}
	}
	return "", false
}

// Verify checks header against an HMAC-SHA256 of the raw body. A header without a
// compatible version fails with ErrIncompatibleSignatureVersion rather than false.
func Verify(secret []byte, header string, body []byte) (bool, error) {
	sig, ok := ExtractCompatibleSignature(header)
	if !ok {
		return false, ErrIncompatibleSignatureVersion
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false, nil
	}
	return hmac.Equal(got, mac(secret, body)), nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret []byte, body []byte) string {
	return hex.EncodeToString(mac(secret, body))
}

// SignatureHeaderValue renders a header value a webhook sender would attach.
func SignatureHeaderValue(secret []byte, body []byte) string {
	return SignatureVersion + "=" + Sign(secret, body)
}

func mac(secret []byte, body []byte) []byte {
	h := hmac.New(sha256.New, secret)
	_, _ = h.Write(body)
	return h.Sum(nil)
}
