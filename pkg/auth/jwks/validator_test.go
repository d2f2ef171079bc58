package jwks

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NEAR-Edu/contract-registry/pkg/auth"

	"github.com/golang-jwt/jwt/v5"
)

type jwksFixture struct {
	key     *rsa.PrivateKey
	url     string
	fetches atomic.Int32
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	f := &jwksFixture{key: key}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{{
				"kty": "RSA",
				"kid": "test-key-1",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString([]byte{0x01, 0x00, 0x01}),
			}},
		})
	}))
	t.Cleanup(srv.Close)
	f.url = srv.URL
	return f
}

func (f *jwksFixture) validator(t *testing.T) auth.Validator {
	t.Helper()
	v, err := NewValidator(auth.Config{
		JwksURL:     f.url,
		Issuer:      "https://id.near.local",
		Audience:    "contract-registry",
		ClockSkew:   time.Second,
		HTTPTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	return v
}

func (f *jwksFixture) sign(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func baseClaims() jwt.MapClaims {
	now := time.Now().Unix()
	return jwt.MapClaims{
		"iss":   "https://id.near.local",
		"aud":   "contract-registry",
		"sub":   "operator-1",
		"email": "ops@near.local",
		"exp":   now + 3600,
		"iat":   now,
		"scope": "registry:admin registry:read",
	}
}

func TestJWKSValidator(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.validator(t)

	claims, err := v.Validate(f.sign(t, "test-key-1", baseClaims()))
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.Subject != "operator-1" || claims.Email != "ops@near.local" {
		t.Errorf("unexpected identity %q %q", claims.Subject, claims.Email)
	}
	if claims.Issuer != "https://id.near.local" {
		t.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "contract-registry" {
		t.Errorf("unexpected audience %v", claims.Audience)
	}
	if !claims.HasScope("registry:admin") || !claims.HasScope("registry:read") {
		t.Errorf("unexpected scopes %v", claims.Scopes)
	}
	if claims.ExpiresAt.IsZero() || claims.IssuedAt.IsZero() {
		t.Errorf("timestamps not populated")
	}

	if _, err := v.Validate(f.sign(t, "test-key-1", baseClaims())); err != nil {
		t.Fatalf("second validation: %v", err)
	}
	if got := f.fetches.Load(); got != 1 {
		t.Errorf("expected cached key set, fetched %d times", got)
	}
}

func TestJWKSValidatorScpArray(t *testing.T) {
	f := newJWKSFixture(t)
	c := baseClaims()
	delete(c, "scope")
	c["scp"] = []string{"registry:admin"}

	claims, err := f.validator(t).Validate(f.sign(t, "test-key-1", c))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !claims.HasScope("registry:admin") {
		t.Errorf("scp array not parsed: %v", claims.Scopes)
	}
}

func TestJWKSValidatorRejects(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.validator(t)
	now := time.Now().Unix()

	tests := []struct {
		name   string
		kid    string
		mutate func(jwt.MapClaims)
	}{
		{"wrong issuer", "test-key-1", func(c jwt.MapClaims) { c["iss"] = "https://evil" }},
		{"wrong audience", "test-key-1", func(c jwt.MapClaims) { c["aud"] = "other" }},
		{"expired", "test-key-1", func(c jwt.MapClaims) { c["exp"] = now - 3600 }},
		{"unknown kid", "test-key-2", func(jwt.MapClaims) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := baseClaims()
			tt.mutate(c)
			if _, err := v.Validate(f.sign(t, tt.kid, c)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewValidatorRequiresFields(t *testing.T) {
	tests := []auth.Config{
		{Issuer: "i", Audience: "a"},
		{JwksURL: "u", Audience: "a"},
		{JwksURL: "u", Issuer: "i"},
	}
	for _, cfg := range tests {
		if _, err := NewValidator(cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}

func TestJWKSRegistered(t *testing.T) {
	f := newJWKSFixture(t)
	raw, _ := json.Marshal(map[string]any{
		"jwksUrl":  f.url,
		"issuer":   "https://id.near.local",
		"audience": "contract-registry",
	})
	v, err := auth.NewValidator(auth.ProviderConfig{Type: "jwks", Config: raw})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	if _, err := v.Validate(f.sign(t, "test-key-1", baseClaims())); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
