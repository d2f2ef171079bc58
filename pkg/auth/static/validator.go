// Package static authenticates operators by pre-shared bearer tokens.
package static

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/NEAR-Edu/contract-registry/pkg/auth"
)

var ErrInvalidToken = errors.New("invalid token")

// Operator is one accepted token and the claims it grants.
type Operator struct {
	Token   string         `json:"token"`
	Subject string         `json:"subject,omitempty"`
	Email   string         `json:"email,omitempty"`
	Scopes  []string       `json:"scopes,omitempty"`
	Raw     map[string]any `json:"raw,omitempty"`
}

// config accepts a bare JSON string token, a single Operator object, or
// {"operators": [...]} for several operators.
type config struct {
	Operator
	Operators []Operator `json:"operators,omitempty"`
}

type validator struct {
	operators []Operator
}

func NewValidatorFromJSON(raw json.RawMessage) (auth.Validator, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, errors.New("static auth: missing config")
	}

	var cfg config
	target := any(&cfg)
	if raw[0] == '"' {
		target = &cfg.Token
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("static auth: invalid config: %w", err)
	}

	ops := cfg.Operators
	if strings.TrimSpace(cfg.Token) != "" {
		ops = append([]Operator{cfg.Operator}, ops...)
	}
	if len(ops) == 0 {
		return nil, errors.New("static auth: token is required")
	}
	for i := range ops {
		op := &ops[i]
		op.Token = strings.TrimSpace(op.Token)
		if op.Token == "" {
			return nil, fmt.Errorf("static auth: operator %d has no token", i)
		}
		op.Subject = strings.TrimSpace(op.Subject)
		if op.Subject == "" {
			op.Subject = "static"
		}
		if op.Raw == nil {
			op.Raw = map[string]any{}
		}
	}
	return &validator{operators: ops}, nil
}

// Validate compares token against every operator so the time taken does not
// reveal which one matched.
func (v *validator) Validate(token string) (*auth.Claims, error) {
	presented := []byte(strings.TrimSpace(token))
	var match *Operator
	for i := range v.operators {
		if subtle.ConstantTimeCompare(presented, []byte(v.operators[i].Token)) == 1 && match == nil {
			match = &v.operators[i]
		}
	}
	if match == nil {
		return nil, ErrInvalidToken
	}
	return &auth.Claims{
		Subject: match.Subject,
		Email:   match.Email,
		Scopes:  append([]string(nil), match.Scopes...),
		Raw:     match.Raw,
	}, nil
}

func init() {
	auth.RegisterProvider("static", NewValidatorFromJSON)
}
