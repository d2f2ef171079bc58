package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseVerificationRequest(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"valid", `{"id":3,"repository":"https://github.com/a/b.git","fee":"100","status":"PENDING","created_at":1,"updated_at":1}`, ""},
		{"missing id", `{"repository":"r","fee":"1","status":"PENDING"}`, "id"},
		{"missing repository", `{"id":1,"fee":"1","status":"PENDING"}`, "repository"},
		{"bad status", `{"id":1,"repository":"r","fee":"1","status":"DONE"}`, "unknown status"},
		{"not an object", `[1,2]`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseVerificationRequest(json.RawMessage(tt.raw))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if req.ID != 3 || req.Status != VerificationPending || req.Fee.String() != "100" {
					t.Fatalf("unexpected request %+v", req)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestVerificationResultJSONFieldNames(t *testing.T) {
	res := VerificationResult{
		CodeHash:   HashBytes([]byte("hello, world")),
		CodeURL:    "https://x/out.wasm",
		Repository: "repo",
		Remote:     "origin",
		Branch:     "main",
		Commit:     "abc",
		RequestID:  9,
	}
	b, err := json.Marshal(VerificationSuccessCall{Result: res})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"result":{"code_hash":"fDkpN2xbAwr2sKNveZKDJkamzCiKXNqgVrMbfBR6KHk","code_url":"https://x/out.wasm","repository":"repo","remote":"origin","branch":"main","commit":"abc","request_id":9}}`
	if string(b) != want {
		t.Fatalf("got %s\nwant %s", b, want)
	}
}

func TestParseJobCompletedPayload(t *testing.T) {
	p, err := ParseJobCompletedPayload([]byte(`{"job":{"name":"build","status":"success","number":42}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.JobNumber() != "42" || !p.Succeeded() || p.Pipeline != nil {
		t.Fatalf("unexpected payload %+v", p)
	}

	p, err = ParseJobCompletedPayload([]byte(`{"job":{"number":7,"status":"failed"},"pipeline":{"id":"pl-1","number":3}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Succeeded() || p.Pipeline == nil || p.Pipeline.ID != "pl-1" {
		t.Fatalf("unexpected payload %+v", p)
	}

	for _, bad := range []string{`{}`, `{"job":{}}`, `not json`} {
		if _, err := ParseJobCompletedPayload([]byte(bad)); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}
