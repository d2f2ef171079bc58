package circleci

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTriggerPipeline(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v2/project/gh/org/repo/pipeline" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get(TokenHeader) != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pl-1","number":17,"state":"created","created_at":"2024-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, ProjectSlug: "gh/org/repo", APIKey: "k"})
	ref, err := c.TriggerPipeline(context.Background(), "main", map[string]any{"request_id": "3"})
	if err != nil {
		t.Fatalf("TriggerPipeline: %v", err)
	}
	if ref.ID != "pl-1" || ref.Number != 17 {
		t.Fatalf("unexpected ref %+v", ref)
	}
	if got["branch"] != "main" {
		t.Fatalf("branch not sent: %v", got)
	}
	params, _ := got["parameters"].(map[string]any)
	if params["request_id"] != "3" {
		t.Fatalf("parameters not sent: %v", got)
	}
}

func TestTriggerPipelineErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"state":"created"}`))
	}))
	defer srv.Close()
	c := NewClient(ClientConfig{BaseURL: srv.URL, ProjectSlug: "p", APIKey: "k"})
	if _, err := c.TriggerPipeline(context.Background(), "", nil); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}

	srv.Close()
	if _, err := c.TriggerPipeline(context.Background(), "", nil); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
