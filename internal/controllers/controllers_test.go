package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NEAR-Edu/contract-registry/internal/circleci"
	"github.com/NEAR-Edu/contract-registry/internal/middleware"
	"github.com/NEAR-Edu/contract-registry/internal/near"
	"github.com/NEAR-Edu/contract-registry/internal/services"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"

	"github.com/gin-gonic/gin"
)

var secret = []byte("hook-secret")

type fakeWebhookService struct {
	rec    domain.JobRecord
	err    error
	jobs   map[uint64]*domain.JobRecord
	byHash map[string]*domain.JobRecord
	got    domain.JobCompletedPayload
}

func (f *fakeWebhookService) HandleJobCompleted(_ context.Context, p domain.JobCompletedPayload) (domain.JobRecord, error) {
	f.got = p
	return f.rec, f.err
}

func (f *fakeWebhookService) Reassemble(_ context.Context, n uint64) (domain.JobRecord, error) {
	f.got = domain.JobCompletedPayload{Job: domain.WebhookJob{Number: n}}
	return f.rec, f.err
}

func (f *fakeWebhookService) Job(_ context.Context, n uint64) (*domain.JobRecord, error) {
	if rec, ok := f.jobs[n]; ok {
		return rec, nil
	}
	return nil, services.ErrNotFound
}

func (f *fakeWebhookService) JobByHash(_ context.Context, hash domain.CodeHash) (*domain.JobRecord, error) {
	if rec, ok := f.byHash[hash.String()]; ok {
		return rec, nil
	}
	return nil, services.ErrNotFound
}

type fakeResolutions struct {
	out   near.Outcome
	err   error
	calls []domain.ContractCall
}

func (f *fakeResolutions) Enabled() bool { return true }

func (f *fakeResolutions) Resolve(_ context.Context, call domain.ContractCall) (near.Outcome, error) {
	f.calls = append(f.calls, call)
	return f.out, f.err
}

func (f *fakeResolutions) Enqueue(context.Context, services.Resolution) error { return nil }
func (f *fakeResolutions) Start(context.Context)                              {}

type fakeRegistry struct {
	pending []domain.VerificationRequest
	reqs    map[uint64]domain.VerificationRequest
	fee     domain.U128
	err     error
}

func (f *fakeRegistry) PendingRequests(context.Context) ([]domain.VerificationRequest, error) {
	return f.pending, f.err
}

func (f *fakeRegistry) Request(_ context.Context, id uint64) (*domain.VerificationRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.reqs[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &r, nil
}

func (f *fakeRegistry) Verification(context.Context, domain.CodeHash) (*domain.VerificationResult, error) {
	return nil, services.ErrNotFound
}

func (f *fakeRegistry) Fee(context.Context) (domain.U128, error) { return f.fee, f.err }

func webhookRouter(svc services.WebhookService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	r.POST("/webhook", middleware.WebhookSignature(secret, 32<<10), NewWebhookController(svc).Handle)
	return r
}

func postWebhook(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(circleci.SignatureHeader, circleci.SignatureHeaderValue(secret, []byte(body)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestWebhookControllerReturnsCodeHash(t *testing.T) {
	hash := domain.HashBytes([]byte("wasm"))
	svc := &fakeWebhookService{rec: domain.JobRecord{JobNumber: 7, Result: &domain.VerificationResult{CodeHash: hash}}}
	rec := postWebhook(webhookRouter(svc), `{"job":{"name":"build","status":"success","number":7}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != hash.String() {
		t.Fatalf("expected hash %s, got %q", hash, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("expected text/plain, got %q", rec.Header().Get("Content-Type"))
	}
	if svc.got.Job.Number != 7 || svc.got.Job.Name != "build" {
		t.Fatalf("payload not forwarded: %+v", svc.got)
	}
}

func TestWebhookControllerErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad json", `{"job":`, nil, http.StatusBadRequest},
		{"missing number", `{"job":{"status":"success"}}`, nil, http.StatusBadRequest},
		{"job failed", `{"job":{"status":"failed","number":1}}`, fmt.Errorf("%w: job 1", services.ErrJobNotSuccessful), http.StatusAccepted},
		{"missing artifact", `{"job":{"status":"success","number":1}}`, &circleci.ProviderError{Kind: circleci.ErrMissingArtifact, Op: "assemble", Path: "out/out.wasm"}, http.StatusUnprocessableEntity},
		{"schema mismatch", `{"job":{"status":"success","number":1}}`, &circleci.ProviderError{Kind: circleci.ErrSchemaMismatch, Op: "artifacts"}, http.StatusUnprocessableEntity},
		{"transport", `{"job":{"status":"success","number":1}}`, &circleci.ProviderError{Kind: circleci.ErrTransport, Op: "fetch", Err: errors.New("dial tcp")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postWebhook(webhookRouter(&fakeWebhookService{err: tt.err}), tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if rec.Body.Len() == 0 {
				t.Fatal("expected a plain-text reason")
			}
		})
	}
}

func TestRegistryViewControllers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := &fakeRegistry{
		pending: []domain.VerificationRequest{{ID: 0, Repository: "near/a", Status: domain.VerificationPending}},
		reqs:    map[uint64]domain.VerificationRequest{0: {ID: 0, Repository: "near/a", Status: domain.VerificationPending}},
		fee:     domain.NewU128(1000),
	}
	r := gin.New()
	r.GET("/pending", NewPendingRequestsController(reg).Handle)
	r.GET("/requests/:id", NewGetRequestController(reg).Handle)
	r.GET("/verifications/:codeHash", NewGetVerificationController(reg).Handle)
	r.GET("/fee", NewGetFeeController(reg).Handle)

	tests := []struct {
		path string
		want int
		body string
	}{
		{"/pending", http.StatusOK, `"count":1`},
		{"/requests/0", http.StatusOK, `"repository":"near/a"`},
		{"/requests/9", http.StatusNotFound, "not-found"},
		{"/requests/abc", http.StatusBadRequest, "invalid request id"},
		{"/verifications/" + domain.HashBytes([]byte("x")).String(), http.StatusNotFound, "not-found"},
		{"/verifications/0OIl", http.StatusBadRequest, "error"},
		{"/verifications/2yGEbwRGRKr9Udf39", http.StatusBadRequest, "must be 32 bytes"},
		{"/fee", http.StatusOK, `"verificationFee":"1000"`},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want || !strings.Contains(rec.Body.String(), tt.body) {
			t.Errorf("%s: got %d %s, want %d containing %q", tt.path, rec.Code, rec.Body.String(), tt.want, tt.body)
		}
	}
}

func TestRegistryViewNodeFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/fee", NewGetFeeController(&fakeRegistry{err: &near.RPCError{Name: "HANDLER_ERROR", Message: "boom"}}).Handle)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fee", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestGetJobController(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeWebhookService{jobs: map[uint64]*domain.JobRecord{3: {JobNumber: 3, Resolution: domain.ResolutionSucceeded}}}
	r := gin.New()
	r.GET("/jobs/:number", NewGetJobController(svc).Handle)

	for path, want := range map[string]int{"/jobs/3": http.StatusOK, "/jobs/4": http.StatusNotFound, "/jobs/x": http.StatusBadRequest} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("%s: expected %d, got %d", path, want, rec.Code)
		}
	}
}

func TestGetJobByHashController(t *testing.T) {
	gin.SetMode(gin.TestMode)
	known := domain.HashBytes([]byte("wasm"))
	svc := &fakeWebhookService{byHash: map[string]*domain.JobRecord{
		known.String(): {JobNumber: 12, Result: &domain.VerificationResult{CodeHash: known}},
	}}
	r := gin.New()
	r.GET("/results/:codeHash", NewGetJobByHashController(svc).Handle)

	tests := []struct {
		path string
		want int
		body string
	}{
		{"/results/" + known.String(), http.StatusOK, `"job_number":12`},
		{"/results/" + domain.HashBytes([]byte("other")).String(), http.StatusNotFound, "not-found"},
		{"/results/0OIl", http.StatusBadRequest, "error"},
		{"/results/2yGEbwRGRKr9Udf39", http.StatusBadRequest, "32 bytes"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want || !strings.Contains(rec.Body.String(), tt.body) {
			t.Errorf("%s: got %d %s, want %d containing %q", tt.path, rec.Code, rec.Body.String(), tt.want, tt.body)
		}
	}
}

func TestResolveFailureController(t *testing.T) {
	gin.SetMode(gin.TestMode)
	failure := json.RawMessage(`{"ActionError":{"index":0,"kind":{"FunctionCallError":{"ExecutionError":"Smart contract panicked: Request already resolved"}}}}`)

	tests := []struct {
		name string
		res  *fakeResolutions
		want int
		body string
	}{
		{"resolved", &fakeResolutions{out: near.Outcome{TxHash: "tx1"}}, http.StatusOK, `"txHash":"tx1"`},
		{"already resolved", &fakeResolutions{err: &near.ExecutionError{TxHash: "tx2", Failure: failure}}, http.StatusConflict, "Request already resolved"},
		{"disabled", &fakeResolutions{err: services.ErrResolutionDisabled}, http.StatusServiceUnavailable, "disabled"},
		{"key lookup", &fakeResolutions{err: fmt.Errorf("%w: unknown key", near.ErrKeyLookup)}, http.StatusInternalServerError, "access key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/requests/:id/failure", NewResolveFailureController(tt.res).Handle)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/requests/5/failure", nil))
			if rec.Code != tt.want || !strings.Contains(rec.Body.String(), tt.body) {
				t.Fatalf("got %d %s, want %d containing %q", rec.Code, rec.Body.String(), tt.want, tt.body)
			}
			call, ok := tt.res.calls[0].(domain.VerificationFailureCall)
			if !ok || call.ID != 5 {
				t.Fatalf("unexpected call %#v", tt.res.calls[0])
			}
		})
	}
}

func TestSetFeeController(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name  string
		res   *fakeResolutions
		body  string
		want  int
		calls int
	}{
		{"updated", &fakeResolutions{out: near.Outcome{TxHash: "tx9"}}, `{"verificationFee":"2500"}`, http.StatusOK, 1},
		{"numeric fee", &fakeResolutions{out: near.Outcome{TxHash: "tx9"}}, `{"verificationFee":2500}`, http.StatusOK, 1},
		{"bad body", &fakeResolutions{}, `{"verificationFee":`, http.StatusBadRequest, 0},
		{"zero fee", &fakeResolutions{err: fmt.Errorf("%w: verification fee must be positive", domain.ErrInvalidCall)}, `{"verificationFee":"0"}`, http.StatusBadRequest, 1},
		{"not owner", &fakeResolutions{err: &near.ExecutionError{TxHash: "tx3", Failure: json.RawMessage(`{"ActionError":{"index":0,"kind":{"FunctionCallError":{"ExecutionError":"Smart contract panicked: Owner only"}}}}`)}}, `{"verificationFee":"1"}`, http.StatusConflict, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.PUT("/fee", NewSetFeeController(tt.res).Handle)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/fee", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Fatalf("got %d %s, want %d", rec.Code, rec.Body.String(), tt.want)
			}
			if len(tt.res.calls) != tt.calls {
				t.Fatalf("expected %d calls, got %d", tt.calls, len(tt.res.calls))
			}
			if tt.calls > 0 {
				if _, ok := tt.res.calls[0].(domain.SetVerificationFeeCall); !ok {
					t.Fatalf("unexpected call %#v", tt.res.calls[0])
				}
			}
			if tt.want == http.StatusOK && !strings.Contains(rec.Body.String(), `"verificationFee":"2500"`) {
				t.Fatalf("unexpected body %s", rec.Body.String())
			}
		})
	}
}

func TestReassembleJobController(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash := domain.HashBytes([]byte("again"))
	svc := &fakeWebhookService{rec: domain.JobRecord{JobNumber: 11, Result: &domain.VerificationResult{CodeHash: hash}}}
	r := gin.New()
	r.POST("/jobs/:number/assemble", NewReassembleJobController(svc).Handle)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/11/assemble", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), hash.String()) {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	if svc.got.Job.Number != 11 {
		t.Fatalf("reassemble not called for job 11: %+v", svc.got)
	}
}

func TestHealthController(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tt := range []struct {
		ping func(context.Context) error
		want int
	}{
		{nil, http.StatusOK},
		{func(context.Context) error { return nil }, http.StatusOK},
		{func(context.Context) error { return errors.New("redis down") }, http.StatusServiceUnavailable},
	} {
		r := gin.New()
		r.GET("/healthz", NewHealthController(tt.ping).Handle)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != tt.want {
			t.Errorf("expected %d, got %d", tt.want, rec.Code)
		}
	}
}
