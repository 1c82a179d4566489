package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/auth"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/convert"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/llm"
	"github.com/YorickdeJong/energy-contracts/internal/pipeline"
	"github.com/YorickdeJong/energy-contracts/internal/repository/memory"
	"github.com/YorickdeJong/energy-contracts/internal/repository/repotest"
	"github.com/YorickdeJong/energy-contracts/internal/services/onboarding"
	"github.com/YorickdeJong/energy-contracts/internal/services/tenancy"
	"github.com/YorickdeJong/energy-contracts/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var authCfg = auth.Config{Secret: "test-secret-key", TTL: time.Hour}

type staticExtractor string

func (s staticExtractor) Extract(context.Context, string) (string, error) { return string(s), nil }

type pinger struct{ err error }

func (p *pinger) Ping(context.Context) error { return p.err }

type apiFixture struct {
	router    *gin.Engine
	token     string
	household *entity.Household
	store     *memory.Store
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	store := memory.NewStore(nil)
	docs, err := storage.NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	validator, err := llm.NewValidator(true, nil)
	if err != nil {
		t.Fatal(err)
	}
	answer := staticExtractor(`{"start_date":"2024-01-15","monthly_rent":"€ 1.250,00","renters":[{"first_name":"John","last_name":"Doe","email":"john@example.com","is_primary":true}]}`)
	proc := pipeline.NewProcessor(store, docs, answer, validator, convert.Config{TempDir: t.TempDir(), Timeout: time.Second}, nil, nil)
	ob := onboarding.NewService(store, docs, proc, nil, nil, onboarding.Config{}, nil)
	ten := tenancy.NewService(store, nil, nil)

	owner, h := repotest.SeedOwner(t, store)
	token, _, err := auth.GenerateToken(owner, authCfg)
	if err != nil {
		t.Fatal(err)
	}
	router := NewRouter(Deps{Onboarding: ob, Tenancies: ten, Store: store, Auth: authCfg, MaxUploadBytes: 1 << 20})
	return &apiFixture{router: router, token: token, household: h, store: store}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) upload(t *testing.T, householdID, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("household_id", householdID)
	part, _ := mw.CreateFormFile("file", name)
	_, _ = part.Write(content)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/onboarding/tenancy/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestOnboardingFlow(t *testing.T) {
	f := newAPI(t)

	w := f.upload(t, f.household.ID.String(), "lease.pdf", []byte("%PDF-1.4 lease"))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var a entity.TenancyAgreement
	if err := json.Unmarshal(w.Body.Bytes(), &a); err != nil {
		t.Fatal(err)
	}
	if a.Status != constants.AgreementProcessed || a.ExtractedData == nil || *a.ExtractedData.MonthlyRent != 1250 {
		t.Fatalf("unexpected agreement %s", w.Body.String())
	}

	confirm := map[string]any{
		"tenancy_agreement_id": a.ID,
		"tenancy_name":         "Lease 2024",
		"start_date":           "2024-01-15",
		"monthly_rent":         1250,
	}
	w = f.do(t, http.MethodPost, "/api/onboarding/tenancy/confirm", confirm)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var res onboarding.ConfirmResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Tenancy.Status != constants.TenancyActive || len(res.Tenancy.Renters) != 1 || !res.Tenancy.Renters[0].IsPrimary {
		t.Errorf("unexpected tenancy %s", w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/onboarding/tenancy/confirm", confirm)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 on repeated confirm, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/tenancies?status=active", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Lease 2024") {
		t.Errorf("unexpected list %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/tenancies/export", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != xlsxContentType || w.Body.Len() == 0 {
		t.Errorf("unexpected export %d %q", w.Code, w.Header().Get("Content-Type"))
	}

	w = f.do(t, http.MethodPost, "/api/tenancies/"+res.Tenancy.ID.String()+"/renters", map[string]any{"email": "john@example.com"})
	if w.Code != http.StatusConflict || decodeError(t, w).Error.Code != common.CodeConflict {
		t.Errorf("Expected 409 RECONCILIATION_CONFLICT, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/tenancies/"+res.Tenancy.ID.String()+"/move-out", map[string]any{"end_date": "2024-01-15"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for end_date == start_date, got %d", w.Code)
	}
	if fields := decodeError(t, w).Error.Fields; len(fields) != 1 || fields[0].Field != "end_date" {
		t.Errorf("Expected end_date field error, got %v", fields)
	}

	w = f.do(t, http.MethodGet, "/api/onboarding/status", nil)
	if !strings.Contains(w.Body.String(), `"renters_added":true`) {
		t.Errorf("unexpected status %s", w.Body.String())
	}
}

func TestUploadErrors(t *testing.T) {
	f := newAPI(t)
	tests := []struct {
		name      string
		household string
		file      string
		status    int
		code      string
	}{
		{"unsupported type", f.household.ID.String(), "lease.exe", http.StatusUnsupportedMediaType, common.CodeUnsupportedFormat},
		{"bad household id", "nope", "lease.pdf", http.StatusBadRequest, common.CodeInvalidInput},
		{"unknown household", uuid.NewString(), "lease.pdf", http.StatusNotFound, common.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.upload(t, tt.household, tt.file, []byte("data"))
			if w.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if got := decodeError(t, w).Error.Code; got != tt.code {
				t.Errorf("Expected %s, got %s", tt.code, got)
			}
		})
	}
}

func TestUploadEmptyFile(t *testing.T) {
	f := newAPI(t)
	w := f.upload(t, f.household.ID.String(), "lease.pdf", []byte{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty file, got %d", w.Code)
	}
}

func TestConfirmRejectsMalformedBody(t *testing.T) {
	f := newAPI(t)
	w := f.do(t, http.MethodPost, "/api/onboarding/tenancy/confirm", `{"tenancy_agreement_id":"`+uuid.NewString()+`","start_date":"15/01/2024"}`)
	if w.Code != http.StatusBadRequest || decodeError(t, w).Error.Code != common.CodeInvalidInput {
		t.Errorf("Expected 400 INVALID_INPUT, got %d: %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodPost, "/api/onboarding/tenancy/confirm", map[string]any{"tenancy_agreement_id": uuid.New(), "tenancy_name": "x", "start_date": "2024-01-01"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown agreement, got %d", w.Code)
	}
}

func TestAuthentication(t *testing.T) {
	f := newAPI(t)
	tenant := &entity.User{ID: uuid.New(), Email: "t@example.com", Role: string(constants.RoleTenant)}
	tenantToken, _, _ := auth.GenerateToken(tenant, authCfg)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"invalid format", f.token, http.StatusUnauthorized},
		{"invalid token", "Bearer invalid.token.here", http.StatusUnauthorized},
		{"tenant role", "Bearer " + tenantToken, http.StatusForbidden},
		{"valid token", "Bearer " + f.token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/onboarding/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestRequestIDAndRecovery(t *testing.T) {
	f := newAPI(t)
	f.router.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(headerRequestID, "req-123")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", w.Code)
	}
	if w.Header().Get(headerRequestID) != "req-123" {
		t.Errorf("Expected request id to be echoed")
	}
	resp := decodeError(t, w)
	if resp.Error.Code != common.CodeInternal || resp.RequestID != "req-123" || strings.Contains(w.Body.String(), "kaboom") {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	p := &pinger{}
	router := NewRouter(Deps{Store: p, Auth: authCfg})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	p.err = errors.New("connection refused")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[string]int{
		common.CodeNotFound:          http.StatusNotFound,
		common.CodeForbidden:         http.StatusForbidden,
		common.CodeValidation:        http.StatusBadRequest,
		common.CodeUnsupportedFormat: http.StatusUnsupportedMediaType,
		common.CodeConflict:          http.StatusConflict,
		common.CodePrecondition:      http.StatusConflict,
		common.CodeConfiguration:     http.StatusServiceUnavailable,
		"SOMETHING_ELSE":             http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := StatusFor(code); got != want {
			t.Errorf("%s: expected %d, got %d", code, want, got)
		}
	}
}

func TestGRPCHealthFollowsStore(t *testing.T) {
	_, hs := NewGRPCServer()
	p := &pinger{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		WatchStore(ctx, hs, p, 20*time.Millisecond, nil)
		close(done)
	}()

	waitFor := func(want healthpb.HealthCheckResponse_ServingStatus) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
			if err == nil && resp.GetStatus() == want {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("health never reached %s", want)
	}

	waitFor(healthpb.HealthCheckResponse_SERVING)
	cancel()
	<-done
	waitFor(healthpb.HealthCheckResponse_NOT_SERVING)
}
