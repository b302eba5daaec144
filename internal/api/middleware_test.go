package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

const testAPIKey = "test-secret-key-12345"

// captureLogs routes the default logger into a JSON buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

// requestLog returns the "request completed" entry from buf.
func requestLog(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v (%s)", err, sc.Text())
		}
		if entry["msg"] == "request completed" {
			return entry
		}
	}
	t.Fatalf("no request log in %s", buf.String())
	return nil
}

func TestAuth_ContractRoutes(t *testing.T) {
	h := newTestRouter(t, newTestStore(t), &mockSynthesizer{})
	longContract := strings.Repeat("x", 200)

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
	}{
		{"valid key", "/api/v1/contracts/acme-2026/rules", "Bearer " + testAPIKey, http.StatusOK},
		{"surrounding spaces trimmed", "/api/v1/contracts/acme-2026/rules", "Bearer  " + testAPIKey + " ", http.StatusOK},
		{"no header", "/api/v1/contracts/acme-2026/rules", "", http.StatusUnauthorized},
		{"wrong key", "/api/v1/contracts/acme-2026/rules", "Bearer wrong-key", http.StatusUnauthorized},
		{"key prefix only", "/api/v1/contracts/acme-2026/rules", "Bearer " + testAPIKey[:5], http.StatusUnauthorized},
		{"lowercase scheme", "/api/v1/contracts/acme-2026/rules", "bearer " + testAPIKey, http.StatusUnauthorized},
		{"basic scheme", "/api/v1/contracts/acme-2026/rules", "Basic " + testAPIKey, http.StatusUnauthorized},
		{"bare key", "/api/v1/contracts/acme-2026/rules", testAPIKey, http.StatusUnauthorized},
		// Auth runs before the contract ID is inspected.
		{"bad contract without key", "/api/v1/contracts/" + longContract + "/rules", "", http.StatusUnauthorized},
		{"bad contract with key", "/api/v1/contracts/" + longContract + "/rules", "Bearer " + testAPIKey, http.StatusUnprocessableEntity},
		{"health needs no key", "/api/v1/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body: %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusUnauthorized {
				return
			}
			p := decodeProblem(t, w)
			if p.Type != problemBaseURI+"unauthorized" {
				t.Errorf("type = %q", p.Type)
			}
			if strings.Contains(w.Body.String(), testAPIKey) {
				t.Error("401 body contains the API key")
			}
		})
	}
}

func TestAuth_FailureDoesNotLogCredentials(t *testing.T) {
	logs := captureLogs(t)
	h := newTestRouter(t, newTestStore(t), &mockSynthesizer{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts/acme-2026/rules", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey+"-stale")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(logs.String(), "auth failure") {
		t.Errorf("expected an auth failure entry, got %s", logs.String())
	}
	if strings.Contains(logs.String(), testAPIKey) {
		t.Error("log output contains the presented credential")
	}
}

func TestRequestLog_ContractID(t *testing.T) {
	s := newTestStore(t)
	rec := seedRule(t, s, "acme-2026", "entity:0:R1")

	tests := []struct {
		name         string
		path         string
		wantContract string // empty means the field is absent
	}{
		{"contract route", "/api/v1/contracts/acme-2026/rules", "acme-2026"},
		{"terminology lookup", "/api/v1/contracts/acme-2026/terminology?term=Net+Sales", "acme-2026"},
		{"rule by id", "/api/v1/rules/" + rec.ID, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureLogs(t)
			h := newTestRouter(t, s, &mockSynthesizer{display: "Net Sales (NET_SALES_AMT)"})
			w := doRequest(h, http.MethodGet, tt.path, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
			}

			entry := requestLog(t, logs)
			got, present := entry["contract_id"]
			switch {
			case tt.wantContract == "" && present:
				t.Errorf("contract_id = %v, want absent", got)
			case tt.wantContract != "" && got != tt.wantContract:
				t.Errorf("contract_id = %v, want %s", got, tt.wantContract)
			}
			if id, _ := entry["request_id"].(string); id == "" {
				t.Error("request_id missing from request log")
			}
			if _, ok := entry["duration_ms"]; !ok {
				t.Error("duration_ms missing from request log")
			}
		})
	}
}

func TestRequestLog_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		name      string
		router    func(t *testing.T) http.Handler
		path      string
		wantCode  int
		wantLevel string
	}{
		{
			name:      "listing rules",
			router:    func(t *testing.T) http.Handler { return newTestRouter(t, newTestStore(t), &mockSynthesizer{}) },
			path:      "/api/v1/contracts/acme-2026/rules",
			wantCode:  http.StatusOK,
			wantLevel: "INFO",
		},
		{
			name:      "unknown rule",
			router:    func(t *testing.T) http.Handler { return newTestRouter(t, newTestStore(t), &mockSynthesizer{}) },
			path:      "/api/v1/rules/01ARZ3NDEKTSV4RRFFQ69G5FAV",
			wantCode:  http.StatusNotFound,
			wantLevel: "WARN",
		},
		{
			name: "store down",
			router: func(t *testing.T) http.Handler {
				return newTestRouter(t, failingStore{newTestStore(t)}, &mockSynthesizer{})
			},
			path:      "/api/v1/health",
			wantCode:  http.StatusServiceUnavailable,
			wantLevel: "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureLogs(t)
			w := doRequest(tt.router(t), http.MethodGet, tt.path, nil)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if got := requestLog(t, logs)["level"]; got != tt.wantLevel {
				t.Errorf("level = %v, want %s", got, tt.wantLevel)
			}
		})
	}
}

func TestLogLevelForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   slog.Level
	}{
		{http.StatusOK, slog.LevelInfo},
		{http.StatusCreated, slog.LevelInfo},
		{http.StatusNotModified, slog.LevelInfo},
		{http.StatusBadRequest, slog.LevelWarn},
		{http.StatusConflict, slog.LevelWarn},
		{http.StatusUnprocessableEntity, slog.LevelWarn},
		{http.StatusInternalServerError, slog.LevelError},
		{http.StatusServiceUnavailable, slog.LevelError},
	}
	for _, tt := range tests {
		if got := logLevelForStatus(tt.status); got != tt.want {
			t.Errorf("logLevelForStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRecovery_PanicInContractRoute(t *testing.T) {
	logs := captureLogs(t)

	r := chi.NewRouter()
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Route("/contracts/{contractID}", func(r chi.Router) {
		r.Use(ContractMiddleware)
		r.Post("/synthesize", func(w http.ResponseWriter, r *http.Request) {
			panic("royalty schedule for acme: 12% of net sales")
		})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contracts/acme-2026/synthesize", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "royalty schedule") {
		t.Error("response leaks the panic value")
	}
	if p := decodeProblem(t, w); p.Detail != "Internal Server Error" {
		t.Errorf("detail = %q", p.Detail)
	}

	entry := requestLog(t, logs)
	if entry["level"] != "ERROR" || entry["contract_id"] != "acme-2026" {
		t.Errorf("request log = %v, want ERROR for acme-2026", entry)
	}
}
