package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/mnohosten/pkto/pkg/auth"
)

func setupTestServer(t *testing.T) (*Server, func()) {
	config := &Config{
		Host:           "localhost",
		Port:           0,
		TobjCount:      16,
		K:              5,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    30 * time.Second,
		MaxRequestSize: 1 * 1024 * 1024,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		EnableLogging:  false,
	}

	srv, err := New(config)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	return srv, func() { srv.compressor.Close() }
}

func makeRequest(t *testing.T, srv *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	var response map[string]interface{}
	if rr.Body.Len() > 0 {
		if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}

	return rr, response
}

func TestHealthEndpoint(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	rr, resp := makeRequest(t, srv, http.MethodGet, "/_health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if resp["ok"] != true {
		t.Errorf("expected ok=true, got %v", resp["ok"])
	}
	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		t.Fatal("expected result object")
	}
	if result["status"] != "healthy" {
		t.Errorf("expected status=healthy, got %v", result["status"])
	}
}

func TestBeginReadWriteCommit(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	_, beginResp := makeRequest(t, srv, http.MethodPost, "/tx", nil)
	if beginResp["ok"] != true {
		t.Fatalf("begin failed: %v", beginResp)
	}
	id := beginResp["id"]

	path := func(suffix string) string {
		switch v := id.(type) {
		case float64:
			return "/tx/" + jsonNum(v) + suffix
		default:
			t.Fatalf("unexpected id type %T", id)
			return ""
		}
	}

	_, writeResp := makeRequest(t, srv, http.MethodPost, path("/write"), map[string]interface{}{
		"tobj":  1,
		"value": 42,
	})
	if writeResp["ok"] != true {
		t.Fatalf("write failed: %v", writeResp)
	}

	_, readResp := makeRequest(t, srv, http.MethodPost, path("/read"), map[string]interface{}{"tobj": 1})
	if readResp["ok"] != true {
		t.Fatalf("read failed: %v", readResp)
	}
	if readResp["value"].(float64) != 42 {
		t.Errorf("expected read-your-own-write value 42, got %v", readResp["value"])
	}

	_, commitResp := makeRequest(t, srv, http.MethodPost, path("/commit"), nil)
	if commitResp["status"] != "OK" {
		t.Fatalf("expected commit OK, got %v", commitResp)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	rr, resp := makeRequest(t, srv, http.MethodGet, "/stats", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if resp["ok"] != true {
		t.Errorf("expected ok=true, got %v", resp["ok"])
	}
	if _, ok := resp["runtime"]; !ok {
		t.Error("expected runtime stats in response")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/_metrics", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Error("expected non-empty prometheus body")
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/_snapshot", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Error("expected non-empty compressed snapshot body")
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/zstd" {
		t.Errorf("expected Content-Type application/zstd, got %s", ct)
	}
}

func TestSnapshotEndpointFormats(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	for _, format := range []string{"snappy", "gzip", "zlib", "none"} {
		req := httptest.NewRequest(http.MethodGet, "/_snapshot?format="+format, nil)
		rr := httptest.NewRecorder()
		srv.router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("format %s: expected 200, got %d", format, rr.Code)
		}
		if rr.Body.Len() == 0 {
			t.Errorf("format %s: expected non-empty body", format)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/"+format {
			t.Errorf("format %s: expected Content-Type application/%s, got %s", format, format, ct)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/_snapshot?format=bogus", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported format, got %d", rr.Code)
	}
}

func TestAuthRequiredWhenSecretConfigured(t *testing.T) {
	config := DefaultConfig()
	config.TobjCount = 4
	config.AuthSecret = "test-secret"

	srv, err := New(config)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer srv.compressor.Close()

	rr, _ := makeRequest(t, srv, http.MethodPost, "/tx", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	token := srv.tokenIssuer.Issue("tester", auth.RoleReadWrite, time.Hour)
	req := httptest.NewRequest(http.MethodPost, "/tx", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr2 := httptest.NewRecorder()
	srv.router.ServeHTTP(rr2, req)
	if rr2.Code != http.StatusCreated {
		t.Fatalf("expected 201 with valid token, got %d", rr2.Code)
	}
}

func jsonNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
