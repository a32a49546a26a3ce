package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/dmrproject/dmr/pkg/coldstore"
	"github.com/dmrproject/dmr/pkg/hotindex"
	"github.com/dmrproject/dmr/pkg/hotstore"
	"github.com/dmrproject/dmr/pkg/retriever"
	"github.com/dmrproject/dmr/pkg/vectorize"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	v := vectorize.New()
	hi := hotindex.NewShardManager(filepath.Join(dir, "hot"), v.Dim())
	cs, err := coldstore.Open(filepath.Join(dir, "cold.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cs.Close() })

	policy := retriever.DefaultPolicy()
	policy.Threshold = 0
	rt := retriever.New(v, hi, hotstore.NullStore{}, cs, policy)
	return &Server{Retriever: rt}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPostThenPreRoundTrip(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/post", postRequest{
		TenantID: "T", UserID: "U", UserMessage: "tell me about sunny weather", AssistantMessage: "sure",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var postResp postResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &postResp); err != nil {
		t.Fatal(err)
	}
	if postResp.Status != "ok" || postResp.TurnID == "" {
		t.Fatalf("unexpected post response: %+v", postResp)
	}

	rec = doJSON(t, router, http.MethodPost, "/pre", preRequest{TenantID: "T", UserID: "U", Query: "sunny"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var preResp preResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &preResp); err != nil {
		t.Fatal(err)
	}
	if !preResp.Reliable {
		t.Fatalf("expected reliable=true, got %+v", preResp)
	}
	if preResp.PackSignature == "" {
		t.Fatal("expected a non-empty pack signature")
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestForgetEndpoint(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/forget", forgetRequest{TenantID: "T", UserID: "U", TurnID: "does-not-exist"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp forgetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TurnID != "does-not-exist" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
