//go:build e2e

// End-to-end smoke test against a running server. Requires a configured LLM
// provider, so it only checks the surfaces that do not spend tokens.
//
//	go test -tags e2e ./internal/e2e/
package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("SMITH_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(time.Second)
	}
	if !ready {
		os.Stderr.WriteString("server not reachable at " + baseURL + "\n")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func TestHealthAndCatalog(t *testing.T) {
	resp, err := http.Get(baseURL + "/api/catalog")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	defer resp.Body.Close()

	var entries []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("catalog is empty")
	}
}

func TestThreadLifecycle(t *testing.T) {
	resp, err := http.Post(baseURL+"/api/threads", "application/json", nil)
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create thread status = %d", resp.StatusCode)
	}

	var created struct {
		ThreadID string `json:"thread_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	cfgResp, err := http.Get(baseURL + "/api/threads/" + created.ThreadID + "/config")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	defer cfgResp.Body.Close()

	var cfg struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(cfgResp.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.State != "empty" {
		t.Errorf("fresh thread config state = %q, want empty", cfg.State)
	}

	restartResp, err := http.Post(baseURL+"/api/threads/"+created.ThreadID+"/restart",
		"application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer restartResp.Body.Close()
	if restartResp.StatusCode != http.StatusOK {
		t.Errorf("restart status = %d", restartResp.StatusCode)
	}
}
