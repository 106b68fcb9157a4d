package broker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextlevelbuilder/convoke/internal/config"
)

func newTestBroker(t *testing.T, mutate func(*config.Config)) *Broker {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := New(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("constructing broker: %v", err)
	}
	t.Cleanup(func() { b.Shutdown(context.Background()) })
	return b
}

func TestHealthReportsBridgeProxyState(t *testing.T) {
	b := newTestBroker(t, nil)
	srv := httptest.NewServer(b.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if configured, ok := body["bridge_proxy"].(bool); !ok || configured {
		t.Fatalf("expected bridge_proxy=false with no bridge configured, got %v", body["bridge_proxy"])
	}
}

func TestUnknownPathIs404(t *testing.T) {
	b := newTestBroker(t, nil)
	srv := httptest.NewServer(b.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUnconfiguredBridgeIs503(t *testing.T) {
	b := newTestBroker(t, nil)
	srv := httptest.NewServer(b.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/bridge/decisions")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestWebsocketUpgradeRequiresBearerToken(t *testing.T) {
	b := newTestBroker(t, func(cfg *config.Config) {
		cfg.Gateway.AuthToken = "hunter2"
	})
	srv := httptest.NewServer(b.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/ws", nil)
	req.Header.Set("Authorization", "Bearer hunter2")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	// A plain GET with the right token clears auth but fails the
	// websocket upgrade handshake, which is a 4xx from the upgrader,
	// not our 401.
	if resp.StatusCode == http.StatusUnauthorized {
		t.Fatal("a correct bearer token must clear the auth check")
	}
}
