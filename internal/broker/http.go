package broker

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/convoke/internal/bridge"
)

// Mux assembles the broker's HTTP surface: the websocket upgrade
// endpoint, the bridge reverse proxy mount, and a health check reporting
// whether the bridge proxy is configured, the live session count, and the
// number of running heartbeat runners. CORS is permissive — this listener is
// a localhost-dev surface; production deployments front it with a proxy
// that enforces origin policy.
func (b *Broker) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.requireAuth(b.Transport.Handler()))
	mux.Handle(bridge.PathPrefix, b.Bridge)
	mux.HandleFunc("/health", b.handleHealth)
	return permissiveCORS(mux)
}

// requireAuth enforces the bearer-token join hook when an auth token is
// configured; with no token configured every connection is accepted.
func (b *Broker) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	token := b.cfg.Gateway.AuthToken
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func permissiveCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Broker) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":       "ok",
		"bridge_proxy": b.Bridge.Configured(),
		"sessions":     b.Sessions.Count(),
		"heartbeats":   b.Heartbeats.Active(),
	})
}
