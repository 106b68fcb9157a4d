// Package bridge implements the reverse proxy to the external
// decision-tracking daemon, built on net/http/httputil.ReverseProxy.
package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// PathPrefix is the reserved path the transport server mounts this proxy
// under.
const PathPrefix = "/bridge/"

// Proxy forwards anything under PathPrefix to a locally-configured
// decision-tracking daemon, preserving method, headers (rewriting Host),
// and body.
type Proxy struct {
	target  *url.URL
	logger  *slog.Logger
	proxy   *httputil.ReverseProxy
}

// New builds a Proxy targeting http://host:port. An unconfigured Proxy
// (host=="") is valid and always reports 503.
func New(host string, port int, logger *slog.Logger) *Proxy {
	if host == "" {
		return &Proxy{logger: logger}
	}
	target := &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", host, port)}
	rp := httputil.NewSingleHostReverseProxy(target)
	baseDirector := rp.Director
	rp.Director = func(r *http.Request) {
		r.URL.Path = strings.TrimPrefix(r.URL.Path, PathPrefix)
		if !strings.HasPrefix(r.URL.Path, "/") {
			r.URL.Path = "/" + r.URL.Path
		}
		baseDirector(r)
		r.Host = target.Host
	}
	p := &Proxy{target: target, logger: logger}
	rp.ErrorHandler = p.handleProxyError
	p.proxy = rp
	return p
}

// Configured reports whether a downstream target is set.
func (p *Proxy) Configured() bool { return p.target != nil }

// ServeHTTP implements http.Handler. Errors return 502 with a JSON body;
// an unconfigured proxy returns 503.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.Configured() {
		writeJSONError(w, http.StatusServiceUnavailable, "bridge proxy not configured")
		return
	}
	p.proxy.ServeHTTP(w, r)
}

func (p *Proxy) handleProxyError(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.Warn("bridge proxy request failed", "path", r.URL.Path, "error", err)
	writeJSONError(w, http.StatusBadGateway, err.Error())
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
