package toolhandler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// defaultFetchMaxChars caps retrieved content.
const defaultFetchMaxChars = 50000

// WebFetchHandler fetches a URL for the agent: a single GET with a
// capped response size and a fixed user agent. No response cache, no
// HTML-to-text conversion — callers get the raw body.
type WebFetchHandler struct {
	client   *http.Client
	maxChars int
}

func NewWebFetchHandler() *WebFetchHandler {
	return &WebFetchHandler{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxChars: defaultFetchMaxChars,
	}
}

func (h *WebFetchHandler) Name() string { return "web_fetch" }

func (h *WebFetchHandler) Describe(ctx context.Context, arguments map[string]any) (Classification, error) {
	url, _ := arguments["url"].(string)
	return Classification{
		Category:         protocol.CategoryNetworkRequest,
		RiskLevel:        protocol.RiskLow,
		RequiresApproval: false,
		Description:      fmt.Sprintf("fetch %s", url),
	}, nil
}

func (h *WebFetchHandler) Execute(ctx context.Context, arguments map[string]any, onOutput func(stream, chunk string)) ExecResult {
	url, _ := arguments["url"].(string)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ExecResult{Success: false, Error: err.Error()}
	}
	req.Header.Set("User-Agent", "convoke-agent/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return ExecResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(h.maxChars)))
	if err != nil {
		return ExecResult{Success: false, Error: err.Error()}
	}
	if resp.StatusCode >= 400 {
		return ExecResult{Success: false, Error: fmt.Sprintf("http %d: %s", resp.StatusCode, string(body))}
	}
	return ExecResult{Success: true, Output: string(body)}
}
