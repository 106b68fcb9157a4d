package toolhandler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// FileReadHandler and FileWriteHandler expose workspace-scoped file
// access: every path is restricted to a single workspace root by a
// path-prefix check.
type FileReadHandler struct {
	workspace string
}

func NewFileReadHandler(workspace string) *FileReadHandler {
	return &FileReadHandler{workspace: workspace}
}

func (h *FileReadHandler) Name() string { return "read_file" }

func (h *FileReadHandler) Describe(ctx context.Context, arguments map[string]any) (Classification, error) {
	path, _ := arguments["path"].(string)
	if _, err := h.resolve(path); err != nil {
		return Classification{}, err
	}
	return Classification{
		Category:         protocol.CategoryFileRead,
		RiskLevel:        protocol.RiskSafe,
		RequiresApproval: false,
		Description:      fmt.Sprintf("read %s", path),
	}, nil
}

func (h *FileReadHandler) Execute(ctx context.Context, arguments map[string]any, onOutput func(stream, chunk string)) ExecResult {
	path, _ := arguments["path"].(string)
	full, err := h.resolve(path)
	if err != nil {
		return ExecResult{Success: false, Error: err.Error()}
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return ExecResult{Success: false, Error: err.Error()}
	}
	return ExecResult{Success: true, Output: string(data)}
}

func (h *FileReadHandler) resolve(path string) (string, error) {
	return resolveWithinWorkspace(h.workspace, path)
}

// FileWriteHandler writes file content within the workspace. It always
// requires approval: the shell classifier's category/risk table applies
// to shell commands, not external tools, so this handler carries the
// conservative verdict itself.
type FileWriteHandler struct {
	workspace string
}

func NewFileWriteHandler(workspace string) *FileWriteHandler {
	return &FileWriteHandler{workspace: workspace}
}

func (h *FileWriteHandler) Name() string { return "write_file" }

func (h *FileWriteHandler) Describe(ctx context.Context, arguments map[string]any) (Classification, error) {
	path, _ := arguments["path"].(string)
	if _, err := resolveWithinWorkspace(h.workspace, path); err != nil {
		return Classification{}, err
	}
	return Classification{
		Category:         protocol.CategoryFileWrite,
		RiskLevel:        protocol.RiskLow,
		RequiresApproval: true,
		Description:      fmt.Sprintf("write %s", path),
	}, nil
}

func (h *FileWriteHandler) Execute(ctx context.Context, arguments map[string]any, onOutput func(stream, chunk string)) ExecResult {
	path, _ := arguments["path"].(string)
	content, _ := arguments["content"].(string)
	full, err := resolveWithinWorkspace(h.workspace, path)
	if err != nil {
		return ExecResult{Success: false, Error: err.Error()}
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return ExecResult{Success: false, Error: err.Error()}
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return ExecResult{Success: false, Error: err.Error()}
	}
	return ExecResult{Success: true, Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}
}

// resolveWithinWorkspace joins path under workspace and rejects any
// result that escapes it.
func resolveWithinWorkspace(workspace, path string) (string, error) {
	if workspace == "" {
		return "", fmt.Errorf("no workspace configured")
	}
	full := filepath.Join(workspace, path)
	rel, err := filepath.Rel(workspace, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return full, nil
}
