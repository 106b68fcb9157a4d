package toolhandler

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/convoke/internal/classify"
	"github.com/nextlevelbuilder/convoke/internal/execsvc"
	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// ShellName is the built-in shell tool's wire name.
const ShellName = "shell"

// ShellHandler adapts internal/classify and internal/execsvc to the
// Handler interface so the orchestrator's dispatch loop does not
// special-case the shell tool beyond always including it in the catalog.
type ShellHandler struct {
	classifier *classify.Classifier
	executor   *execsvc.Executor
	cwd        string
}

// NewShellHandler constructs the built-in shell tool rooted at cwd, the
// agent's workspace.
func NewShellHandler(classifier *classify.Classifier, executor *execsvc.Executor, cwd string) *ShellHandler {
	return &ShellHandler{classifier: classifier, executor: executor, cwd: cwd}
}

func (h *ShellHandler) Name() string { return ShellName }

// Describe classifies the command argument. A command classified as
// blocked is refused here with an error, which the caller turns into a
// proposal-creation-time failure rather than ever spawning a subprocess.
func (h *ShellHandler) Describe(ctx context.Context, arguments map[string]any) (Classification, error) {
	command, _ := arguments["command"].(string)
	rec := h.classifier.Classify(command)
	if rec.IsBlocked() {
		return Classification{}, fmt.Errorf("blocked command: %s (%s)", command, rec.Reason)
	}
	return Classification{
		Category:         toolCategoryFor(rec.Category),
		RiskLevel:        rec.RiskLevel,
		RequiresApproval: rec.RequiresApproval,
		Description:      rec.Reason,
	}, nil
}

// Execute runs the command as a subprocess, streaming output chunks to
// onOutput and returning the accumulated result.
func (h *ShellHandler) Execute(ctx context.Context, arguments map[string]any, onOutput func(stream, chunk string)) ExecResult {
	command, _ := arguments["command"].(string)
	rec := h.classifier.Classify(command)
	if rec.IsBlocked() {
		return ExecResult{Success: false, Error: fmt.Sprintf("refusing to execute blocked command: %s", rec.Reason)}
	}

	res := h.executor.Run(ctx, rec, h.cwd, func(c execsvc.Chunk) {
		if onOutput != nil {
			onOutput(c.Stream, c.Data)
		}
	})

	switch {
	case res.Err != nil && res.TimedOut:
		return ExecResult{Success: false, Error: fmt.Sprintf("command timed out: %v", res.Err)}
	case res.Err != nil && res.BufferExceeded:
		return ExecResult{Success: false, Error: fmt.Sprintf("output buffer exceeded: %v", res.Err)}
	case res.Err != nil:
		return ExecResult{Success: false, Error: res.Err.Error()}
	case res.ExitCode != 0:
		return ExecResult{Success: false, Output: res.Stdout, Error: fmt.Sprintf("exit code %d: %s", res.ExitCode, res.Stderr)}
	default:
		return ExecResult{Success: true, Output: res.Stdout}
	}
}

// toolCategoryFor maps the shell classifier's category onto the broader
// tool-proposal category set: shell_execute stands in for every shell
// category, since a shell invocation is always categorically a shell
// execution at the tool-proposal level, with risk/approval carrying the
// finer-grained classifier verdict.
func toolCategoryFor(protocol.ShellCategory) protocol.ToolCategory {
	return protocol.CategoryShellExecute
}
