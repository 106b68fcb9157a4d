package agent

import (
	"context"

	"github.com/nextlevelbuilder/convoke/internal/fsdiff"
	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// Workspace diff bounds: tool invocations that rewrite half a dependency
// tree should not flood the session with one context event per file.
const (
	snapshotMaxDepth = 6
	maxReportedFiles = 20
	maxReportedBytes = 64 * 1024
)

// snapshotWorkspace captures the workspace state before a tool executes,
// for the post-execution change broadcast. A missing or
// unconfigured workspace disables the detector for this agent.
func (a *Agent) snapshotWorkspace() *fsdiff.Snapshot {
	if a.workspace == "" {
		return nil
	}
	snap, err := fsdiff.Take(a.workspace, snapshotMaxDepth, a.logger)
	if err != nil {
		a.logger.Warn("agent: workspace snapshot failed", "workspace", a.workspace, "error", err)
		return nil
	}
	return snap
}

// reportWorkspaceChanges diffs the workspace against before and emits one
// context event per created/modified file, so every participant sees the
// result of a tool invocation in session context.
func (a *Agent) reportWorkspaceChanges(ctx context.Context, before *fsdiff.Snapshot) {
	if before == nil {
		return
	}
	changes, err := fsdiff.Diff(before, a.workspace, snapshotMaxDepth, a.logger)
	if err != nil {
		a.logger.Warn("agent: workspace diff failed", "workspace", a.workspace, "error", err)
		return
	}
	if len(changes) > maxReportedFiles {
		a.logger.Info("agent: truncating workspace change report", "changed", len(changes), "reported", maxReportedFiles)
		changes = changes[:maxReportedFiles]
	}
	for _, ch := range changes {
		content := ch.Content
		if len(content) > maxReportedBytes {
			content = content[:maxReportedBytes]
		}
		// context.add upserts by key, so created and modified files go
		// through the same event. The event does not say which of the two
		// it was: a re-added key also gets a fresh addedAt on the broker
		// side.
		a.send(ctx, protocol.TypeContextAdd, protocol.ContextAddPayload{Item: protocol.ContextItem{
			Key:         "file:" + ch.RelativePath,
			ContentType: protocol.ContentFile,
			Content:     content,
			AddedBy:     a.id,
		}})
	}
}
