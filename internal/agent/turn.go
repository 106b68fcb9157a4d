package agent

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/convoke/internal/id"
	"github.com/nextlevelbuilder/convoke/internal/provider"
	"github.com/nextlevelbuilder/convoke/internal/toolbatch"
	"github.com/nextlevelbuilder/convoke/internal/toolhandler"
	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// maxParallelClassify bounds how many tool calls in one batch have their
// handler's Describe run concurrently — a handler's
// Describe can do real work (stat a path, resolve a config lookup), so a
// batch of many independent tool calls classifies them in parallel rather
// than one at a time, capped to avoid a goroutine per call on a large
// batch.
const maxParallelClassify = 4

// runTurn drives one prompt to completion: a user message is appended to
// history, the provider is asked to complete, and if it asks for tools,
// a batch is opened, proposals are sent, and the loop blocks (runToolBatch
// keeps draining the agent's single inbox through handle) until every
// entry in that batch resolves. The cycle repeats — fold tool results back into history, ask
// the provider again — until a turn finishes with no further tool calls.
func (a *Agent) runTurn(ctx context.Context, promptRef, content string) {
	a.history = append(a.history, provider.Message{Role: provider.RoleUser, Content: content})

	a.send(ctx, protocol.TypeThinkingStart, protocol.ThinkingStartPayload{PromptRef: promptRef}, protocol.WithRef(promptRef))
	a.send(ctx, protocol.TypeResponseStart, protocol.ResponseStartPayload{PromptRef: promptRef}, protocol.WithRef(promptRef))

	for {
		resp, err := a.complete(ctx, promptRef)
		if err != nil {
			// A completion-provider failure is an AGENT_ERROR related to
			// the originating prompt; any pending batch is cleared.
			a.logger.Error("agent: completion provider failed", "prompt_ref", promptRef, "error", err)
			a.clearBatch()
			a.sendError(ctx, protocol.ErrAgentError, err.Error(), promptRef)
			a.endStreams(ctx, promptRef, protocol.FinishComplete)
			return
		}

		if resp.FinishReason != provider.FinishToolUse || len(resp.ToolCalls) == 0 {
			a.history = append(a.history, provider.Message{Role: provider.RoleAssistant, Content: resp.Text})
			a.endStreams(ctx, promptRef, protocol.FinishComplete)
			return
		}

		a.history = append(a.history, provider.Message{Role: provider.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})
		a.endStreams(ctx, promptRef, protocol.FinishToolUse)

		results, interrupted := a.runToolBatch(ctx, promptRef, resp.ToolCalls)
		if interrupted {
			return
		}
		a.history = append(a.history, toResultMessage(results))
		if results.HadRejection {
			// A rejected batch still feeds its failing results back as
			// data, but the model is not called again.
			a.send(ctx, protocol.TypeResponseEnd, protocol.ResponseEndPayload{PromptRef: promptRef, FinishReason: protocol.FinishComplete}, protocol.WithRef(promptRef))
			return
		}
	}
}

// endStreams closes both the thinking and response streams with the same
// finish reason.
func (a *Agent) endStreams(ctx context.Context, promptRef string, reason protocol.FinishReason) {
	a.send(ctx, protocol.TypeThinkingEnd, protocol.ThinkingEndPayload{PromptRef: promptRef, FinishReason: reason}, protocol.WithRef(promptRef))
	a.send(ctx, protocol.TypeResponseEnd, protocol.ResponseEndPayload{PromptRef: promptRef, FinishReason: reason}, protocol.WithRef(promptRef))
}

// sendError emits an `error` envelope from this agent.
func (a *Agent) sendError(ctx context.Context, code, message, relatedTo string) {
	a.send(ctx, protocol.TypeError, protocol.ErrorPayload{
		Code:        code,
		Message:     message,
		RelatedTo:   relatedTo,
		Recoverable: true,
	})
}

func (a *Agent) clearBatch() {
	a.batch = nil
	for k := range a.pending {
		delete(a.pending, k)
	}
}

func (a *Agent) complete(ctx context.Context, promptRef string) (provider.Response, error) {
	req := provider.Request{Messages: a.history, Tools: a.toolDefinitions()}
	return a.provider.Complete(ctx, req, func(c provider.Chunk) {
		if c.Thinking != "" {
			a.send(ctx, protocol.TypeThinkingChunk, protocol.ThinkingChunkPayload{PromptRef: promptRef, Text: c.Thinking})
		}
		if c.Text != "" {
			a.send(ctx, protocol.TypeResponseChunk, protocol.ResponseChunkPayload{PromptRef: promptRef, Text: c.Text})
		}
	})
}

func (a *Agent) toolDefinitions() []provider.ToolDefinition {
	names := a.tools.Names()
	defs := make([]provider.ToolDefinition, 0, len(names)+1)
	defs = append(defs, provider.ToolDefinition{Name: toolhandler.ShellName, Description: "execute a shell command"})
	for _, n := range names {
		if n == toolhandler.ShellName {
			continue
		}
		defs = append(defs, provider.ToolDefinition{Name: n})
	}
	return defs
}

// runToolBatch opens a batch, classifies every call (in bounded parallel,
// since a handler's Describe can do real work) and proposes each in the
// completion's original order, then blocks draining this agent's own
// inbox until the batch completes or an emergency interrupt clears it
// out from under this turn.
func (a *Agent) runToolBatch(ctx context.Context, promptRef string, calls []provider.ToolCall) (toolbatch.Result, bool) {
	if a.batch != nil {
		// Starting a new batch while one is pending is a logged anomaly;
		// the previous batch is discarded.
		a.logger.Warn("agent: discarding pending tool batch", "prompt_ref", a.batch.PromptRef(), "unresolved", a.batch.Size())
	}
	a.batch = toolbatch.New(promptRef)
	for _, call := range calls {
		a.batch.AddTool(call.ID, call.Name)
	}

	classifications := a.classifyAll(ctx, calls)
	for i, call := range calls {
		a.propose(ctx, call, classifications[i])
	}

	for !a.batch.IsComplete() {
		select {
		case <-ctx.Done():
			return toolbatch.Result{}, true
		case env := <-a.inbox:
			a.handle(ctx, env)
			if a.batch == nil {
				// An emergency interrupt cleared the batch mid-flight.
				return toolbatch.Result{}, true
			}
		}
	}

	result, err := a.batch.Complete()
	a.batch = nil
	if err != nil {
		a.logger.Error("agent: tool batch completed inconsistently", "error", err)
	}
	return result, false
}

// toolClassification is one call's classification outcome, resolved
// before any shared agent state is touched so classifyAll can run every
// call's Describe concurrently without synchronizing on a.batch/a.pending.
type toolClassification struct {
	class toolhandler.Classification
	err   error
}

// classifyAll runs Describe for every call in calls concurrently, capped
// at maxParallelClassify in flight, and returns one result per call in
// the same order calls was given in — so the caller can still propose
// (and thus open gates, assign proposal ids) in the completion's
// original order regardless of which Describe finished first.
func (a *Agent) classifyAll(ctx context.Context, calls []provider.ToolCall) []toolClassification {
	results := make([]toolClassification, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelClassify)

	for i, call := range calls {
		i, call := i, call
		handler, ok := a.tools.Get(call.Name)
		if !ok {
			results[i] = toolClassification{err: fmt.Errorf("unknown tool: %s", call.Name)}
			continue
		}
		g.Go(func() error {
			class, err := handler.Describe(gctx, call.Arguments)
			results[i] = toolClassification{class: class, err: err}
			return nil
		})
	}
	_ = g.Wait() // classify errors are per-call, carried in results, never aborts the batch

	return results
}

// propose applies one call's already-resolved classification: either
// refuse it outright (a blocked shell command never becomes a proposal
// at all, and never spawns a subprocess), or emit tool.propose and
// record the pending call so a later tool.execute can find its handler
// and arguments again.
func (a *Agent) propose(ctx context.Context, call provider.ToolCall, result toolClassification) {
	if result.err != nil {
		// A refused classification (a blocked command, an unknown tool)
		// halts the turn the same way a gate rejection does: the entry
		// fails, the batch is marked rejected so the model is not called
		// again, and the refusal surfaces as an error envelope.
		a.batch.MarkRejected()
		a.batch.ResolveFailed(call.ID, result.err.Error())
		a.sendError(ctx, protocol.ErrAgentError, result.err.Error(), a.batch.PromptRef())
		a.sendToolResult(ctx, "", call.ID, false, "", result.err.Error())
		return
	}
	class := result.class

	proposalID := id.NewProposalID()
	a.batch.SetProposalID(call.ID, proposalID)
	a.pending[proposalID] = pendingCall{toolUseID: call.ID, toolName: call.Name, arguments: call.Arguments}

	a.send(ctx, protocol.TypeToolPropose, protocol.ToolProposePayload{
		ProposalID:       proposalID,
		ToolName:         call.Name,
		Arguments:        call.Arguments,
		ProposingAgent:   a.id,
		Category:         class.Category,
		RiskLevel:        class.RiskLevel,
		RequiresApproval: class.RequiresApproval,
		Description:      class.Description,
	})
}

func (a *Agent) onToolExecute(ctx context.Context, env protocol.Envelope) {
	var payload protocol.ToolExecutePayload
	if err := env.DecodePayload(&payload); err != nil {
		return
	}
	call, ok := a.pending[payload.ProposalID]
	if !ok {
		return
	}
	delete(a.pending, payload.ProposalID)

	handler, ok := a.tools.Get(call.toolName)
	if !ok {
		a.resolveToolFailure(ctx, payload.ProposalID, call.toolUseID, "tool no longer registered")
		return
	}

	before := a.snapshotWorkspace()
	res := handler.Execute(ctx, call.arguments, func(stream, chunk string) {
		a.send(ctx, protocol.TypeToolOutput, protocol.ToolOutputPayload{ProposalID: payload.ProposalID, Stream: stream, Chunk: chunk})
	})
	a.reportWorkspaceChanges(ctx, before)

	if a.batch == nil {
		// Lenient fallback: a resolution with no
		// active batch is forwarded to the model as a single-result turn
		// rather than dropped, and the anomaly is logged.
		a.logger.Warn("agent: tool resolution arrived with no active batch", "proposal_id", payload.ProposalID, "tool", call.toolName)
		a.history = append(a.history, provider.Message{Role: provider.RoleTool, ToolResults: []provider.ToolResult{{
			ToolCallID: call.toolUseID,
			Content:    resultContent(res),
			IsError:    !res.Success,
		}}})
		a.sendToolResult(ctx, payload.ProposalID, call.toolUseID, res.Success, res.Output, res.Error)
		return
	}

	if res.Success {
		a.batch.ResolveSuccess(call.toolUseID, res.Output)
	} else {
		a.batch.ResolveFailed(call.toolUseID, res.Error)
	}
	a.sendToolResult(ctx, payload.ProposalID, call.toolUseID, res.Success, res.Output, res.Error)
}

func resultContent(res toolhandler.ExecResult) string {
	if res.Success {
		return res.Output
	}
	return res.Error
}

func (a *Agent) onGateReject(ctx context.Context, env protocol.Envelope) {
	var payload protocol.GateRejectPayload
	if err := env.DecodePayload(&payload); err != nil {
		return
	}
	call, ok := a.pending[payload.ProposalID]
	if !ok {
		return
	}
	delete(a.pending, payload.ProposalID)
	reason := payload.Reason
	if reason == "" {
		reason = "no reason given"
	}
	a.resolveToolFailure(ctx, payload.ProposalID, call.toolUseID, "rejected by human: "+reason)
}

func (a *Agent) onGateTimeout(ctx context.Context, env protocol.Envelope) {
	var payload protocol.GateTimeoutPayload
	if err := env.DecodePayload(&payload); err != nil {
		return
	}
	if payload.Resolution == protocol.ResolutionAutoApproved {
		// The router follows this with its own tool.execute; nothing to
		// resolve here yet.
		return
	}
	call, ok := a.pending[payload.ProposalID]
	if !ok {
		return
	}
	delete(a.pending, payload.ProposalID)
	a.resolveToolFailure(ctx, payload.ProposalID, call.toolUseID, "gate timed out: "+string(payload.Resolution))
}

func (a *Agent) resolveToolFailure(ctx context.Context, proposalID, toolUseID, reason string) {
	if a.batch != nil {
		a.batch.MarkRejected()
		a.batch.ResolveFailed(toolUseID, reason)
	}
	a.sendToolResult(ctx, proposalID, toolUseID, false, "", reason)
}

func (a *Agent) sendToolResult(ctx context.Context, proposalID, toolUseID string, success bool, output, errMsg string) {
	a.send(ctx, protocol.TypeToolResult, protocol.ToolResultPayload{
		ProposalID: proposalID,
		ToolUseID:  toolUseID,
		Success:    success,
		Output:     output,
		Error:      errMsg,
	})
}

// onInterruptRaise clears the whole conversation history and any
// in-flight batch on an emergency interrupt addressed to this agent; a
// normal-urgency interrupt is acknowledged without disturbing state.
func (a *Agent) onInterruptRaise(ctx context.Context, env protocol.Envelope) {
	var payload protocol.InterruptRaisePayload
	if err := env.DecodePayload(&payload); err != nil {
		return
	}
	if payload.Target != "" && payload.Target != a.id {
		return
	}
	action := protocol.ActionAcknowledged
	if payload.Urgency == protocol.UrgencyEmergency {
		// Emergency: drop the conversation history and abandon the
		// in-flight batch; still-open proposals become garbage from this
		// agent's view and the broker's gates time out normally.
		a.history = nil
		a.clearBatch()
		action = protocol.ActionStopped
	}
	a.send(ctx, protocol.TypeInterruptAcknowledge, protocol.InterruptAcknowledgePayload{ActionTaken: action}, protocol.WithRef(env.ID))
}

// toResultMessage folds a resolved tool batch back into the conversation
// as a single tool-role message carrying every result, matching the
// invariant that one prompt's tool use is answered as one message, never
// split across several turns.
func toResultMessage(result toolbatch.Result) provider.Message {
	msg := provider.Message{Role: provider.RoleTool}
	for _, entry := range result.Entries {
		msg.ToolResults = append(msg.ToolResults, provider.ToolResult{
			ToolCallID: entry.ToolUseID,
			Content:    entry.Result,
			IsError:    !entry.Success,
		})
	}
	return msg
}
