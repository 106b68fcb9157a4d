package router

import (
	"encoding/json"

	"github.com/nextlevelbuilder/convoke/internal/ctxstore"
	"github.com/nextlevelbuilder/convoke/internal/transport"
	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// maxContextBytes caps a single context item's inline content; larger
// payloads belong out of band, referenced by a content ref.
const maxContextBytes = 1 << 20

// visibilityFilter restricts delivery of a context item's content to the
// participants it names in visible_to (empty means everyone).
func visibilityFilter(item protocol.ContextItem) transport.BroadcastFilter {
	return func(participantID string) bool { return ctxstore.IsVisible(item, participantID) }
}

func (r *Router) handleContextAdd(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.ContextAddPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed context.add payload")
	}
	if len(payload.Item.Content) > maxContextBytes {
		return nil, nil, rerr(protocol.ErrContextTooLarge, "context item %q exceeds %d bytes inline", payload.Item.Key, maxContextBytes)
	}
	payload.Item.AddedBy = env.Sender
	item := sess.Context.Add(payload.Item)

	// The broadcast carries the normalized item (hash ref attached,
	// timestamps set) under the inbound envelope's own id, so refs to it
	// resolve against the log.
	raw, err := json.Marshal(protocol.ContextAddPayload{Item: item})
	if err != nil {
		return nil, nil, rerr(protocol.ErrInternalError, "%v", err)
	}
	env.Payload = raw
	appended := sess.Append(env)
	return []outbound{{appended, visibilityFilter(item)}}, nil, nil
}

func (r *Router) handleContextUpdate(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.ContextUpdatePayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed context.update payload")
	}
	if payload.Patch.Content != nil && len(*payload.Patch.Content) > maxContextBytes {
		return nil, nil, rerr(protocol.ErrContextTooLarge, "context item %q exceeds %d bytes inline", payload.Key, maxContextBytes)
	}
	item, ok := sess.Context.Update(payload.Key, payload.Patch)
	if !ok {
		return nil, nil, rerr(protocol.ErrInvalidState, "unknown context key %q", payload.Key)
	}
	appended := sess.Append(env)
	return []outbound{{appended, visibilityFilter(item)}}, nil, nil
}

func (r *Router) handleContextRemove(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.ContextRemovePayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed context.remove payload")
	}
	if !sess.Context.Remove(payload.Key) {
		return nil, nil, rerr(protocol.ErrInvalidState, "unknown context key %q", payload.Key)
	}
	appended := sess.Append(env)
	return []outbound{{appended, nil}}, nil, nil
}
