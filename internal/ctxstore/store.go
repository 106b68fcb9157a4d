// Package ctxstore implements the per-session context store: keyed
// content items with visibility scoping and content hashing.
package ctxstore

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// Store is a session's context table. Mutation happens under the owning
// session's lock, mirroring internal/session and internal/participant.
type Store struct {
	items map[string]protocol.ContextItem
}

// New constructs an empty context store.
func New() *Store {
	return &Store{items: make(map[string]protocol.ContextItem)}
}

// Add inserts a context item (context.add). If inline content is present
// and no ref was supplied, a content hash and size/MIME ref are computed.
func (s *Store) Add(item protocol.ContextItem) protocol.ContextItem {
	now := time.Now().UnixMilli()
	if item.AddedAt == 0 {
		item.AddedAt = now
	}
	item.UpdatedAt = now
	if item.Content != "" && item.ContentRef == nil {
		item.ContentRef = computeRef(item.ContentType, item.Content)
	}
	s.items[item.Key] = item
	return item
}

// Update applies a patch (context.update): recomputes hash, bumps
// updatedAt.
func (s *Store) Update(key string, patch protocol.ContextPatch) (protocol.ContextItem, bool) {
	item, ok := s.items[key]
	if !ok {
		return protocol.ContextItem{}, false
	}
	if patch.Content != nil {
		item.Content = *patch.Content
		item.ContentRef = computeRef(item.ContentType, item.Content)
	}
	if patch.VisibleTo != nil {
		item.VisibleTo = patch.VisibleTo
	}
	item.UpdatedAt = time.Now().UnixMilli()
	s.items[key] = item
	return item, true
}

// Remove deletes a context item (context.remove).
func (s *Store) Remove(key string) bool {
	if _, ok := s.items[key]; !ok {
		return false
	}
	delete(s.items, key)
	return true
}

// Get returns a single item by key.
func (s *Store) Get(key string) (protocol.ContextItem, bool) {
	item, ok := s.items[key]
	return item, ok
}

// FilterVisibleTo returns items visible to participantID: visibleTo
// empty/absent means visible to all.
func (s *Store) FilterVisibleTo(participantID string) []protocol.ContextItem {
	var out []protocol.ContextItem
	for _, item := range s.items {
		if isVisible(item, participantID) {
			out = append(out, item)
		}
	}
	return out
}

// IsVisible reports whether item is visible to participantID, for the
// router's broadcast visibility filter.
func IsVisible(item protocol.ContextItem, participantID string) bool {
	return isVisible(item, participantID)
}

func isVisible(item protocol.ContextItem, participantID string) bool {
	if len(item.VisibleTo) == 0 {
		return true
	}
	for _, id := range item.VisibleTo {
		if id == participantID {
			return true
		}
	}
	return false
}

// computeRef hashes content with SHA-256 over canonical JSON for
// structured content, or raw bytes for text/other content types,
// recording size in bytes.
func computeRef(contentType protocol.ContextContentType, content string) *protocol.ContextRef {
	var sum [32]byte
	if contentType == protocol.ContentStructured {
		var v any
		if err := json.Unmarshal([]byte(content), &v); err == nil {
			canonical, _ := json.Marshal(v)
			sum = sha256.Sum256(canonical)
		} else {
			sum = sha256.Sum256([]byte(content))
		}
	} else {
		sum = sha256.Sum256([]byte(content))
	}
	mime := "text/plain"
	if contentType == protocol.ContentStructured {
		mime = "application/json"
	}
	return &protocol.ContextRef{
		Hash: fmt.Sprintf("%x", sum),
		Size: int64(len(content)),
		MIME: mime,
	}
}
