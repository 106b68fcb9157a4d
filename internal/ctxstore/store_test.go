package ctxstore

import (
	"testing"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

func TestAddComputesHashAndSize(t *testing.T) {
	s := New()
	item := s.Add(protocol.ContextItem{Key: "k1", ContentType: protocol.ContentText, Content: "hello", AddedBy: "p1"})
	if item.ContentRef == nil || item.ContentRef.Hash == "" {
		t.Fatal("expected computed content ref")
	}
	if item.ContentRef.Size != 5 {
		t.Fatalf("expected size 5, got %d", item.ContentRef.Size)
	}
}

func TestUpdateRecomputesHashAndBumpsUpdatedAt(t *testing.T) {
	s := New()
	item := s.Add(protocol.ContextItem{Key: "k1", ContentType: protocol.ContentText, Content: "hello", AddedBy: "p1"})
	firstHash := item.ContentRef.Hash

	newContent := "goodbye"
	updated, ok := s.Update("k1", protocol.ContextPatch{Content: &newContent})
	if !ok {
		t.Fatal("expected update to succeed")
	}
	if updated.ContentRef.Hash == firstHash {
		t.Fatal("expected hash to change with content")
	}
	if updated.UpdatedAt < item.UpdatedAt {
		t.Fatal("expected updatedAt to advance")
	}
}

func TestVisibilityFiltering(t *testing.T) {
	s := New()
	s.Add(protocol.ContextItem{Key: "public", ContentType: protocol.ContentText, Content: "x"})
	s.Add(protocol.ContextItem{Key: "private", ContentType: protocol.ContentText, Content: "y", VisibleTo: []string{"p1"}})

	for _, item := range s.FilterVisibleTo("p2") {
		if item.Key == "private" {
			t.Fatal("p2 should not see a context item scoped to p1")
		}
	}
	found := false
	for _, item := range s.FilterVisibleTo("p1") {
		if item.Key == "private" {
			found = true
		}
	}
	if !found {
		t.Fatal("p1 should see the item it is scoped to")
	}
}
