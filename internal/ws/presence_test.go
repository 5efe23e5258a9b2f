package ws

import "testing"

func TestPresenceAddRemove(t *testing.T) {
	p := NewPresence()

	if got := p.Add("alice"); got != 1 {
		t.Fatalf("expected count 1, got %d", got)
	}
	if got := p.Add("bob"); got != 2 {
		t.Fatalf("expected count 2, got %d", got)
	}
	if got := p.Remove("alice"); got != 1 {
		t.Fatalf("expected count 1, got %d", got)
	}
	if got := p.Remove("alice"); got != 1 {
		t.Fatalf("expected repeat removal to keep count 1, got %d", got)
	}
	if got := p.Count(); got != 1 {
		t.Fatalf("expected count 1, got %d", got)
	}
}

func TestPresenceCollapsesDuplicateHandles(t *testing.T) {
	p := NewPresence()

	p.Add("alice")
	if got := p.Add("alice"); got != 1 {
		t.Fatalf("expected duplicate handle to collapse, got %d", got)
	}

	// one disconnect removes the handle even while a duplicate remains
	if got := p.Remove("alice"); got != 0 {
		t.Fatalf("expected count 0, got %d", got)
	}
}
