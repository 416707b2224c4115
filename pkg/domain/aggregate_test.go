package domain

import "testing"

// Commands issued in one session must see the effects of earlier commands
// on the same aggregate without an intermediate replay.
func TestEmitFoldsEventsIntoState(t *testing.T) {
	org := NewOrg("org-1", "inst-1")

	if err := org.Add("e1", "admin", "Acme"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if org.State != OrgStateActive {
		t.Fatalf("state after add = %v, want %v", org.State, OrgStateActive)
	}

	if err := org.Deactivate("e2", "admin"); err != nil {
		t.Fatalf("deactivate after add: %v", err)
	}
	if org.State != OrgStateInactive {
		t.Fatalf("state after deactivate = %v, want %v", org.State, OrgStateInactive)
	}

	if got := org.Sequence(); got != 2 {
		t.Fatalf("sequence = %d, want 2", got)
	}
	if n := len(org.UncommittedEvents()); n != 2 {
		t.Fatalf("uncommitted events = %d, want 2", n)
	}
}
