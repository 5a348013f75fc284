package session

import (
	"testing"

	"github.com/anirudh-why/codeHub/internal/models"
)

func joinAs(r *Registry, connID, link, email string, role models.Role) {
	r.Join(Session{
		ConnID:      connID,
		Client:      NewClient(nil),
		Link:        link,
		Email:       email,
		DisplayName: email,
		Role:        role,
	})
}

func activeEmails(r *Registry, link string) []string {
	var out []string
	for _, u := range r.ListActive(link) {
		out = append(out, u.Email)
	}
	return out
}

func TestRegistryPresenceTracksSessions(t *testing.T) {
	reg := NewRegistry()

	joinAs(reg, "c1", "w1", "a@x.com", models.RoleAdmin)
	joinAs(reg, "c2", "w1", "b@x.com", models.RoleEditor)
	joinAs(reg, "c3", "w2", "c@x.com", models.RoleViewer)

	got := activeEmails(reg, "w1")
	if len(got) != 2 || got[0] != "a@x.com" || got[1] != "b@x.com" {
		t.Fatalf("unexpected presence for w1: %v", got)
	}
	if got := activeEmails(reg, "w2"); len(got) != 1 || got[0] != "c@x.com" {
		t.Fatalf("unexpected presence for w2: %v", got)
	}

	reg.Leave("c1")
	if got := activeEmails(reg, "w1"); len(got) != 1 || got[0] != "b@x.com" {
		t.Fatalf("presence not recomputed after leave: %v", got)
	}
	if got := activeEmails(reg, "w3"); len(got) != 0 {
		t.Fatalf("expected empty presence for unknown workspace, got %v", got)
	}
}

func TestRegistryLeaveIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	joinAs(reg, "c1", "w1", "a@x.com", models.RoleAdmin)

	if _, ok := reg.Leave("c1"); !ok {
		t.Fatalf("expected first leave to remove the session")
	}
	if _, ok := reg.Leave("c1"); ok {
		t.Fatalf("expected second leave to be a no-op")
	}
	if got := activeEmails(reg, "w1"); len(got) != 0 {
		t.Fatalf("expected empty presence, got %v", got)
	}
}

func TestRegistryJoinReplacesPriorSession(t *testing.T) {
	reg := NewRegistry()
	joinAs(reg, "c1", "w1", "a@x.com", models.RoleAdmin)

	prev, replaced := reg.Join(Session{
		ConnID: "c1",
		Client: NewClient(nil),
		Link:   "w2",
		Email:  "a@x.com",
		Role:   models.RoleEditor,
	})
	if !replaced || prev.Link != "w1" {
		t.Fatalf("expected prior session for w1, got %#v replaced=%v", prev, replaced)
	}
	if got := activeEmails(reg, "w1"); len(got) != 0 {
		t.Fatalf("expected implicit leave of w1, presence %v", got)
	}
	if got := activeEmails(reg, "w2"); len(got) != 1 {
		t.Fatalf("expected presence in w2, got %v", got)
	}
}

func TestRegistryUpdateCachedRoleHitsEveryTab(t *testing.T) {
	reg := NewRegistry()
	// Two tabs for the same participant in the same workspace.
	joinAs(reg, "tab1", "w1", "a@x.com", models.RoleEditor)
	joinAs(reg, "tab2", "w1", "a@x.com", models.RoleEditor)
	joinAs(reg, "c3", "w1", "b@x.com", models.RoleEditor)
	joinAs(reg, "c4", "w2", "a@x.com", models.RoleEditor)

	if n := reg.UpdateCachedRole("a@x.com", "w1", models.RoleViewer); n != 2 {
		t.Fatalf("expected 2 sessions updated, got %d", n)
	}
	for _, connID := range []string{"tab1", "tab2"} {
		s, ok := reg.Get(connID)
		if !ok || s.Role != models.RoleViewer {
			t.Fatalf("session %s not updated: %#v", connID, s)
		}
	}
	if s, _ := reg.Get("c3"); s.Role != models.RoleEditor {
		t.Fatalf("other participant's role changed: %#v", s)
	}
	if s, _ := reg.Get("c4"); s.Role != models.RoleEditor {
		t.Fatalf("other workspace's role changed: %#v", s)
	}
}

func TestRegistryPresenceDeduplicatesTabs(t *testing.T) {
	reg := NewRegistry()
	joinAs(reg, "tab1", "w1", "a@x.com", models.RoleAdmin)
	joinAs(reg, "tab2", "w1", "a@x.com", models.RoleAdmin)

	if got := activeEmails(reg, "w1"); len(got) != 1 {
		t.Fatalf("expected one presence entry for two tabs, got %v", got)
	}
	if n := reg.CountActive("w1"); n != 2 {
		t.Fatalf("expected 2 live sessions, got %d", n)
	}
}

func TestRegistryDropWorkspace(t *testing.T) {
	reg := NewRegistry()
	joinAs(reg, "c1", "w1", "a@x.com", models.RoleAdmin)
	joinAs(reg, "c2", "w1", "a@x.com", models.RoleAdmin)
	joinAs(reg, "c3", "w2", "b@x.com", models.RoleEditor)

	if n := reg.DropWorkspace("w1"); n != 2 {
		t.Fatalf("DropWorkspace removed %d sessions, want 2", n)
	}
	if _, ok := reg.Get("c1"); ok {
		t.Fatalf("c1 must be gone")
	}
	if _, ok := reg.Get("c2"); ok {
		t.Fatalf("c2 must be gone")
	}
	if got := activeEmails(reg, "w1"); len(got) != 0 {
		t.Fatalf("presence must be empty after drop: %v", got)
	}
	if _, ok := reg.Get("c3"); !ok {
		t.Fatalf("other workspace's session must survive")
	}
	if n := reg.DropWorkspace("w1"); n != 0 {
		t.Fatalf("second drop must be a no-op, removed %d", n)
	}
}
