package roles

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/anirudh-why/codeHub/internal/models"
	"github.com/anirudh-why/codeHub/internal/session"
	"github.com/anirudh-why/codeHub/internal/store"
)

func newFixture(t *testing.T) (*Resolver, *store.Memory, *session.Registry, *models.Workspace) {
	t.Helper()
	st := store.NewMemory()
	reg := session.NewRegistry()
	ws := &models.Workspace{
		Name: "demo",
		Link: "link-1",
		Users: []models.Member{
			{Email: "admin@x.com", Role: models.RoleAdmin},
			{Email: "editor@x.com", Role: models.RoleEditor},
			{Email: "blank@x.com"},
		},
	}
	if err := st.CreateWorkspace(context.Background(), ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	return NewResolver(st, reg, nil, zap.NewNop()), st, reg, ws
}

func TestResolve(t *testing.T) {
	r, _, _, ws := newFixture(t)

	tests := []struct {
		email   string
		want    models.Role
		wantErr error
	}{
		{"admin@x.com", models.RoleAdmin, nil},
		{"editor@x.com", models.RoleEditor, nil},
		{"blank@x.com", models.RoleViewer, nil},
		{"stranger@x.com", "", ErrNotAMember},
	}
	for _, tt := range tests {
		got, err := r.Resolve(ws, tt.email)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("%s: expected error %v, got %v", tt.email, tt.wantErr, err)
		}
		if got != tt.want {
			t.Fatalf("%s: expected role %q, got %q", tt.email, tt.want, got)
		}
	}
}

func TestResolveByLink(t *testing.T) {
	r, _, _, _ := newFixture(t)

	role, err := r.ResolveByLink(context.Background(), "link-1", "editor@x.com")
	if err != nil || role != models.RoleEditor {
		t.Fatalf("expected editor, got %q err=%v", role, err)
	}
	if _, err := r.ResolveByLink(context.Background(), "missing", "editor@x.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChangeRequiresAdmin(t *testing.T) {
	r, _, _, ws := newFixture(t)

	err := r.Change(context.Background(), models.RoleEditor, ws, "editor@x.com", models.RoleViewer)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestChangeRejectsUnknownRole(t *testing.T) {
	r, _, _, ws := newFixture(t)

	err := r.Change(context.Background(), models.RoleAdmin, ws, "editor@x.com", models.Role("owner"))
	if !errors.Is(err, ErrBadRole) {
		t.Fatalf("expected ErrBadRole, got %v", err)
	}
}

func TestChangeRejectsNonMemberTarget(t *testing.T) {
	r, _, _, ws := newFixture(t)

	err := r.Change(context.Background(), models.RoleAdmin, ws, "stranger@x.com", models.RoleEditor)
	if !errors.Is(err, ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
}

func TestChangePersistsAndSyncsCache(t *testing.T) {
	r, st, reg, ws := newFixture(t)

	reg.Join(session.Session{
		ConnID: "tab1",
		Client: session.NewClient(nil),
		Link:   ws.Link,
		Email:  "editor@x.com",
		Role:   models.RoleEditor,
	})
	reg.Join(session.Session{
		ConnID: "tab2",
		Client: session.NewClient(nil),
		Link:   ws.Link,
		Email:  "editor@x.com",
		Role:   models.RoleEditor,
	})

	if err := r.Change(context.Background(), models.RoleAdmin, ws, "editor@x.com", models.RoleViewer); err != nil {
		t.Fatalf("change: %v", err)
	}

	stored, _ := st.WorkspaceByLink(context.Background(), ws.Link)
	member, _ := stored.MemberByEmail("editor@x.com")
	if member.Role != models.RoleViewer {
		t.Fatalf("role not persisted: %#v", member)
	}
	for _, connID := range []string{"tab1", "tab2"} {
		s, ok := reg.Get(connID)
		if !ok || s.Role != models.RoleViewer {
			t.Fatalf("cached role not synced for %s: %#v", connID, s)
		}
	}
}

func TestChangeLeavesCacheOnPersistFailure(t *testing.T) {
	r, st, reg, ws := newFixture(t)

	reg.Join(session.Session{
		ConnID: "c1",
		Client: session.NewClient(nil),
		Link:   ws.Link,
		Email:  "editor@x.com",
		Role:   models.RoleEditor,
	})

	st.FailWrites = errors.New("store down")
	if err := r.Change(context.Background(), models.RoleAdmin, ws, "editor@x.com", models.RoleViewer); err == nil {
		t.Fatalf("expected persist failure to surface")
	}
	if s, _ := reg.Get("c1"); s.Role != models.RoleEditor {
		t.Fatalf("cache changed despite persist failure: %#v", s)
	}
}
