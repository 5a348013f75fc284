package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anirudh-why/codeHub/internal/models"
)

func seedWorkspace(t *testing.T, m *Memory) *models.Workspace {
	t.Helper()
	ws := &models.Workspace{
		Name:     "demo",
		Language: "javascript",
		Link:     "link-1",
		Users: []models.Member{
			{Email: "a@x.com", DisplayName: "A", Role: models.RoleAdmin},
		},
	}
	if err := m.CreateWorkspace(context.Background(), ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	return ws
}

func TestMemoryWorkspaceLookup(t *testing.T) {
	m := NewMemory()
	ws := seedWorkspace(t, m)

	got, err := m.WorkspaceByLink(context.Background(), "link-1")
	if err != nil {
		t.Fatalf("by link: %v", err)
	}
	if got.ID != ws.ID || got.Name != "demo" {
		t.Fatalf("unexpected workspace: %#v", got)
	}

	if _, err := m.WorkspaceByLink(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := m.WorkspaceByID(context.Background(), ws.ID); err != nil {
		t.Fatalf("by id: %v", err)
	}
}

func TestMemoryCodeAndMessages(t *testing.T) {
	m := NewMemory()
	ws := seedWorkspace(t, m)

	if err := m.UpdateWorkspaceCode(context.Background(), ws.ID, "x"); err != nil {
		t.Fatalf("update code: %v", err)
	}
	msg := models.ChatMessage{Username: "A", Message: "hi", Timestamp: time.Now()}
	if err := m.AppendMessage(context.Background(), ws.ID, msg); err != nil {
		t.Fatalf("append message: %v", err)
	}

	got, _ := m.WorkspaceByLink(context.Background(), "link-1")
	if got.Code != "x" {
		t.Fatalf("code not persisted: %q", got.Code)
	}
	if len(got.Messages) != 1 || got.Messages[0].Message != "hi" {
		t.Fatalf("message not persisted: %#v", got.Messages)
	}
}

func TestMemoryMembershipMutations(t *testing.T) {
	m := NewMemory()
	ws := seedWorkspace(t, m)

	if err := m.UpdateMemberRole(context.Background(), ws.ID, "a@x.com", models.RoleEditor); err != nil {
		t.Fatalf("update role: %v", err)
	}
	if err := m.UpdateMemberRole(context.Background(), ws.ID, "nope@x.com", models.RoleEditor); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown member, got %v", err)
	}
	if err := m.SetMemberActive(context.Background(), ws.ID, "a@x.com", true, time.Now()); err != nil {
		t.Fatalf("set active: %v", err)
	}

	got, _ := m.WorkspaceByLink(context.Background(), "link-1")
	member, ok := got.MemberByEmail("a@x.com")
	if !ok || member.Role != models.RoleEditor || !member.IsActive {
		t.Fatalf("unexpected member state: %#v", member)
	}

	if err := m.RemoveMember(context.Background(), ws.ID, "a@x.com"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	got, _ = m.WorkspaceByLink(context.Background(), "link-1")
	if len(got.Users) != 0 {
		t.Fatalf("member not removed: %#v", got.Users)
	}
}

func TestMemoryFileRoundTrip(t *testing.T) {
	m := NewMemory()
	ws := seedWorkspace(t, m)

	folder := &models.Folder{Name: "F", Workspace: ws.ID, CreatedBy: "a@x.com"}
	if err := m.CreateFolder(context.Background(), folder); err != nil {
		t.Fatalf("create folder: %v", err)
	}
	file := &models.File{Name: "f.js", Parent: &folder.ID, Workspace: ws.ID, CreatedBy: "a@x.com"}
	if err := m.CreateFile(context.Background(), file); err != nil {
		t.Fatalf("create file: %v", err)
	}

	tree, err := FileTree(context.Background(), m, ws.ID)
	if err != nil {
		t.Fatalf("file tree: %v", err)
	}
	if len(tree) != 1 || tree[0].Name != "F" {
		t.Fatalf("unexpected tree roots: %#v", tree)
	}
	if len(tree[0].Children) != 1 || tree[0].Children[0].Name != "f.js" {
		t.Fatalf("file not nested under folder: %#v", tree[0].Children)
	}

	if err := m.DeleteFolder(context.Background(), folder.ID); err != nil {
		t.Fatalf("delete folder: %v", err)
	}
	tree, _ = FileTree(context.Background(), m, ws.ID)
	if len(tree) != 0 {
		t.Fatalf("expected empty tree after folder delete, got %#v", tree)
	}
	if _, err := m.FileByID(context.Background(), file.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected file gone from direct lookup, got %v", err)
	}
}

func TestMemoryDeleteFolderCascades(t *testing.T) {
	m := NewMemory()
	ws := seedWorkspace(t, m)

	f1 := &models.Folder{Name: "F1", Workspace: ws.ID}
	if err := m.CreateFolder(context.Background(), f1); err != nil {
		t.Fatalf("create F1: %v", err)
	}
	f2 := &models.Folder{Name: "F2", Parent: &f1.ID, Workspace: ws.ID}
	if err := m.CreateFolder(context.Background(), f2); err != nil {
		t.Fatalf("create F2: %v", err)
	}
	file1 := &models.File{Name: "f1.js", Parent: &f1.ID, Workspace: ws.ID}
	file2 := &models.File{Name: "f2.js", Parent: &f2.ID, Workspace: ws.ID}
	for _, f := range []*models.File{file1, file2} {
		if err := m.CreateFile(context.Background(), f); err != nil {
			t.Fatalf("create file: %v", err)
		}
	}

	if err := m.DeleteFolder(context.Background(), f1.ID); err != nil {
		t.Fatalf("delete F1: %v", err)
	}

	for _, id := range []primitive.ObjectID{file1.ID, file2.ID} {
		if _, err := m.FileByID(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected file %s deleted, got %v", id.Hex(), err)
		}
	}
	for _, id := range []primitive.ObjectID{f1.ID, f2.ID} {
		if _, err := m.FolderByID(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected folder %s deleted, got %v", id.Hex(), err)
		}
	}
}

func TestMemoryDeleteWorkspaceCascades(t *testing.T) {
	m := NewMemory()
	ws := seedWorkspace(t, m)

	folder := &models.Folder{Name: "F", Workspace: ws.ID}
	if err := m.CreateFolder(context.Background(), folder); err != nil {
		t.Fatalf("create folder: %v", err)
	}
	file := &models.File{Name: "f.js", Workspace: ws.ID}
	if err := m.CreateFile(context.Background(), file); err != nil {
		t.Fatalf("create file: %v", err)
	}

	if err := m.DeleteWorkspace(context.Background(), ws.ID); err != nil {
		t.Fatalf("delete workspace: %v", err)
	}
	if _, err := m.WorkspaceByLink(context.Background(), "link-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected workspace gone, got %v", err)
	}
	if _, err := m.FileByID(context.Background(), file.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected file gone, got %v", err)
	}
	if _, err := m.FolderByID(context.Background(), folder.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected folder gone, got %v", err)
	}
}

func TestMemoryFailWrites(t *testing.T) {
	m := NewMemory()
	ws := seedWorkspace(t, m)

	boom := errors.New("boom")
	m.FailWrites = boom
	if err := m.UpdateWorkspaceCode(context.Background(), ws.ID, "x"); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
}

func TestMemoryWorkspacesByMemberReturnsDetachedCopies(t *testing.T) {
	m := NewMemory()
	ws := seedWorkspace(t, m)

	got, err := m.WorkspacesByMember(context.Background(), "a@x.com")
	if err != nil || len(got) != 1 {
		t.Fatalf("by member: %v, %#v", err, got)
	}
	if err := m.UpdateMemberRole(context.Background(), ws.ID, "a@x.com", models.RoleViewer); err != nil {
		t.Fatalf("update role: %v", err)
	}
	if got[0].Users[0].Role != models.RoleAdmin {
		t.Fatalf("returned copy mutated by a later write: %#v", got[0].Users)
	}
}
