package store

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anirudh-why/codeHub/internal/models"
)

// Memory is an in-process Store used by tests and local development. It
// mirrors the Mongo implementation's semantics, including depth-first
// cascade deletes.
type Memory struct {
	mu         sync.Mutex
	workspaces map[primitive.ObjectID]*models.Workspace
	files      map[primitive.ObjectID]*models.File
	folders    map[primitive.ObjectID]*models.Folder

	// FailWrites makes every mutating call return this error. Tests use it
	// to exercise persistence-failure paths.
	FailWrites error
}

func NewMemory() *Memory {
	return &Memory{
		workspaces: make(map[primitive.ObjectID]*models.Workspace),
		files:      make(map[primitive.ObjectID]*models.File),
		folders:    make(map[primitive.ObjectID]*models.Folder),
	}
}

func (m *Memory) CreateWorkspace(_ context.Context, ws *models.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	if ws.ID.IsZero() {
		ws.ID = primitive.NewObjectID()
	}
	now := time.Now()
	ws.CreatedAt = now
	ws.UpdatedAt = now
	m.workspaces[ws.ID] = cloneWorkspace(ws)
	return nil
}

// cloneWorkspace deep-copies the slice-valued fields so callers never share
// backing arrays with the stored document.
func cloneWorkspace(ws *models.Workspace) *models.Workspace {
	cp := *ws
	cp.Users = append([]models.Member(nil), ws.Users...)
	cp.Messages = append([]models.ChatMessage(nil), ws.Messages...)
	return &cp
}

func (m *Memory) WorkspaceByLink(_ context.Context, link string) (*models.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ws := range m.workspaces {
		if ws.Link == link {
			return cloneWorkspace(ws), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) WorkspaceByID(_ context.Context, id primitive.ObjectID) (*models.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneWorkspace(ws), nil
}

func (m *Memory) WorkspacesByMember(_ context.Context, email string) ([]*models.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Workspace
	for _, ws := range m.workspaces {
		if _, ok := ws.MemberByEmail(email); ok {
			out = append(out, cloneWorkspace(ws))
		}
	}
	return out, nil
}

func (m *Memory) UpdateWorkspaceCode(_ context.Context, id primitive.ObjectID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	ws, ok := m.workspaces[id]
	if !ok {
		return ErrNotFound
	}
	ws.Code = code
	ws.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) AppendMessage(_ context.Context, id primitive.ObjectID, msg models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	ws, ok := m.workspaces[id]
	if !ok {
		return ErrNotFound
	}
	ws.Messages = append(ws.Messages, msg)
	ws.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) SetMemberActive(_ context.Context, id primitive.ObjectID, email string, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	ws, ok := m.workspaces[id]
	if !ok {
		return ErrNotFound
	}
	for i := range ws.Users {
		if ws.Users[i].Email == email {
			ws.Users[i].IsActive = active
			ws.Users[i].LastActive = at
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) UpdateMemberRole(_ context.Context, id primitive.ObjectID, email string, role models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	ws, ok := m.workspaces[id]
	if !ok {
		return ErrNotFound
	}
	for i := range ws.Users {
		if ws.Users[i].Email == email {
			ws.Users[i].Role = role
			ws.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) RemoveMember(_ context.Context, id primitive.ObjectID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	ws, ok := m.workspaces[id]
	if !ok {
		return ErrNotFound
	}
	for i := range ws.Users {
		if ws.Users[i].Email == email {
			ws.Users = append(ws.Users[:i], ws.Users[i+1:]...)
			ws.UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}

func (m *Memory) DeleteWorkspace(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	if _, ok := m.workspaces[id]; !ok {
		return ErrNotFound
	}
	for fid, f := range m.files {
		if f.Workspace == id {
			delete(m.files, fid)
		}
	}
	for fid, f := range m.folders {
		if f.Workspace == id {
			delete(m.folders, fid)
		}
	}
	delete(m.workspaces, id)
	return nil
}

func (m *Memory) CreateFile(_ context.Context, f *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now
	cp := *f
	m.files[f.ID] = &cp
	return nil
}

func (m *Memory) CreateFolder(_ context.Context, f *models.Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now
	cp := *f
	m.folders[f.ID] = &cp
	return nil
}

func (m *Memory) FileByID(_ context.Context, id primitive.ObjectID) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *Memory) FolderByID(_ context.Context, id primitive.ObjectID) (*models.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *Memory) UpdateFileContent(_ context.Context, id primitive.ObjectID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	f, ok := m.files[id]
	if !ok {
		return ErrNotFound
	}
	f.Content = content
	f.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) DeleteFile(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	if _, ok := m.files[id]; !ok {
		return ErrNotFound
	}
	delete(m.files, id)
	return nil
}

func (m *Memory) DeleteFolder(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	if _, ok := m.folders[id]; !ok {
		return ErrNotFound
	}
	m.deleteFolderTree(id)
	return nil
}

func (m *Memory) deleteFolderTree(id primitive.ObjectID) {
	for fid, f := range m.folders {
		if f.Parent != nil && *f.Parent == id {
			m.deleteFolderTree(fid)
		}
	}
	for fid, f := range m.files {
		if f.Parent != nil && *f.Parent == id {
			delete(m.files, fid)
		}
	}
	delete(m.folders, id)
}

func (m *Memory) ListFiles(_ context.Context, workspace primitive.ObjectID) ([]*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.File
	for _, f := range m.files {
		if f.Workspace == workspace {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) ListFolders(_ context.Context, workspace primitive.ObjectID) ([]*models.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Folder
	for _, f := range m.folders {
		if f.Workspace == workspace {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) CountFiles(_ context.Context, workspace primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, f := range m.files {
		if f.Workspace == workspace {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountFolders(_ context.Context, workspace primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, f := range m.folders {
		if f.Workspace == workspace {
			n++
		}
	}
	return n, nil
}
