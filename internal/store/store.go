// Package store is the persistence gateway for workspaces and their file
// trees. The event router treats it as eventually consistent: hot-path
// broadcasts never wait on a write here.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anirudh-why/codeHub/internal/models"
)

// ErrNotFound is returned when a workspace, file or folder does not exist.
var ErrNotFound = errors.New("not found")

// Store is the document-store contract the collaboration core depends on.
type Store interface {
	CreateWorkspace(ctx context.Context, ws *models.Workspace) error
	WorkspaceByLink(ctx context.Context, link string) (*models.Workspace, error)
	WorkspaceByID(ctx context.Context, id primitive.ObjectID) (*models.Workspace, error)
	WorkspacesByMember(ctx context.Context, email string) ([]*models.Workspace, error)
	UpdateWorkspaceCode(ctx context.Context, id primitive.ObjectID, code string) error
	AppendMessage(ctx context.Context, id primitive.ObjectID, msg models.ChatMessage) error
	SetMemberActive(ctx context.Context, id primitive.ObjectID, email string, active bool, at time.Time) error
	UpdateMemberRole(ctx context.Context, id primitive.ObjectID, email string, role models.Role) error
	RemoveMember(ctx context.Context, id primitive.ObjectID, email string) error
	// DeleteWorkspace removes the workspace document and every file and
	// folder that belongs to it.
	DeleteWorkspace(ctx context.Context, id primitive.ObjectID) error

	CreateFile(ctx context.Context, f *models.File) error
	CreateFolder(ctx context.Context, f *models.Folder) error
	FileByID(ctx context.Context, id primitive.ObjectID) (*models.File, error)
	FolderByID(ctx context.Context, id primitive.ObjectID) (*models.Folder, error)
	UpdateFileContent(ctx context.Context, id primitive.ObjectID, content string) error
	DeleteFile(ctx context.Context, id primitive.ObjectID) error
	// DeleteFolder removes the folder and all transitive descendants,
	// depth-first, so no surviving node ever references a deleted parent.
	DeleteFolder(ctx context.Context, id primitive.ObjectID) error
	ListFiles(ctx context.Context, workspace primitive.ObjectID) ([]*models.File, error)
	ListFolders(ctx context.Context, workspace primitive.ObjectID) ([]*models.Folder, error)
	CountFiles(ctx context.Context, workspace primitive.ObjectID) (int64, error)
	CountFolders(ctx context.Context, workspace primitive.ObjectID) (int64, error)
}

// FileTree loads a workspace's files and folders and assembles the nested
// tree clients render.
func FileTree(ctx context.Context, s Store, workspace primitive.ObjectID) ([]*models.TreeNode, error) {
	files, err := s.ListFiles(ctx, workspace)
	if err != nil {
		return nil, err
	}
	folders, err := s.ListFolders(ctx, workspace)
	if err != nil {
		return nil, err
	}
	return BuildTree(files, folders), nil
}
