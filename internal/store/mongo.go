package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anirudh-why/codeHub/internal/models"
)

// Mongo implements Store on top of a MongoDB database with workspaces,
// files and folders collections.
type Mongo struct {
	workspaces *mongo.Collection
	files      *mongo.Collection
	folders    *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		workspaces: db.Collection("workspaces"),
		files:      db.Collection("files"),
		folders:    db.Collection("folders"),
	}
}

// EnsureIndexes creates the unique link index. Call once at startup.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.workspaces.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "link", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (m *Mongo) CreateWorkspace(ctx context.Context, ws *models.Workspace) error {
	if ws.ID.IsZero() {
		ws.ID = primitive.NewObjectID()
	}
	now := time.Now()
	ws.CreatedAt = now
	ws.UpdatedAt = now
	if _, err := m.workspaces.InsertOne(ctx, ws); err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (m *Mongo) WorkspaceByLink(ctx context.Context, link string) (*models.Workspace, error) {
	var ws models.Workspace
	if err := m.workspaces.FindOne(ctx, bson.M{"link": link}).Decode(&ws); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ws, nil
}

func (m *Mongo) WorkspaceByID(ctx context.Context, id primitive.ObjectID) (*models.Workspace, error) {
	var ws models.Workspace
	if err := m.workspaces.FindOne(ctx, bson.M{"_id": id}).Decode(&ws); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ws, nil
}

func (m *Mongo) WorkspacesByMember(ctx context.Context, email string) ([]*models.Workspace, error) {
	cur, err := m.workspaces.Find(ctx, bson.M{"users.email": email})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Workspace
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mongo) UpdateWorkspaceCode(ctx context.Context, id primitive.ObjectID, code string) error {
	return m.updateWorkspace(ctx, id, bson.M{"$set": bson.M{"code": code, "updatedAt": time.Now()}})
}

func (m *Mongo) AppendMessage(ctx context.Context, id primitive.ObjectID, msg models.ChatMessage) error {
	return m.updateWorkspace(ctx, id, bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
}

func (m *Mongo) SetMemberActive(ctx context.Context, id primitive.ObjectID, email string, active bool, at time.Time) error {
	res, err := m.workspaces.UpdateOne(ctx,
		bson.M{"_id": id, "users.email": email},
		bson.M{"$set": bson.M{"users.$.isActive": active, "users.$.lastActive": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) UpdateMemberRole(ctx context.Context, id primitive.ObjectID, email string, role models.Role) error {
	res, err := m.workspaces.UpdateOne(ctx,
		bson.M{"_id": id, "users.email": email},
		bson.M{"$set": bson.M{"users.$.role": role, "updatedAt": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) RemoveMember(ctx context.Context, id primitive.ObjectID, email string) error {
	return m.updateWorkspace(ctx, id, bson.M{
		"$pull": bson.M{"users": bson.M{"email": email}},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
}

func (m *Mongo) DeleteWorkspace(ctx context.Context, id primitive.ObjectID) error {
	if _, err := m.files.DeleteMany(ctx, bson.M{"room": id}); err != nil {
		return fmt.Errorf("delete workspace files: %w", err)
	}
	if _, err := m.folders.DeleteMany(ctx, bson.M{"room": id}); err != nil {
		return fmt.Errorf("delete workspace folders: %w", err)
	}
	res, err := m.workspaces.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) CreateFile(ctx context.Context, f *models.File) error {
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now
	_, err := m.files.InsertOne(ctx, f)
	return err
}

func (m *Mongo) CreateFolder(ctx context.Context, f *models.Folder) error {
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now
	_, err := m.folders.InsertOne(ctx, f)
	return err
}

func (m *Mongo) FileByID(ctx context.Context, id primitive.ObjectID) (*models.File, error) {
	var f models.File
	if err := m.files.FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (m *Mongo) FolderByID(ctx context.Context, id primitive.ObjectID) (*models.Folder, error) {
	var f models.Folder
	if err := m.folders.FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (m *Mongo) UpdateFileContent(ctx context.Context, id primitive.ObjectID, content string) error {
	res, err := m.files.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"content": content, "updatedAt": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteFile(ctx context.Context, id primitive.ObjectID) error {
	res, err := m.files.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteFolder(ctx context.Context, id primitive.ObjectID) error {
	if _, err := m.FolderByID(ctx, id); err != nil {
		return err
	}
	return m.deleteFolderTree(ctx, id)
}

// deleteFolderTree removes descendants before the folder itself so the
// stored forest never contains an edge to a deleted parent.
func (m *Mongo) deleteFolderTree(ctx context.Context, id primitive.ObjectID) error {
	cur, err := m.folders.Find(ctx, bson.M{"parent": id})
	if err != nil {
		return err
	}
	var subs []*models.Folder
	if err := cur.All(ctx, &subs); err != nil {
		return err
	}
	for _, sub := range subs {
		if err := m.deleteFolderTree(ctx, sub.ID); err != nil {
			return err
		}
	}
	if _, err := m.files.DeleteMany(ctx, bson.M{"parent": id}); err != nil {
		return err
	}
	_, err = m.folders.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (m *Mongo) ListFiles(ctx context.Context, workspace primitive.ObjectID) ([]*models.File, error) {
	cur, err := m.files.Find(ctx, bson.M{"room": workspace})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.File
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mongo) ListFolders(ctx context.Context, workspace primitive.ObjectID) ([]*models.Folder, error) {
	cur, err := m.folders.Find(ctx, bson.M{"room": workspace})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Folder
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mongo) CountFiles(ctx context.Context, workspace primitive.ObjectID) (int64, error) {
	return m.files.CountDocuments(ctx, bson.M{"room": workspace})
}

func (m *Mongo) CountFolders(ctx context.Context, workspace primitive.ObjectID) (int64, error) {
	return m.folders.CountDocuments(ctx, bson.M{"room": workspace})
}

func (m *Mongo) updateWorkspace(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	res, err := m.workspaces.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
