package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/anirudh-why/codeHub/internal/events"
	"github.com/anirudh-why/codeHub/internal/models"
	"github.com/anirudh-why/codeHub/internal/roles"
	"github.com/anirudh-why/codeHub/internal/session"
	"github.com/anirudh-why/codeHub/internal/store"
	"github.com/anirudh-why/codeHub/internal/utils"
)

type Handlers struct {
	log      *zap.Logger
	store    store.Store
	hub      *session.Hub
	registry *session.Registry
	resolver *roles.Resolver
	bridge   *events.Bridge // nil when running single-instance
}

func NewHandlers(log *zap.Logger, st store.Store, reg *session.Registry, hub *session.Hub, resolver *roles.Resolver, bridge *events.Bridge) *Handlers {
	return &Handlers{
		log:      log,
		store:    st,
		hub:      hub,
		registry: reg,
		resolver: resolver,
		bridge:   bridge,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

/*** Workspaces ***/

type createWorkspaceRequest struct {
	Name      string `json:"name"`
	Language  string `json:"language"`
	UserEmail string `json:"userEmail"`
	UserName  string `json:"userName"`
	UserPhoto string `json:"userPhoto"`
}

func (h *Handlers) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.UserEmail == "" {
		utils.JSONError(w, http.StatusBadRequest, "name and user email are required")
		return
	}
	if req.Language == "" {
		req.Language = "javascript"
	}
	displayName := req.UserName
	if displayName == "" {
		displayName = req.UserEmail
	}

	ws := &models.Workspace{
		Name:      req.Name,
		Language:  req.Language,
		Code:      "// Write your code here",
		CreatedBy: req.UserEmail,
		Link:      uuid.New().String(),
		Users: []models.Member{{
			Email:       req.UserEmail,
			DisplayName: displayName,
			PhotoURL:    req.UserPhoto,
			Role:        models.RoleAdmin,
			LastActive:  time.Now(),
		}},
	}
	if err := h.store.CreateWorkspace(r.Context(), ws); err != nil {
		h.log.Error("create workspace", zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "error creating workspace")
		return
	}

	file := &models.File{
		Name:      defaultFileName(req.Language),
		Content:   "// Welcome to your new workspace",
		Language:  req.Language,
		Workspace: ws.ID,
		CreatedBy: req.UserEmail,
	}
	if err := h.store.CreateFile(r.Context(), file); err != nil {
		h.log.Warn("seed default file", zap.String("workspace", ws.Link), zap.Error(err))
	}

	utils.JSON(w, http.StatusCreated, map[string]any{
		"message":   "Workspace created successfully",
		"workspace": ws,
	})
}

func (h *Handlers) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspaceFromPath(w, r)
	if !ok {
		return
	}
	utils.JSON(w, http.StatusOK, ws)
}

type dashboardEntry struct {
	ID          primitive.ObjectID `json:"_id"`
	Name        string             `json:"name"`
	Language    string             `json:"language"`
	Link        string             `json:"link"`
	FileCount   int64              `json:"fileCount"`
	FolderCount int64              `json:"folderCount"`
	UserCount   int                `json:"userCount"`
	Role        models.Role        `json:"role"`
	CreatedBy   string             `json:"createdBy"`
	CreatedAt   time.Time          `json:"createdAt"`
	LastActive  time.Time          `json:"lastActive"`
}

// Dashboard lists every workspace the member belongs to, most recently
// active first.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	workspaces, err := h.store.WorkspacesByMember(r.Context(), email)
	if err != nil {
		h.log.Error("load dashboard", zap.String("email", email), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "server error")
		return
	}

	entries := make([]dashboardEntry, 0, len(workspaces))
	for _, ws := range workspaces {
		files, _ := h.store.CountFiles(r.Context(), ws.ID)
		folders, _ := h.store.CountFolders(r.Context(), ws.ID)

		lastActive := ws.UpdatedAt
		if n := len(ws.Messages); n > 0 && ws.Messages[n-1].Timestamp.After(lastActive) {
			lastActive = ws.Messages[n-1].Timestamp
		}
		role := models.RoleViewer
		if m, ok := ws.MemberByEmail(email); ok && m.Role != "" {
			role = m.Role
		}
		entries = append(entries, dashboardEntry{
			ID:          ws.ID,
			Name:        ws.Name,
			Language:    ws.Language,
			Link:        ws.Link,
			FileCount:   files,
			FolderCount: folders,
			UserCount:   len(ws.Users),
			Role:        role,
			CreatedBy:   ws.CreatedBy,
			CreatedAt:   ws.CreatedAt,
			LastActive:  lastActive,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].LastActive.After(entries[j].LastActive) })
	utils.JSON(w, http.StatusOK, entries)
}

type leaveWorkspaceRequest struct {
	UserEmail string `json:"userEmail"`
}

// LeaveWorkspace is the REST twin of the leaveRoom event, for members who
// are not currently connected.
func (h *Handlers) LeaveWorkspace(w http.ResponseWriter, r *http.Request) {
	var req leaveWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserEmail == "" {
		utils.JSONError(w, http.StatusBadRequest, "user email is required")
		return
	}
	ws, ok := h.workspaceFromPath(w, r)
	if !ok {
		return
	}
	deleted, err := h.removeMembership(r.Context(), ws, req.UserEmail)
	if err != nil {
		if errors.Is(err, roles.ErrNotAMember) {
			utils.JSONError(w, http.StatusNotFound, "user not found in workspace")
			return
		}
		h.log.Error("leave workspace", zap.String("workspace", ws.Link), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "server error")
		return
	}
	if deleted {
		h.notifyWorkspaceDeleted(r, ws.Link)
		utils.JSON(w, http.StatusOK, map[string]string{"message": "Workspace deleted as you were the last user"})
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "Left workspace successfully"})
}

// DeleteWorkspace tears a workspace down entirely. Admin only.
func (h *Handlers) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	var req leaveWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserEmail == "" {
		utils.JSONError(w, http.StatusBadRequest, "user email is required")
		return
	}
	ws, ok := h.workspaceFromPath(w, r)
	if !ok {
		return
	}
	role, err := h.resolver.Resolve(ws, req.UserEmail)
	if err != nil || role != models.RoleAdmin {
		utils.JSONError(w, http.StatusForbidden, "only an admin can delete a workspace")
		return
	}
	if err := h.store.DeleteWorkspace(r.Context(), ws.ID); err != nil {
		h.log.Error("delete workspace", zap.String("workspace", ws.Link), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "server error")
		return
	}
	h.notifyWorkspaceDeleted(r, ws.Link)
	utils.JSON(w, http.StatusOK, map[string]string{"message": "Workspace deleted successfully"})
}

/*** Files and folders ***/

func (h *Handlers) GetFileTree(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspaceFromPath(w, r)
	if !ok {
		return
	}
	tree, err := store.FileTree(r.Context(), h.store, ws.ID)
	if err != nil {
		h.log.Error("load file tree", zap.String("workspace", ws.Link), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "server error")
		return
	}
	utils.JSON(w, http.StatusOK, tree)
}

type createNodeRequest struct {
	Name      string `json:"name"`
	Parent    string `json:"parent,omitempty"`
	Content   string `json:"content,omitempty"`
	Language  string `json:"language,omitempty"`
	CreatedBy string `json:"createdBy"`
}

func (h *Handlers) CreateFile(w http.ResponseWriter, r *http.Request) {
	ws, req, ok := h.mutationRequest(w, r)
	if !ok {
		return
	}
	parent, ok := h.parseParent(w, req.Parent)
	if !ok {
		return
	}
	if req.Language == "" {
		req.Language = "javascript"
	}
	file := &models.File{
		Name:      req.Name,
		Content:   req.Content,
		Language:  req.Language,
		Parent:    parent,
		Workspace: ws.ID,
		CreatedBy: req.CreatedBy,
	}
	if err := h.store.CreateFile(r.Context(), file); err != nil {
		h.log.Error("create file", zap.String("workspace", ws.Link), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "server error")
		return
	}
	h.broadcastTree(r, ws.Link, ws.ID)
	utils.JSON(w, http.StatusCreated, file)
}

func (h *Handlers) CreateFolder(w http.ResponseWriter, r *http.Request) {
	ws, req, ok := h.mutationRequest(w, r)
	if !ok {
		return
	}
	parent, ok := h.parseParent(w, req.Parent)
	if !ok {
		return
	}
	folder := &models.Folder{
		Name:      req.Name,
		Parent:    parent,
		Workspace: ws.ID,
		CreatedBy: req.CreatedBy,
	}
	if err := h.store.CreateFolder(r.Context(), folder); err != nil {
		h.log.Error("create folder", zap.String("workspace", ws.Link), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "server error")
		return
	}
	h.broadcastTree(r, ws.Link, ws.ID)
	utils.JSON(w, http.StatusCreated, folder)
}

func (h *Handlers) GetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, chi.URLParam(r, "fileId"))
	if !ok {
		return
	}
	file, err := h.store.FileByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "file not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, "server error")
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"content": file.Content, "language": file.Language})
}

type updateFileRequest struct {
	Content   string `json:"content"`
	UserEmail string `json:"userEmail"`
}

func (h *Handlers) UpdateFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, chi.URLParam(r, "fileId"))
	if !ok {
		return
	}
	var req updateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	file, err := h.store.FileByID(r.Context(), id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "file not found")
		return
	}
	if !h.requireEditorByID(w, r, file.Workspace, req.UserEmail) {
		return
	}
	if err := h.store.UpdateFileContent(r.Context(), id, req.Content); err != nil {
		h.log.Error("update file", zap.String("fileId", id.Hex()), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "server error")
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "File updated"})
}

func (h *Handlers) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, chi.URLParam(r, "fileId"))
	if !ok {
		return
	}
	file, err := h.store.FileByID(r.Context(), id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "file not found")
		return
	}
	if !h.requireEditorByID(w, r, file.Workspace, r.Header.Get("X-User-Email")) {
		return
	}
	if err := h.store.DeleteFile(r.Context(), id); err != nil {
		h.log.Error("delete file", zap.String("fileId", id.Hex()), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "server error")
		return
	}
	h.broadcastTreeByID(r, file.Workspace)
	utils.JSON(w, http.StatusOK, map[string]string{"message": "File deleted"})
}

func (h *Handlers) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, chi.URLParam(r, "folderId"))
	if !ok {
		return
	}
	folder, err := h.store.FolderByID(r.Context(), id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "folder not found")
		return
	}
	if !h.requireEditorByID(w, r, folder.Workspace, r.Header.Get("X-User-Email")) {
		return
	}
	if err := h.store.DeleteFolder(r.Context(), id); err != nil {
		h.log.Error("delete folder", zap.String("folderId", id.Hex()), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "server error")
		return
	}
	h.broadcastTreeByID(r, folder.Workspace)
	utils.JSON(w, http.StatusOK, map[string]string{"message": "Folder and all contents deleted"})
}

/*** helpers ***/

func (h *Handlers) workspaceFromPath(w http.ResponseWriter, r *http.Request) (*models.Workspace, bool) {
	link := chi.URLParam(r, "roomId")
	ws, err := h.store.WorkspaceByLink(r.Context(), link)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "workspace not found")
		} else {
			h.log.Error("load workspace", zap.String("link", link), zap.Error(err))
			utils.JSONError(w, http.StatusInternalServerError, "server error")
		}
		return nil, false
	}
	return ws, true
}

// mutationRequest decodes a create-node body and enforces the editor role
// for the requesting member.
func (h *Handlers) mutationRequest(w http.ResponseWriter, r *http.Request) (*models.Workspace, createNodeRequest, bool) {
	var req createNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		utils.JSONError(w, http.StatusBadRequest, "name is required")
		return nil, req, false
	}
	ws, ok := h.workspaceFromPath(w, r)
	if !ok {
		return nil, req, false
	}
	role, err := h.resolver.Resolve(ws, req.CreatedBy)
	if err != nil || !role.AtLeast(models.RoleEditor) {
		utils.JSONError(w, http.StatusForbidden, "editor role required")
		return nil, req, false
	}
	return ws, req, true
}

func (h *Handlers) requireEditorByID(w http.ResponseWriter, r *http.Request, wsID primitive.ObjectID, email string) bool {
	role, err := h.roleByWorkspaceID(r, wsID, email)
	if err != nil || !role.AtLeast(models.RoleEditor) {
		utils.JSONError(w, http.StatusForbidden, "editor role required")
		return false
	}
	return true
}

func (h *Handlers) roleByWorkspaceID(r *http.Request, wsID primitive.ObjectID, email string) (models.Role, error) {
	ws, err := h.store.WorkspaceByID(r.Context(), wsID)
	if err != nil {
		return "", err
	}
	return h.resolver.Resolve(ws, email)
}

// broadcastTreeByID resolves the workspace link before pushing the tree,
// since file and folder documents reference workspaces by ObjectID.
func (h *Handlers) broadcastTreeByID(r *http.Request, wsID primitive.ObjectID) {
	ws, err := h.store.WorkspaceByID(r.Context(), wsID)
	if err != nil {
		return
	}
	h.broadcastTree(r, ws.Link, wsID)
}

func (h *Handlers) parseID(w http.ResponseWriter, raw string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid id")
		return primitive.NilObjectID, false
	}
	return id, true
}

func (h *Handlers) parseParent(w http.ResponseWriter, raw string) (*primitive.ObjectID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid parent id")
		return nil, false
	}
	return &id, true
}

// broadcastTree pushes a fresh tree to every connection in the room after a
// structural change confirmed by the store.
func (h *Handlers) broadcastTree(r *http.Request, link string, wsID primitive.ObjectID) {
	tree, err := store.FileTree(r.Context(), h.store, wsID)
	if err != nil {
		h.log.Warn("load file tree for broadcast", zap.String("workspace", link), zap.Error(err))
		return
	}
	h.broadcastAll(link, models.WSFrame{Type: models.EvtFileStructureUpdate, Data: tree})
}

func (h *Handlers) notifyWorkspaceDeleted(r *http.Request, link string) {
	h.registry.DropWorkspace(link)
	if room, ok := h.hub.Get(link); ok {
		room.BroadcastAll(models.WSFrame{Type: models.EvtError, Data: "workspace deleted"})
		h.hub.Delete(link)
	}
	if h.bridge != nil {
		if err := h.bridge.PublishWorkspaceDeleted(r.Context(), link); err != nil {
			h.log.Warn("publish workspace deleted", zap.Error(err))
		}
	}
}

func defaultFileName(language string) string {
	switch language {
	case "python":
		return "main.py"
	case "java":
		return "Main.java"
	case "cpp", "c":
		return "main.cpp"
	default:
		return "main.js"
	}
}
