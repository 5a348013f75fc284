package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/anirudh-why/codeHub/internal/metrics"
	"github.com/anirudh-why/codeHub/internal/models"
	"github.com/anirudh-why/codeHub/internal/roles"
	"github.com/anirudh-why/codeHub/internal/session"
	"github.com/anirudh-why/codeHub/internal/store"
	"github.com/anirudh-why/codeHub/internal/utils"
)

const persistTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// CollabWS upgrades the connection and runs its event loop. A connection
// starts unjoined; every event other than joinRoom is silently dropped until
// a join succeeds.
func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	if utils.AuthEnabled() {
		if _, err := utils.ValidateWorkspaceToken(r.URL.Query().Get("token")); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	connID := uuid.New().String()
	client := session.NewClient(conn)
	metrics.ConnOpened()
	defer metrics.ConnClosed()
	defer h.dropConnection(connID, client)

	for {
		var frame models.WSFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		h.handleFrame(connID, client, frame)
	}
}

// handleFrame dispatches one inbound event against the sender's session
// state and role. It never panics the loop on a bad payload: malformed
// events are logged and dropped.
func (h *Handlers) handleFrame(connID string, client *session.Client, frame models.WSFrame) {
	metrics.EventReceived(frame.Type)

	if frame.Type == models.EvtJoinRoom {
		var ev models.JoinRoomEvent
		if err := decode(frame.Data, &ev); err != nil || ev.RoomID == "" || ev.Email == "" {
			h.log.Warn("malformed joinRoom event", zap.Error(err))
			return
		}
		h.handleJoin(connID, client, ev)
		return
	}

	sess, ok := h.registry.Get(connID)
	if !ok {
		// Unjoined state: nothing to validate against, drop.
		return
	}

	switch frame.Type {
	case models.EvtCodeChange:
		var ev models.CodeChangeEvent
		if err := decode(frame.Data, &ev); err != nil || (ev.RoomID != "" && ev.RoomID != sess.Link) {
			h.log.Warn("malformed codeChange event", zap.Error(err))
			return
		}
		h.handleCodeChange(sess, client, ev)

	case models.EvtChatMessage:
		var ev models.ChatMessageEvent
		if err := decode(frame.Data, &ev); err != nil || (ev.RoomID != "" && ev.RoomID != sess.Link) {
			h.log.Warn("malformed chatMessage event", zap.Error(err))
			return
		}
		h.handleChatMessage(sess, ev)

	case models.EvtFileUpdate:
		var ev models.FileUpdateEvent
		if err := decode(frame.Data, &ev); err != nil || (ev.RoomID != "" && ev.RoomID != sess.Link) {
			h.log.Warn("malformed fileUpdate event", zap.Error(err))
			return
		}
		h.handleFileUpdate(sess, client, ev)

	case models.EvtFileStructureChange:
		h.handleFileStructureRefresh(sess, client)

	case models.EvtCursorPosition:
		var ev models.CursorPositionEvent
		if err := decode(frame.Data, &ev); err != nil {
			return
		}
		h.broadcastOthers(sess.Link, client, models.WSFrame{
			Type: models.EvtRemoteCursor,
			Data: models.RemoteCursor{Email: sess.Email, Line: ev.Line, Column: ev.Column},
		})

	case models.EvtTyping:
		h.broadcastOthers(sess.Link, client, models.WSFrame{
			Type: models.EvtUserTyping,
			Data: models.TypingNotice{Email: sess.Email, DisplayName: sess.DisplayName},
		})

	case models.EvtStoppedTyping:
		h.broadcastOthers(sess.Link, client, models.WSFrame{
			Type: models.EvtUserStoppedTyping,
			Data: models.TypingNotice{Email: sess.Email, DisplayName: sess.DisplayName},
		})

	case models.EvtChangeUserRole:
		var ev models.ChangeUserRoleEvent
		if err := decode(frame.Data, &ev); err != nil || ev.TargetEmail == "" {
			client.Send(errFrame("malformed changeUserRole event"))
			return
		}
		h.handleChangeUserRole(sess, client, ev)

	case models.EvtLeaveRoom:
		h.handleLeaveRoom(connID, sess, client)

	default:
		h.log.Warn("unknown event type", zap.String("type", frame.Type))
	}
}

func (h *Handlers) handleJoin(connID string, client *session.Client, ev models.JoinRoomEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	ws, err := h.store.WorkspaceByLink(ctx, ev.RoomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			client.Send(errFrame("workspace not found"))
		} else {
			h.log.Error("load workspace on join", zap.Error(err))
			client.Send(errFrame("workspace unavailable"))
		}
		return
	}
	role, err := h.resolver.Resolve(ws, ev.Email)
	if err != nil {
		client.Send(errFrame("not a member of this workspace"))
		return
	}

	displayName := ev.DisplayName
	if m, ok := ws.MemberByEmail(ev.Email); ok && displayName == "" {
		displayName = m.DisplayName
	}

	prev, replaced := h.registry.Join(session.Session{
		ConnID:      connID,
		Client:      client,
		Link:        ws.Link,
		WorkspaceID: ws.ID,
		Email:       ev.Email,
		DisplayName: displayName,
		PhotoURL:    ev.PhotoURL,
		Role:        role,
	})
	// Joining a new workspace implicitly leaves the old one.
	if replaced && prev.Link != ws.Link {
		h.detachFromRoom(prev, client, true)
	}

	room := h.hub.GetOrCreate(ws.Link)
	room.Join(client)

	tree, err := store.FileTree(ctx, h.store, ws.ID)
	if err != nil {
		h.log.Error("load file tree on join", zap.String("workspace", ws.Link), zap.Error(err))
	}
	client.Send(models.WSFrame{Type: models.EvtRoomData, Data: models.RoomData{Workspace: ws, Files: tree}})

	h.broadcastPresence(room, ws.Link)
	room.Broadcast(client, models.WSFrame{Type: models.EvtMessage, Data: models.ChatMessage{
		Username:  "System",
		Message:   displayName + " has joined the room",
		Timestamp: time.Now(),
	}})

	go h.persistMemberActive(ws.ID, ev.Email, true)

	h.log.Info("joined workspace",
		zap.String("workspace", ws.Link),
		zap.String("email", ev.Email),
		zap.String("role", string(role)),
	)
}

func (h *Handlers) handleCodeChange(sess session.Session, client *session.Client, ev models.CodeChangeEvent) {
	if !sess.Role.AtLeast(models.RoleEditor) {
		// Viewers cannot edit; low-stakes, drop without a reply.
		return
	}
	h.broadcastOthers(sess.Link, client, models.WSFrame{Type: models.EvtCodeUpdate, Data: ev.Code})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := h.store.UpdateWorkspaceCode(ctx, sess.WorkspaceID, ev.Code); err != nil {
			metrics.PersistFailed("codeChange")
			h.log.Warn("persist code change", zap.String("workspace", sess.Link), zap.Error(err))
		}
	}()
}

func (h *Handlers) handleChatMessage(sess session.Session, ev models.ChatMessageEvent) {
	msg := models.ChatMessage{
		Username:  sess.DisplayName,
		Message:   ev.Message,
		Timestamp: time.Now(),
	}
	h.broadcastAll(sess.Link, models.WSFrame{Type: models.EvtMessage, Data: msg})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := h.store.AppendMessage(ctx, sess.WorkspaceID, msg); err != nil {
			metrics.PersistFailed("chatMessage")
			h.log.Warn("persist chat message", zap.String("workspace", sess.Link), zap.Error(err))
		}
	}()
}

func (h *Handlers) handleFileUpdate(sess session.Session, client *session.Client, ev models.FileUpdateEvent) {
	if !sess.Role.AtLeast(models.RoleEditor) {
		return
	}
	fileID, err := primitive.ObjectIDFromHex(ev.FileID)
	if err != nil {
		h.log.Warn("fileUpdate with bad file id", zap.String("fileId", ev.FileID))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	file, err := h.store.FileByID(ctx, fileID)
	if err != nil {
		h.log.Warn("fileUpdate for unknown file", zap.String("fileId", ev.FileID), zap.Error(err))
		return
	}
	// The role gate above is scoped to the sender's workspace; a file owned
	// elsewhere is out of reach regardless of role.
	if file.Workspace != sess.WorkspaceID {
		h.log.Warn("fileUpdate for file outside workspace",
			zap.String("workspace", sess.Link),
			zap.String("fileId", ev.FileID),
		)
		return
	}
	h.broadcastOthers(sess.Link, client, models.WSFrame{
		Type: models.EvtFileContentUpdate,
		Data: models.FileContentUpdate{FileID: ev.FileID, Content: ev.Content},
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := h.store.UpdateFileContent(ctx, fileID, ev.Content); err != nil {
			metrics.PersistFailed("fileUpdate")
			h.log.Warn("persist file update", zap.String("fileId", ev.FileID), zap.Error(err))
		}
	}()
}

// handleFileStructureRefresh rebroadcasts the current tree to the whole
// room. Any joined role may trigger it; mutations happen over the REST
// surface, which enforces the editor role.
func (h *Handlers) handleFileStructureRefresh(sess session.Session, client *session.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	tree, err := store.FileTree(ctx, h.store, sess.WorkspaceID)
	if err != nil {
		h.log.Error("load file tree", zap.String("workspace", sess.Link), zap.Error(err))
		client.Send(errFrame("file tree unavailable"))
		return
	}
	h.broadcastAll(sess.Link, models.WSFrame{Type: models.EvtFileStructureUpdate, Data: tree})
}

func (h *Handlers) handleChangeUserRole(sess session.Session, client *session.Client, ev models.ChangeUserRoleEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	ws, err := h.store.WorkspaceByLink(ctx, sess.Link)
	if err != nil {
		client.Send(errFrame("workspace unavailable"))
		return
	}
	if err := h.resolver.Change(ctx, sess.Role, ws, ev.TargetEmail, ev.NewRole); err != nil {
		switch {
		case errors.Is(err, roles.ErrForbidden):
			client.Send(errFrame("only an admin can change roles"))
		case errors.Is(err, roles.ErrNotAMember):
			client.Send(errFrame("target is not a member"))
		case errors.Is(err, roles.ErrBadRole):
			client.Send(errFrame("invalid role"))
		default:
			metrics.PersistFailed("changeUserRole")
			h.log.Error("persist role change", zap.Error(err))
			client.Send(errFrame("role change failed"))
		}
		return
	}

	// Confirmed state change: everyone gets a fresh snapshot.
	ws, err = h.store.WorkspaceByLink(ctx, sess.Link)
	if err != nil {
		h.log.Error("reload workspace after role change", zap.Error(err))
		return
	}
	tree, err := store.FileTree(ctx, h.store, ws.ID)
	if err != nil {
		h.log.Error("load file tree after role change", zap.Error(err))
	}
	h.broadcastAll(sess.Link, models.WSFrame{Type: models.EvtRoomData, Data: models.RoomData{Workspace: ws, Files: tree}})
}

// handleLeaveRoom runs the explicit leave protocol: membership removal with
// sole-admin promotion, or full workspace deletion when the last member
// departs. Store writes happen first; on failure the session stays intact
// and the error is surfaced.
func (h *Handlers) handleLeaveRoom(connID string, sess session.Session, client *session.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	ws, err := h.store.WorkspaceByLink(ctx, sess.Link)
	if err != nil {
		client.Send(errFrame("workspace unavailable"))
		return
	}
	deleted, err := h.removeMembership(ctx, ws, sess.Email)
	if err != nil {
		metrics.PersistFailed("leaveRoom")
		h.log.Error("leave workspace", zap.String("workspace", sess.Link), zap.Error(err))
		client.Send(errFrame("leave failed"))
		return
	}

	h.registry.Leave(connID)

	if deleted {
		// Every tab bound to the dead workspace loses its session, not just
		// the leaving connection.
		h.registry.DropWorkspace(sess.Link)
		if room, ok := h.hub.Get(sess.Link); ok {
			room.BroadcastAll(models.WSFrame{Type: models.EvtError, Data: "workspace deleted"})
			h.hub.Delete(sess.Link)
		}
		if h.bridge != nil {
			if err := h.bridge.PublishWorkspaceDeleted(ctx, sess.Link); err != nil {
				h.log.Warn("publish workspace deleted", zap.Error(err))
			}
		}
		h.log.Info("workspace deleted on last leave", zap.String("workspace", sess.Link))
		return
	}

	h.detachFromRoom(sess, client, true)
}

// removeMembership drops email from ws.Users, keeping the at-least-one-admin
// invariant: the sole admin leaving promotes the earliest remaining member,
// and the last member leaving deletes the workspace with its whole tree.
// Reports whether the workspace was deleted.
func (h *Handlers) removeMembership(ctx context.Context, ws *models.Workspace, email string) (bool, error) {
	leaver, ok := ws.MemberByEmail(email)
	if !ok {
		return false, roles.ErrNotAMember
	}

	if leaver.Role == models.RoleAdmin {
		otherAdmins := 0
		for _, m := range ws.Users {
			if m.Email != email && m.Role == models.RoleAdmin {
				otherAdmins++
			}
		}
		if otherAdmins == 0 {
			if len(ws.Users) == 1 {
				return true, h.store.DeleteWorkspace(ctx, ws.ID)
			}
			for _, m := range ws.Users {
				if m.Email == email {
					continue
				}
				if err := h.store.UpdateMemberRole(ctx, ws.ID, m.Email, models.RoleAdmin); err != nil {
					return false, err
				}
				h.registry.UpdateCachedRole(m.Email, ws.Link, models.RoleAdmin)
				break
			}
		}
	} else if len(ws.Users) == 1 {
		// Degenerate membership list with no admin at all; documented
		// invariants make this unreachable, but a lone leaver still
		// tears the workspace down.
		return true, h.store.DeleteWorkspace(ctx, ws.ID)
	}

	return false, h.store.RemoveMember(ctx, ws.ID, email)
}

// dropConnection is the disconnect transition: destroy the session,
// recompute presence, notify the room. Safe to call for never-joined
// connections.
func (h *Handlers) dropConnection(connID string, client *session.Client) {
	sess, ok := h.registry.Leave(connID)
	if !ok {
		return
	}
	h.detachFromRoom(sess, client, true)
	go h.persistMemberActive(sess.WorkspaceID, sess.Email, false)
}

// detachFromRoom removes the client from its broadcast room and, when
// notify is set, tells the remaining participants.
func (h *Handlers) detachFromRoom(sess session.Session, client *session.Client, notify bool) {
	room, ok := h.hub.Get(sess.Link)
	if !ok {
		return
	}
	left := room.Leave(client)
	if left == 0 {
		h.hub.Delete(sess.Link)
		return
	}
	if !notify {
		return
	}
	h.broadcastPresence(room, sess.Link)
	room.Broadcast(client, models.WSFrame{Type: models.EvtMessage, Data: models.ChatMessage{
		Username:  "System",
		Message:   sess.DisplayName + " has left the room",
		Timestamp: time.Now(),
	}})
}

func (h *Handlers) broadcastPresence(room *session.Room, link string) {
	metrics.BroadcastSent(models.EvtActiveUsers)
	room.BroadcastAll(models.WSFrame{Type: models.EvtActiveUsers, Data: h.registry.ListActive(link)})
}

func (h *Handlers) broadcastOthers(link string, sender *session.Client, frame models.WSFrame) {
	if room, ok := h.hub.Get(link); ok {
		metrics.BroadcastSent(frame.Type)
		room.Broadcast(sender, frame)
	}
}

func (h *Handlers) broadcastAll(link string, frame models.WSFrame) {
	if room, ok := h.hub.Get(link); ok {
		metrics.BroadcastSent(frame.Type)
		room.BroadcastAll(frame)
	}
}

func (h *Handlers) persistMemberActive(wsID primitive.ObjectID, email string, active bool) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := h.store.SetMemberActive(ctx, wsID, email, active, time.Now()); err != nil {
		metrics.PersistFailed("memberActive")
		h.log.Warn("persist member activity", zap.String("email", email), zap.Error(err))
	}
}

func decode(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func errFrame(msg string) models.WSFrame { return models.WSFrame{Type: models.EvtError, Data: msg} }
