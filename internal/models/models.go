package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is a workspace membership authorization level.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{RoleViewer: 0, RoleEditor: 1, RoleAdmin: 2}

// AtLeast reports whether r grants everything min grants.
// Unknown roles rank below viewer.
func (r Role) AtLeast(min Role) bool { return roleRank[r] >= roleRank[min] }

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool { _, ok := roleRank[r]; return ok }

// Member is one membership entry in a workspace, unique by Email.
type Member struct {
	Email       string    `bson:"email" json:"email"`
	DisplayName string    `bson:"displayName" json:"displayName"`
	PhotoURL    string    `bson:"photoURL,omitempty" json:"photoURL,omitempty"`
	Role        Role      `bson:"role" json:"role"`
	IsActive    bool      `bson:"isActive" json:"isActive"`
	LastActive  time.Time `bson:"lastActive" json:"lastActive"`
}

type ChatMessage struct {
	Username  string    `bson:"username" json:"username"`
	Message   string    `bson:"message" json:"message"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Workspace is the persisted room document. Link is the opaque shareable
// token clients join with; it never changes after creation.
type Workspace struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name      string             `bson:"name" json:"name"`
	Language  string             `bson:"language" json:"language"`
	Code      string             `bson:"code" json:"code"`
	CreatedBy string             `bson:"createdBy" json:"createdBy"`
	Link      string             `bson:"link" json:"link"`
	Users     []Member           `bson:"users" json:"users"`
	Messages  []ChatMessage      `bson:"messages" json:"messages"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// MemberByEmail returns the membership entry for email, if any.
func (w *Workspace) MemberByEmail(email string) (Member, bool) {
	for _, m := range w.Users {
		if m.Email == email {
			return m, true
		}
	}
	return Member{}, false
}

// File is a leaf tree node with content. Parent is nil for root-level files.
type File struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"_id"`
	Name      string              `bson:"name" json:"name"`
	Content   string              `bson:"content" json:"content"`
	Language  string              `bson:"language" json:"language"`
	Parent    *primitive.ObjectID `bson:"parent" json:"parent"`
	Workspace primitive.ObjectID  `bson:"room" json:"room"`
	CreatedBy string              `bson:"createdBy" json:"createdBy"`
	CreatedAt time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Folder is an interior tree node. Parent is nil for root-level folders.
// Parents are only ever set at creation time, so the structure stays a forest.
type Folder struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"_id"`
	Name      string              `bson:"name" json:"name"`
	Parent    *primitive.ObjectID `bson:"parent" json:"parent"`
	Workspace primitive.ObjectID  `bson:"room" json:"room"`
	CreatedBy string              `bson:"createdBy" json:"createdBy"`
	CreatedAt time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// TreeNode is one entry of the nested file tree sent to clients.
type TreeNode struct {
	ID       primitive.ObjectID `json:"_id"`
	Name     string             `json:"name"`
	Type     string             `json:"type"` // "file" or "folder"
	Language string             `json:"language,omitempty"`
	Children []*TreeNode        `json:"children,omitempty"`
}

/*** Real-time wire protocol ***/

// WSFrame is the tagged union every websocket message uses, in both
// directions. Data is decoded per Type by the event router.
type WSFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Inbound event types.
const (
	EvtJoinRoom            = "joinRoom"
	EvtCodeChange          = "codeChange"
	EvtChatMessage         = "chatMessage"
	EvtFileUpdate          = "fileUpdate"
	EvtFileStructureChange = "fileStructureChange"
	EvtCursorPosition      = "cursorPosition"
	EvtChangeUserRole      = "changeUserRole"
	EvtTyping              = "typing"
	EvtStoppedTyping       = "stoppedTyping"
	EvtLeaveRoom           = "leaveRoom"
)

// Outbound event types.
const (
	EvtRoomData            = "roomData"
	EvtActiveUsers         = "activeUsers"
	EvtCodeUpdate          = "codeUpdate"
	EvtMessage             = "message"
	EvtFileContentUpdate   = "fileContentUpdate"
	EvtFileStructureUpdate = "fileStructureUpdate"
	EvtRemoteCursor        = "remoteCursor"
	EvtUserTyping          = "userTyping"
	EvtUserStoppedTyping   = "userStoppedTyping"
	EvtError               = "error"
)

type JoinRoomEvent struct {
	RoomID      string `json:"roomId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

type CodeChangeEvent struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

type ChatMessageEvent struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type FileUpdateEvent struct {
	RoomID  string `json:"roomId"`
	FileID  string `json:"fileId"`
	Content string `json:"content"`
}

type FileStructureChangeEvent struct {
	RoomID string `json:"roomId"`
}

type CursorPositionEvent struct {
	RoomID string `json:"roomId"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type ChangeUserRoleEvent struct {
	RoomID      string `json:"roomId"`
	TargetEmail string `json:"targetEmail"`
	NewRole     Role   `json:"newRole"`
}

type LeaveRoomEvent struct {
	RoomID string `json:"roomId"`
}

// RoomData is the full snapshot sent to a connection right after it joins.
type RoomData struct {
	Workspace *Workspace  `json:"workspace"`
	Files     []*TreeNode `json:"files"`
}

// ActiveUser is one entry of the presence list broadcast on join/leave.
type ActiveUser struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Role        Role   `json:"role"`
}

type FileContentUpdate struct {
	FileID  string `json:"fileId"`
	Content string `json:"content"`
}

type RemoteCursor struct {
	Email  string `json:"email"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type TypingNotice struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}
