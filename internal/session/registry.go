package session

import (
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anirudh-why/codeHub/internal/models"
)

// Session is a live connection's binding to a workspace: identity plus a
// cached role snapshot. The registry owns it exclusively; everything else
// sees copies.
type Session struct {
	ConnID      string
	Client      *Client
	Link        string
	WorkspaceID primitive.ObjectID
	Email       string
	DisplayName string
	PhotoURL    string
	Role        models.Role
	JoinedAt    time.Time

	seq uint64
}

// Registry is the process-wide table of live sessions, keyed by connection
// ID. A connection is active in at most one workspace at a time.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	nextSeq  uint64
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Join binds connID to the given session, replacing any prior binding for
// the same connection. The previous session, if any, is returned so the
// caller can clean up its room membership.
func (r *Registry) Join(s Session) (prev Session, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[s.ConnID]; ok {
		prev, replaced = *old, true
	}
	s.JoinedAt = time.Now()
	r.nextSeq++
	s.seq = r.nextSeq
	r.sessions[s.ConnID] = &s
	return prev, replaced
}

// Leave removes connID's session if present. Idempotent: a second call for
// the same connection is a no-op.
func (r *Registry) Leave(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, connID)
	return *s, true
}

// DropWorkspace removes every session bound to the workspace, whichever
// connection holds it. Used when the workspace itself is deleted, so no tab
// keeps a session pointing at a document that no longer exists. Returns the
// number of sessions removed.
func (r *Registry) DropWorkspace(link string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.Link == link {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

func (r *Registry) Get(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// UpdateCachedRole refreshes the cached role of every live session bound to
// the given participant/workspace pair. A participant with several tabs has
// several sessions; all of them are updated. Returns the number touched.
func (r *Registry) UpdateCachedRole(email, link string, role models.Role) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.Email == email && s.Link == link {
			s.Role = role
			n++
		}
	}
	return n
}

// ListActive is the presence projection: participants with a live session in
// the workspace, ordered by first join, one entry per identity. It is
// computed from the session table on every call, so it is always in sync
// with the latest Join/Leave.
func (r *Registry) ListActive(link string) []models.ActiveUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var live []*Session
	for _, s := range r.sessions {
		if s.Link == link {
			live = append(live, s)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].seq < live[j].seq })

	seen := make(map[string]bool, len(live))
	out := make([]models.ActiveUser, 0, len(live))
	for _, s := range live {
		if seen[s.Email] {
			continue
		}
		seen[s.Email] = true
		out = append(out, models.ActiveUser{
			Email:       s.Email,
			DisplayName: s.DisplayName,
			PhotoURL:    s.PhotoURL,
			Role:        s.Role,
		})
	}
	return out
}

// CountActive returns the number of live sessions in the workspace.
func (r *Registry) CountActive(link string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.Link == link {
			n++
		}
	}
	return n
}
