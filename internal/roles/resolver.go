// Package roles resolves and changes workspace membership roles, keeping the
// session registry's cached copies in sync.
package roles

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/anirudh-why/codeHub/internal/models"
	"github.com/anirudh-why/codeHub/internal/session"
	"github.com/anirudh-why/codeHub/internal/store"
)

var (
	// ErrNotAMember means the identity is absent from the workspace's
	// membership list. Joining as an unauthenticated observer is not
	// permitted, so callers refuse admission.
	ErrNotAMember = errors.New("not a member of this workspace")
	// ErrForbidden means the requester's role does not allow the action.
	ErrForbidden = errors.New("forbidden")
	// ErrBadRole means the requested role is not admin/editor/viewer.
	ErrBadRole = errors.New(`role must be "admin"|"editor"|"viewer"`)
)

// Publisher fans a confirmed role change out to other service instances.
type Publisher interface {
	PublishRoleChanged(ctx context.Context, link, email string, role models.Role) error
}

type Resolver struct {
	store    store.Store
	registry *session.Registry
	pub      Publisher // may be nil when running single-instance
	log      *zap.Logger
}

func NewResolver(st store.Store, reg *session.Registry, pub Publisher, log *zap.Logger) *Resolver {
	return &Resolver{store: st, registry: reg, pub: pub, log: log}
}

// Resolve returns the participant's role in ws. A membership entry with a
// blank role resolves to viewer.
func (r *Resolver) Resolve(ws *models.Workspace, email string) (models.Role, error) {
	m, ok := ws.MemberByEmail(email)
	if !ok {
		return "", ErrNotAMember
	}
	if m.Role == "" {
		return models.RoleViewer, nil
	}
	return m.Role, nil
}

// ResolveByLink loads the workspace and resolves email's role in it.
func (r *Resolver) ResolveByLink(ctx context.Context, link, email string) (models.Role, error) {
	ws, err := r.store.WorkspaceByLink(ctx, link)
	if err != nil {
		return "", err
	}
	return r.Resolve(ws, email)
}

// Change persists a new role for targetEmail and refreshes every live
// session's cached copy. Only an admin requester may change roles. The store
// write happens before any cache update; on failure nothing changes.
func (r *Resolver) Change(ctx context.Context, requester models.Role, ws *models.Workspace, targetEmail string, newRole models.Role) error {
	if requester != models.RoleAdmin {
		return ErrForbidden
	}
	if !newRole.Valid() {
		return ErrBadRole
	}
	if _, ok := ws.MemberByEmail(targetEmail); !ok {
		return ErrNotAMember
	}
	if err := r.store.UpdateMemberRole(ctx, ws.ID, targetEmail, newRole); err != nil {
		return fmt.Errorf("persist role change: %w", err)
	}

	n := r.registry.UpdateCachedRole(targetEmail, ws.Link, newRole)
	r.log.Info("role changed",
		zap.String("workspace", ws.Link),
		zap.String("target", targetEmail),
		zap.String("role", string(newRole)),
		zap.Int("sessionsUpdated", n),
	)

	if r.pub != nil {
		if err := r.pub.PublishRoleChanged(ctx, ws.Link, targetEmail, newRole); err != nil {
			r.log.Warn("publish role change", zap.Error(err))
		}
	}
	return nil
}
