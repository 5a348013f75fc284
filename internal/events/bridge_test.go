package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/anirudh-why/codeHub/internal/models"
	"github.com/anirudh-why/codeHub/internal/session"
)

func newRedisClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func startBridge(t *testing.T, mr *miniredis.Miniredis, reg *session.Registry, hub *session.Hub) *Bridge {
	t.Helper()
	b := NewBridge(newRedisClient(t, mr), reg, hub, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)
	return b
}

// publishUntil retries the publish until cond holds, since the remote
// subscription may not be established yet when the test starts.
func publishUntil(t *testing.T, publish func() error, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := publish(); err != nil {
			t.Fatalf("publish: %v", err)
		}
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("remote event never applied")
}

func TestBridgeAppliesRemoteRoleChange(t *testing.T) {
	mr := miniredis.RunT(t)

	remoteReg := session.NewRegistry()
	remoteReg.Join(session.Session{
		ConnID: "c1",
		Client: session.NewClient(nil),
		Link:   "w1",
		Email:  "b@x.com",
		Role:   models.RoleEditor,
	})
	startBridge(t, mr, remoteReg, session.NewHub())

	local := NewBridge(newRedisClient(t, mr), session.NewRegistry(), session.NewHub(), zap.NewNop())
	publishUntil(t,
		func() error { return local.PublishRoleChanged(context.Background(), "w1", "b@x.com", models.RoleViewer) },
		func() bool {
			s, ok := remoteReg.Get("c1")
			return ok && s.Role == models.RoleViewer
		},
	)
}

func TestBridgeSkipsOwnEvents(t *testing.T) {
	mr := miniredis.RunT(t)

	reg := session.NewRegistry()
	reg.Join(session.Session{
		ConnID: "c1",
		Client: session.NewClient(nil),
		Link:   "w1",
		Email:  "b@x.com",
		Role:   models.RoleEditor,
	})
	b := startBridge(t, mr, reg, session.NewHub())

	if err := b.PublishRoleChanged(context.Background(), "w1", "b@x.com", models.RoleViewer); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if s, _ := reg.Get("c1"); s.Role != models.RoleEditor {
		t.Fatalf("own event must not be applied, got role %q", s.Role)
	}
}

func TestBridgeWorkspaceDeletedTearsDownRoom(t *testing.T) {
	mr := miniredis.RunT(t)

	hub := session.NewHub()
	var mu sync.Mutex
	var frames []models.WSFrame
	client := session.NewClient(nil)
	client.SetSendHook(func(frame models.WSFrame) {
		mu.Lock()
		frames = append(frames, frame)
		mu.Unlock()
	})
	hub.GetOrCreate("w1").Join(client)
	reg := session.NewRegistry()
	reg.Join(session.Session{ConnID: "c1", Client: client, Link: "w1", Email: "a@x.com", Role: models.RoleAdmin})
	startBridge(t, mr, reg, hub)

	local := NewBridge(newRedisClient(t, mr), session.NewRegistry(), session.NewHub(), zap.NewNop())
	publishUntil(t,
		func() error { return local.PublishWorkspaceDeleted(context.Background(), "w1") },
		func() bool {
			_, ok := hub.Get("w1")
			return !ok
		},
	)

	if _, ok := reg.Get("c1"); ok {
		t.Fatalf("session bound to the deleted workspace must be dropped")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) == 0 || frames[0].Type != models.EvtError || frames[0].Data != "workspace deleted" {
		t.Fatalf("expected deletion notice, got %#v", frames)
	}
}
