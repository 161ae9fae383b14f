package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"gridbank.ai/internal/bridge"
	"gridbank.ai/internal/syncmsg"
)

var (
	_ bridge.SessionClaims = (*Sessions)(nil)
	_ syncmsg.Directory    = (*Sessions)(nil)
)

func TestSessions_ClaimAndRelease(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	a := NewSessions(rdb, "proc-a", 0)
	b := NewSessions(rdb, "proc-b", 0)
	agent := uuid.New()

	if p, err := a.SessionProcess(ctx, agent); err != nil || p != "" {
		t.Fatalf("unclaimed: %q %v", p, err)
	}
	if err := a.ClaimSession(ctx, agent); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := b.ClaimSession(ctx, agent); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// a lost the session to b; its release must not remove b's claim.
	if err := a.ReleaseSession(ctx, agent); err != nil {
		t.Fatalf("release: %v", err)
	}
	if p, _ := a.SessionProcess(ctx, agent); p != "proc-b" {
		t.Fatalf("owner after stale release: %q", p)
	}
	if err := b.ReleaseSession(ctx, agent); err != nil {
		t.Fatalf("release: %v", err)
	}
	if p, _ := b.SessionProcess(ctx, agent); p != "" {
		t.Fatalf("owner after release: %q", p)
	}
}

func TestSessions_TTLAndRefresh(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewSessions(rdb, "proc-a", time.Minute)
	kept, lost := uuid.New(), uuid.New()
	_ = s.ClaimSession(ctx, kept)
	_ = s.ClaimSession(ctx, lost)

	mr.FastForward(50 * time.Second)
	if err := s.Refresh(ctx, []uuid.UUID{kept}); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	mr.FastForward(20 * time.Second)

	if p, _ := s.SessionProcess(ctx, kept); p != "proc-a" {
		t.Fatalf("refreshed claim expired")
	}
	if p, _ := s.SessionProcess(ctx, lost); p != "" {
		t.Fatalf("stale claim survived: %q", p)
	}
}
