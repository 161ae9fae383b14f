package region_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"gridbank.ai/internal/region"
	"gridbank.ai/internal/region/regiontest"
)

func TestRegistry_LocatePrefersRootPresence(t *testing.T) {
	ctx := context.Background()
	reg := region.NewRegistry()
	a := region.NewScene("a", 100, nil)
	b := region.NewScene("b", 100, nil)
	reg.Attach(a)
	reg.Attach(b)

	c := regiontest.NewClient()
	a.AddClient(ctx, c, region.Vec3{})
	b.AddClient(ctx, c, region.Vec3{})
	if err := b.MakeRoot(ctx, c.Agent); err != nil {
		t.Fatalf("MakeRoot: %v", err)
	}

	if got := reg.Locate(c.Agent); got == nil || got.ID() != "b" {
		t.Fatalf("Locate: got %v want b", got)
	}
	if r, p, ok := reg.RootPresence(c.Agent); !ok || r.ID() != "b" || !p.Root {
		t.Fatalf("RootPresence: %v %+v %v", r, p, ok)
	}
}

func TestRegistry_LocateFallbacks(t *testing.T) {
	reg := region.NewRegistry()
	stranger := uuid.New()
	if got := reg.Locate(stranger); got != nil {
		t.Fatalf("empty registry should locate nothing, got %s", got.ID())
	}
	reg.Attach(region.NewScene("first", 1, nil))
	reg.Attach(region.NewScene("second", 1, nil))
	if got := reg.Locate(stranger); got == nil || got.ID() != "first" {
		t.Fatalf("fallback should be first attached region, got %v", got)
	}
	if _, _, ok := reg.RootPresence(stranger); ok {
		t.Fatalf("RootPresence must not fall back")
	}
	reg.Detach("first")
	if got := reg.Locate(stranger); got == nil || got.ID() != "second" {
		t.Fatalf("fallback after detach: %v", got)
	}
}

func TestRegistry_ChildPresenceIsNotATarget(t *testing.T) {
	ctx := context.Background()
	reg := region.NewRegistry()
	a := region.NewScene("a", 1, nil)
	b := region.NewScene("b", 1, nil)
	reg.Attach(a)
	reg.Attach(b)
	c := regiontest.NewClient()
	b.AddClient(ctx, c, region.Vec3{})
	if _, _, ok := reg.RootPresence(c.Agent); ok {
		t.Fatalf("child presence counted as root")
	}
	if got := reg.Locate(c.Agent); got.ID() != "a" {
		t.Fatalf("Locate with only child presence should fall back to first: %s", got.ID())
	}
}

func TestRegistry_AttachDetachIdempotent(t *testing.T) {
	reg := region.NewRegistry()
	var attached, detached []string
	reg.OnAttach(func(r region.Region) { attached = append(attached, r.ID()) })
	reg.OnDetach(func(r region.Region) { detached = append(detached, r.ID()) })

	s := region.NewScene("x", 1, nil)
	if !reg.Attach(s) || reg.Attach(s) {
		t.Fatalf("second attach should be a no-op")
	}
	if !reg.Detach("x") || reg.Detach("x") {
		t.Fatalf("second detach should be a no-op")
	}
	if len(attached) != 1 || len(detached) != 1 {
		t.Fatalf("listeners: attached=%v detached=%v", attached, detached)
	}
	if reg.Len() != 0 || reg.Region("x") != nil {
		t.Fatalf("region still present after detach")
	}
}

func TestRegistry_FindObjectFirstMatch(t *testing.T) {
	reg := region.NewRegistry()
	a := region.NewScene("a", 1, nil)
	b := region.NewScene("b", 1, nil)
	reg.Attach(a)
	reg.Attach(b)
	id := uuid.New()
	ownerA, ownerB := uuid.New(), uuid.New()
	b.AddObject(region.Object{ID: id, Name: "b-copy", OwnerID: ownerB})
	a.AddObject(region.Object{ID: id, Name: "a-copy", OwnerID: ownerA})

	r, o, ok := reg.FindObject(id)
	if !ok || r.ID() != "a" || o.OwnerID != ownerA {
		t.Fatalf("FindObject: %v %+v %v", r, o, ok)
	}
	if _, _, ok := reg.FindObject(uuid.New()); ok {
		t.Fatalf("unknown object found")
	}
}

func TestRegistry_DemoteOthers(t *testing.T) {
	ctx := context.Background()
	reg := region.NewRegistry()
	a := region.NewScene("a", 1, nil)
	b := region.NewScene("b", 1, nil)
	c := region.NewScene("c", 1, nil)
	reg.Attach(a)
	reg.Attach(b)
	reg.Attach(c)
	cl := regiontest.NewClient()
	for _, s := range []*region.Scene{a, b, c} {
		s.AddClient(ctx, cl, region.Vec3{})
	}
	// Scenes without a subscriber leave stale roots behind.
	_ = a.MakeRoot(ctx, cl.Agent)
	_ = c.MakeRoot(ctx, cl.Agent)

	got := reg.DemoteOthers(cl.Agent, "c")
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("demoted: %v", got)
	}
	if r, _, ok := reg.RootPresence(cl.Agent); !ok || r.ID() != "c" {
		t.Fatalf("RootPresence after demote: %v %v", r, ok)
	}
	if got := reg.DemoteOthers(cl.Agent, "c"); len(got) != 0 {
		t.Fatalf("second demote: %v", got)
	}
}
