package region

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the set of regions this process hosts, in attach order.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	regions  map[string]Region
	onAttach []func(Region)
	onDetach []func(Region)
}

func NewRegistry() *Registry {
	return &Registry{regions: map[string]Region{}}
}

// OnAttach registers fn for every later Attach.
func (r *Registry) OnAttach(fn func(Region)) {
	r.mu.Lock()
	r.onAttach = append(r.onAttach, fn)
	r.mu.Unlock()
}

// OnDetach registers fn for every later Detach.
func (r *Registry) OnDetach(fn func(Region)) {
	r.mu.Lock()
	r.onDetach = append(r.onDetach, fn)
	r.mu.Unlock()
}

// Attach adds reg. It reports false if a region with that id is already
// attached.
func (r *Registry) Attach(reg Region) bool {
	r.mu.Lock()
	if _, ok := r.regions[reg.ID()]; ok {
		r.mu.Unlock()
		return false
	}
	r.regions[reg.ID()] = reg
	r.order = append(r.order, reg.ID())
	fns := append([]func(Region){}, r.onAttach...)
	r.mu.Unlock()

	for _, fn := range fns {
		fn(reg)
	}
	return true
}

// Detach removes the region with id. It reports false if it was unknown.
func (r *Registry) Detach(id string) bool {
	r.mu.Lock()
	reg, ok := r.regions[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.regions, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	fns := append([]func(Region){}, r.onDetach...)
	r.mu.Unlock()

	for _, fn := range fns {
		fn(reg)
	}
	return true
}

// Regions returns the attached regions in attach order.
func (r *Registry) Regions() []Region {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Region, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.regions[id])
	}
	return out
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Region(id string) Region {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.regions[id]
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// RootPresence finds the region holding the agent's root presence.
func (r *Registry) RootPresence(agent uuid.UUID) (Region, Presence, bool) {
	for _, reg := range r.Regions() {
		if p, ok := reg.Presence(agent); ok && p.Root {
			return reg, p, true
		}
	}
	return nil, Presence{}, false
}

// DemoteOthers turns the agent's root presence in every region other than
// keep into a child presence. It returns the demoted region ids.
func (r *Registry) DemoteOthers(agent uuid.UUID, keep string) []string {
	var out []string
	for _, reg := range r.Regions() {
		if reg.ID() != keep && reg.MakeChild(agent) {
			out = append(out, reg.ID())
		}
	}
	return out
}

// Locate returns the region holding the agent's root presence. Without
// one it falls back to the first attached region, which may not reach the
// user at all. It returns nil when no region is attached.
func (r *Registry) Locate(agent uuid.UUID) Region {
	regs := r.Regions()
	for _, reg := range regs {
		if p, ok := reg.Presence(agent); ok && p.Root {
			return reg
		}
	}
	if len(regs) == 0 {
		return nil
	}
	return regs[0]
}

// FindObject returns the first region containing the object.
func (r *Registry) FindObject(id uuid.UUID) (Region, Object, bool) {
	for _, reg := range r.Regions() {
		if o, ok := reg.Object(id); ok {
			return reg, o, true
		}
	}
	return nil, Object{}, false
}
