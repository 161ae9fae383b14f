package region

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gridbank.ai/internal/currency"
)

var (
	ErrUnknownPresence = errors.New("no presence for agent")
	ErrUnknownParcel   = errors.New("unknown parcel")
	ErrSessionTaken    = errors.New("agent already present with another client")
	// ErrParcelChanged means a land sale was paid for but the parcel had
	// already changed hands, so ownership did not move.
	ErrParcelChanged = errors.New("parcel changed hands before transfer")
)

// Scene is the in-memory Region used by the server.
type Scene struct {
	id       string
	capacity int
	log      *zap.Logger

	mu        sync.RWMutex
	presences map[uuid.UUID]*Presence
	objects   map[uuid.UUID]Object
	parcels   map[int]Parcel
	subs      map[string]Subscriber
}

func NewScene(id string, objectCapacity int, logger *zap.Logger) *Scene {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scene{
		id:        id,
		capacity:  objectCapacity,
		log:       logger.With(zap.String("region", id)),
		presences: map[uuid.UUID]*Presence{},
		objects:   map[uuid.UUID]Object{},
		parcels:   map[int]Parcel{},
		subs:      map[string]Subscriber{},
	}
}

func (s *Scene) ID() string          { return s.id }
func (s *Scene) ObjectCapacity() int { return s.capacity }

func (s *Scene) Subscribe(key string, sub Subscriber) {
	s.mu.Lock()
	s.subs[key] = sub
	s.mu.Unlock()
}

func (s *Scene) Unsubscribe(key string) {
	s.mu.Lock()
	delete(s.subs, key)
	s.mu.Unlock()
}

// Subscribers returns the subscriber keys in order.
func (s *Scene) Subscribers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.subs))
	for k := range s.subs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Scene) subscribers() []Subscriber {
	keys := s.Subscribers()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Subscriber, 0, len(keys))
	for _, k := range keys {
		if sub, ok := s.subs[k]; ok {
			out = append(out, sub)
		}
	}
	return out
}

// AddClient creates a child presence for c at pos and announces the new
// client. An agent has at most one client per region: a different client
// for an agent that is already present gets ErrSessionTaken.
func (s *Scene) AddClient(ctx context.Context, c Client, pos Vec3) error {
	p := &Presence{
		AgentID:   c.AgentID(),
		SessionID: c.SessionID(),
		Position:  pos,
		Client:    c,
	}
	s.mu.Lock()
	if cur := s.presences[p.AgentID]; cur != nil && cur.Client != c {
		s.mu.Unlock()
		return ErrSessionTaken
	}
	p.ParcelLocalID = s.parcelAtLocked(pos)
	s.presences[p.AgentID] = p
	s.mu.Unlock()

	for _, sub := range s.subscribers() {
		sub.OnNewClient(ctx, s, c)
	}
	return nil
}

// MakeRoot promotes the agent's presence to root.
func (s *Scene) MakeRoot(ctx context.Context, agent uuid.UUID) error {
	s.mu.Lock()
	p := s.presences[agent]
	if p == nil {
		s.mu.Unlock()
		return ErrUnknownPresence
	}
	p.Root = true
	snap := *p
	s.mu.Unlock()

	s.log.Debug("presence became root", zap.Stringer("agent", agent))
	for _, sub := range s.subscribers() {
		sub.OnMakeRoot(ctx, s, snap)
	}
	return nil
}

// MakeChild demotes the agent's presence, e.g. after crossing away. It
// reports whether a root presence was demoted.
func (s *Scene) MakeChild(agent uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.presences[agent]
	if p == nil || !p.Root {
		return false
	}
	p.Root = false
	return true
}

// RemoveClient announces the closing client and drops its presence. It
// does nothing unless c is the client currently present for its agent.
func (s *Scene) RemoveClient(ctx context.Context, c Client) {
	agent := c.AgentID()
	s.mu.RLock()
	p := s.presences[agent]
	s.mu.RUnlock()
	if p == nil || p.Client != c {
		return
	}
	for _, sub := range s.subscribers() {
		sub.OnClosingClient(ctx, s, c)
	}
	s.mu.Lock()
	if s.presences[agent] == p {
		delete(s.presences, agent)
	}
	s.mu.Unlock()
}

// Move updates the position and the cached parcel of a presence.
func (s *Scene) Move(agent uuid.UUID, pos Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.presences[agent]
	if p == nil {
		return ErrUnknownPresence
	}
	p.Position = pos
	p.ParcelLocalID = s.parcelAtLocked(pos)
	return nil
}

func (s *Scene) Presence(agent uuid.UUID) (Presence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.presences[agent]
	if p == nil {
		return Presence{}, false
	}
	return *p, true
}

// Presences returns a snapshot of all presences.
func (s *Scene) Presences() []Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Presence, 0, len(s.presences))
	for _, p := range s.presences {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID.String() < out[j].AgentID.String() })
	return out
}

func (s *Scene) Alert(agent uuid.UUID, text string) bool {
	p, ok := s.Presence(agent)
	if !ok || p.Client == nil {
		return false
	}
	p.Client.SendAlert(text)
	return true
}

func (s *Scene) AddObject(o Object) {
	s.mu.Lock()
	s.objects[o.ID] = o
	s.mu.Unlock()
}

func (s *Scene) RemoveObject(id uuid.UUID) {
	s.mu.Lock()
	delete(s.objects, id)
	s.mu.Unlock()
}

func (s *Scene) Object(id uuid.UUID) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[id]
	return o, ok
}

// SetParcel adds or replaces a parcel by local id.
func (s *Scene) SetParcel(p Parcel) {
	s.mu.Lock()
	s.parcels[p.LocalID] = p
	s.mu.Unlock()
}

func (s *Scene) Parcel(localID int) (Parcel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parcels[localID]
	return p, ok
}

func (s *Scene) ParcelAt(pos Vec3) (Parcel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := s.parcelAtLocked(pos)
	if id == 0 {
		return Parcel{}, false
	}
	return s.parcels[id], true
}

func (s *Scene) parcelAtLocked(pos Vec3) int {
	best := 0
	for id, p := range s.parcels {
		if p.Contains(pos) && (best == 0 || id < best) {
			best = id
		}
	}
	return best
}

// TransferParcel changes the owner and clears the sale terms. It does
// nothing if from no longer owns the parcel.
func (s *Scene) TransferParcel(localID int, from, to uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parcels[localID]
	if !ok || p.OwnerID != from {
		return false
	}
	p.OwnerID = to
	p.AuthBuyerID = uuid.Nil
	p.SalePrice = 0
	p.Flags &^= currency.ParcelForSale | currency.ParcelForSaleObjects | currency.ParcelSellParcelObjects
	s.parcels[localID] = p
	return true
}

// BuyLand runs the validation hooks for a buy-land request and, when one
// of them validates, hands the parcel to the buyer.
func (s *Scene) BuyLand(ctx context.Context, agent uuid.UUID, localID int, price int64) (LandBuy, error) {
	if _, ok := s.Parcel(localID); !ok {
		return LandBuy{}, ErrUnknownParcel
	}
	ev := &LandBuy{AgentID: agent, ParcelLocalID: localID, Price: price}
	for _, sub := range s.subscribers() {
		if sub.OnValidateBuyLand(ctx, s, ev) {
			break
		}
	}
	if !ev.Validated {
		return *ev, nil
	}
	if !s.TransferParcel(localID, ev.ParcelOwnerID, agent) {
		s.log.Warn("parcel paid for but not transferred",
			zap.Int("parcel", localID),
			zap.Stringer("buyer", agent),
			zap.Stringer("seller", ev.ParcelOwnerID),
			zap.Int64("price", price))
		return *ev, ErrParcelChanged
	}
	ev.Transferred = true
	s.log.Info("parcel sold",
		zap.Int("parcel", localID),
		zap.Stringer("buyer", agent),
		zap.Stringer("seller", ev.ParcelOwnerID),
		zap.Int64("price", price))
	return *ev, nil
}
