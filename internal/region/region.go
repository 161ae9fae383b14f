package region

import (
	"context"

	"github.com/google/uuid"

	"gridbank.ai/internal/currency"
)

type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Presence is a user's avatar in one region. Only a root presence is a
// target for balance delivery.
type Presence struct {
	AgentID   uuid.UUID
	SessionID uuid.UUID
	Root      bool
	Position  Vec3
	// ParcelLocalID caches the parcel under the avatar; 0 means unknown.
	ParcelLocalID int
	Client        Client
}

type Object struct {
	ID       uuid.UUID
	Name     string
	OwnerID  uuid.UUID
	Position Vec3
}

type Parcel struct {
	LocalID     int
	ID          uuid.UUID
	Name        string
	OwnerID     uuid.UUID
	AuthBuyerID uuid.UUID
	SalePrice   int64
	Flags       currency.ParcelFlags
	// Bounds on the ground plane, max exclusive.
	MinX, MinY float64
	MaxX, MaxY float64
}

func (p Parcel) Contains(pos Vec3) bool {
	return pos.X >= p.MinX && pos.X < p.MaxX && pos.Y >= p.MinY && pos.Y < p.MaxY
}

func (p Parcel) Area() int {
	return int((p.MaxX - p.MinX) * (p.MaxY - p.MinY))
}

func (p Parcel) Offer() currency.LandOffer {
	return currency.LandOffer{
		ParcelLocalID: p.LocalID,
		ParcelID:      p.ID,
		Name:          p.Name,
		OwnerID:       p.OwnerID,
		AuthBuyerID:   p.AuthBuyerID,
		SalePrice:     p.SalePrice,
		Flags:         p.Flags,
		Area:          p.Area(),
	}
}

// LandBuy is the buy-land event passed to validation hooks. Hooks fill in
// Validated and ParcelOwnerID.
type LandBuy struct {
	AgentID       uuid.UUID
	ParcelLocalID int
	Price         int64

	Validated     bool
	ParcelOwnerID uuid.UUID
	// Transferred is set by the region once ownership has moved.
	Transferred bool
}

// Region is one simulated region hosted by this process.
type Region interface {
	ID() string
	Presence(agent uuid.UUID) (Presence, bool)
	Object(id uuid.UUID) (Object, bool)
	Parcel(localID int) (Parcel, bool)
	ParcelAt(pos Vec3) (Parcel, bool)
	ObjectCapacity() int
	Alert(agent uuid.UUID, text string) bool
	// TransferParcel hands the parcel to `to` if `from` still owns it.
	TransferParcel(localID int, from, to uuid.UUID) bool
	// MakeChild demotes the agent's root presence, if any.
	MakeChild(agent uuid.UUID) bool

	// Subscribe registers s under key, replacing any earlier subscriber
	// with the same key. Unsubscribe of an unknown key is a no-op.
	Subscribe(key string, s Subscriber)
	Unsubscribe(key string)
}

// Subscriber receives presence lifecycle events and the land validation
// hook. Calls for different sessions may run concurrently.
type Subscriber interface {
	OnNewClient(ctx context.Context, r Region, c Client)
	OnClosingClient(ctx context.Context, r Region, c Client)
	OnMakeRoot(ctx context.Context, r Region, p Presence)
	OnValidateBuyLand(ctx context.Context, r Region, b *LandBuy) bool
}
