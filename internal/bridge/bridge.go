// Package bridge connects region lifecycle events to the currency service.
package bridge

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gridbank.ai/internal/currency"
	"gridbank.ai/internal/region"
)

// SubscriptionKey is the key the bridge uses on regions and clients.
const SubscriptionKey = "currency"

const balanceUnavailable = "Unable to send your money balance to you!"

// SessionClaims records which process owns a user's root session.
type SessionClaims interface {
	ClaimSession(ctx context.Context, agent uuid.UUID) error
	ReleaseSession(ctx context.Context, agent uuid.UUID) error
}

type Options struct {
	Service *currency.Service
	Escrow  *currency.Escrow
	Regions *region.Registry
	// Claims is optional; without it sessions are tracked only locally.
	Claims SessionClaims
	Logger *zap.Logger
}

type Bridge struct {
	svc     *currency.Service
	escrow  *currency.Escrow
	regions *region.Registry
	claims  SessionClaims
	log     *zap.Logger

	mu       sync.Mutex
	attached map[string]region.Region
	started  bool
}

func New(opts Options) *Bridge {
	b := &Bridge{
		svc:      opts.Service,
		escrow:   opts.Escrow,
		regions:  opts.Regions,
		claims:   opts.Claims,
		log:      opts.Logger,
		attached: map[string]region.Region{},
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	if b.escrow == nil {
		b.escrow = currency.NewEscrow(b.svc)
	}
	return b
}

// Start subscribes to every attached region and follows later attach and
// detach events. Calling it again is a no-op.
func (b *Bridge) Start() {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	b.regions.OnAttach(b.Attach)
	b.regions.OnDetach(b.Detach)
	for _, r := range b.regions.Regions() {
		b.Attach(r)
	}
}

// Attach subscribes to r. Repeated calls keep a single subscription.
func (b *Bridge) Attach(r region.Region) {
	b.mu.Lock()
	b.attached[r.ID()] = r
	b.mu.Unlock()
	r.Subscribe(SubscriptionKey, b)
}

// Detach drops the subscription on r.
func (b *Bridge) Detach(r region.Region) {
	b.mu.Lock()
	delete(b.attached, r.ID())
	b.mu.Unlock()
	r.Unsubscribe(SubscriptionKey)
}

// Attached is the number of regions currently subscribed.
func (b *Bridge) Attached() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.attached)
}

var _ region.Subscriber = (*Bridge)(nil)

func (b *Bridge) OnNewClient(ctx context.Context, r region.Region, c region.Client) {
	if err := b.svc.Store().EnsureAccount(ctx, c.AgentID(), c.AgentID().String()); err != nil {
		b.log.Warn("ensure account failed", zap.Stringer("agent", c.AgentID()), zap.Error(err))
	}
	objectCapacity := r.ObjectCapacity()
	c.SetHandlers(SubscriptionKey, region.Handlers{
		EconomyData: func(ctx context.Context, c region.Client) {
			c.SendEconomyData(currency.EconomyFor(b.svc.Config(), objectCapacity))
		},
		Balance:       b.sendMoneyBalance,
		MoneyTransfer: b.moneyTransfer,
	})
}

// OnClosingClient removes the handlers installed by OnNewClient. The
// session claim is released unless the user is still root in another
// region of this process; the directory only deletes claims this process
// owns.
func (b *Bridge) OnClosingClient(ctx context.Context, r region.Region, c region.Client) {
	c.ClearHandlers(SubscriptionKey)
	if b.claims == nil {
		return
	}
	if other, _, ok := b.regions.RootPresence(c.AgentID()); ok && other.ID() != r.ID() {
		return
	}
	if err := b.claims.ReleaseSession(ctx, c.AgentID()); err != nil {
		b.log.Warn("release session failed", zap.Stringer("agent", c.AgentID()), zap.Error(err))
	}
}

// OnMakeRoot demotes the agent's root presences in other regions, then
// refreshes the client's balance, covering any notifications it missed
// while elsewhere.
func (b *Bridge) OnMakeRoot(ctx context.Context, r region.Region, p region.Presence) {
	if demoted := b.regions.DemoteOthers(p.AgentID, r.ID()); len(demoted) > 0 {
		b.log.Debug("demoted stale root presences",
			zap.Stringer("agent", p.AgentID),
			zap.String("root", r.ID()),
			zap.Strings("regions", demoted))
	}
	if b.claims != nil {
		if err := b.claims.ClaimSession(ctx, p.AgentID); err != nil {
			b.log.Warn("claim session failed", zap.Stringer("agent", p.AgentID), zap.Error(err))
		}
	}
	if p.Client == nil {
		return
	}
	bal, err := b.svc.Balance(ctx, p.AgentID)
	if err != nil {
		b.log.Warn("balance lookup failed", zap.Stringer("agent", p.AgentID), zap.Error(err))
		return
	}
	p.Client.SendMoneyBalance(uuid.Nil, true, nil, bal)
}

func (b *Bridge) OnValidateBuyLand(ctx context.Context, r region.Region, ev *region.LandBuy) bool {
	var offer *currency.LandOffer
	if p, ok := r.Parcel(ev.ParcelLocalID); ok {
		o := p.Offer()
		offer = &o
	}
	res := b.escrow.Validate(ctx, currency.LandPurchase{
		BuyerID:       ev.AgentID,
		ParcelLocalID: ev.ParcelLocalID,
		Price:         ev.Price,
	}, offer)
	ev.Validated = res.Validated()
	if !ev.Validated {
		b.log.Info("land buy rejected",
			zap.String("region", r.ID()),
			zap.Int("parcel", ev.ParcelLocalID),
			zap.Stringer("buyer", ev.AgentID),
			zap.String("reason", string(res.Reason)))
		return false
	}
	ev.ParcelOwnerID = res.Owner
	return true
}

// PurchaseLand is the programmatic land purchase. On success the parcel
// changes hands in the region. A validated purchase whose parcel changed
// owner before the transfer returns the paid result with
// region.ErrParcelChanged so the caller can compensate the buyer.
func (b *Bridge) PurchaseLand(ctx context.Context, regionID string, buyer uuid.UUID, localID int, price int64) (currency.EscrowResult, error) {
	r := b.regions.Region(regionID)
	if r == nil {
		return currency.EscrowResult{State: currency.EscrowRejected, Reason: currency.RejectNoParcel}, nil
	}
	var offer *currency.LandOffer
	if p, ok := r.Parcel(localID); ok {
		o := p.Offer()
		offer = &o
	}
	res := b.escrow.Purchase(ctx, currency.LandPurchase{BuyerID: buyer, ParcelLocalID: localID, Price: price}, offer)
	if res.Validated() && !r.TransferParcel(localID, res.Owner, buyer) {
		b.log.Warn("parcel paid for but not transferred",
			zap.String("region", regionID),
			zap.Int("parcel", localID),
			zap.Stringer("buyer", buyer),
			zap.Stringer("seller", res.Owner),
			zap.Stringer("tx", res.TransactionID))
		return res, region.ErrParcelChanged
	}
	return res, nil
}

func (b *Bridge) sendMoneyBalance(ctx context.Context, c region.Client, agent, session, txID uuid.UUID) {
	if c.AgentID() != agent || c.SessionID() != session {
		c.SendAlert(balanceUnavailable)
		return
	}
	bal, err := b.svc.Balance(ctx, agent)
	if err != nil {
		c.SendAlert(balanceUnavailable)
		return
	}
	c.SendMoneyBalance(txID, true, nil, bal)
}

func (b *Bridge) moneyTransfer(ctx context.Context, c region.Client, req region.MoneyTransfer) {
	if req.TargetID == uuid.Nil {
		return
	}
	from := c.AgentID()
	txID := uuid.New()
	kind := req.Kind
	var ok bool
	if _, obj, found := b.regions.FindObject(req.TargetID); found {
		if !kind.Valid() {
			kind = currency.KindPayObject
		}
		desc := req.Description
		if desc == "" {
			desc = "Paid " + obj.Name
		}
		ok = b.svc.PayObject(ctx, from, obj.OwnerID, currency.ObjectRef{ID: obj.ID, Name: obj.Name}, req.Amount, desc, kind, txID)
	} else {
		if !kind.Valid() {
			kind = currency.KindGift
		}
		ok = b.svc.PayUser(ctx, from, req.TargetID, req.Amount, req.Description, kind, txID)
	}
	if ok {
		return
	}
	bal, err := b.svc.Balance(ctx, from)
	if err != nil {
		b.log.Warn("balance lookup failed", zap.Stringer("agent", from), zap.Error(err))
	}
	c.SendMoneyBalance(txID, false, []byte("Unable to pay "+strconv.FormatInt(req.Amount, 10)), bal)
}
