package syncmsg

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"gridbank.ai/internal/region"
)

// ErrNoRegion means a land query reached a process that hosts no region.
var ErrNoRegion = errors.New("syncmsg: no region hosted by this process")

// Handler applies inbound messages to local sessions.
type Handler struct {
	regions *region.Registry
	log     *zap.Logger

	handled atomic.Int64
	ignored atomic.Int64
}

func NewHandler(regions *region.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{regions: regions, log: logger}
}

// Handle dispatches msg by method. Only GetLandData produces a Response;
// unknown methods return nil, nil.
func (h *Handler) Handle(ctx context.Context, msg Message) (*Response, error) {
	switch msg.Method {
	case MethodUpdateMoneyBalance:
		h.handled.Add(1)
		h.updateMoneyBalance(msg)
		return nil, nil
	case MethodGetLandData:
		h.handled.Add(1)
		return h.getLandData(msg)
	default:
		h.ignored.Add(1)
		h.log.Debug("sync message not handled", zap.String("method", msg.Method))
		return nil, nil
	}
}

// Counts returns handled and ignored message totals.
func (h *Handler) Counts() (handled, ignored int64) {
	return h.handled.Load(), h.ignored.Load()
}

func (h *Handler) updateMoneyBalance(msg Message) {
	_, p, ok := h.regions.RootPresence(msg.AgentID)
	if !ok || p.Client == nil {
		return
	}
	if msg.Text != "" {
		p.Client.SendAlert(msg.Text)
	}
	p.Client.SendMoneyBalance(msg.TransactionID, true, []byte(msg.Text), msg.Amount)
}

func (h *Handler) getLandData(msg Message) (*Response, error) {
	reg := h.regions.Locate(msg.AgentID)
	if reg == nil {
		return nil, ErrNoRegion
	}
	fail := &Response{Success: false}
	p, ok := reg.Presence(msg.AgentID)
	if !ok {
		return fail, nil
	}
	parcel, found := reg.Parcel(p.ParcelLocalID)
	if !found {
		// cached parcel is stale or unset
		parcel, found = reg.ParcelAt(p.Position)
	}
	if !found {
		return fail, nil
	}
	offer := parcel.Offer()
	if !offer.ForSaleOnly() {
		return fail, nil
	}
	if !offer.BuyerAllowed(msg.AgentID) {
		return fail, nil
	}
	return &Response{Success: true, RegionID: reg.ID(), Land: &offer}, nil
}
