package syncmsg

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gridbank.ai/internal/currency"
	"gridbank.ai/internal/region"
)

// Directory maps a user to the process hosting their root session.
type Directory interface {
	// SessionProcess returns "" when no process has claimed the session.
	SessionProcess(ctx context.Context, agent uuid.UUID) (string, error)
}

// Sender delivers messages to another process.
type Sender interface {
	Send(ctx context.Context, process string, msg Message) error
	Request(ctx context.Context, process string, msg Message) (*Response, error)
}

// Delivery routes balance notifications to the user's root session. A
// local session is served in-process; otherwise the message goes to the
// owning process. Nothing is retried.
type Delivery struct {
	regions *region.Registry
	handler *Handler
	dir     Directory
	sender  Sender
	self    string
	log     *zap.Logger
}

// NewDelivery builds a Delivery. dir and sender may be nil for a single
// process deployment.
func NewDelivery(regions *region.Registry, handler *Handler, dir Directory, sender Sender, self string, logger *zap.Logger) *Delivery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Delivery{regions: regions, handler: handler, dir: dir, sender: sender, self: self, log: logger}
}

var _ currency.Notifier = (*Delivery)(nil)

func (d *Delivery) NotifyBalance(ctx context.Context, u currency.BalanceUpdate) {
	msg := UpdateMoneyBalance(u)
	if _, _, ok := d.regions.RootPresence(u.AgentID); ok {
		_, _ = d.handler.Handle(ctx, msg)
		return
	}
	proc := d.owner(ctx, u.AgentID)
	if proc == "" {
		d.log.Debug("balance update dropped, no session", zap.Stringer("agent", u.AgentID))
		return
	}
	if err := d.sender.Send(ctx, proc, msg); err != nil {
		d.log.Warn("balance update send failed",
			zap.Stringer("agent", u.AgentID),
			zap.String("process", proc),
			zap.Error(err))
	}
}

func (d *Delivery) owner(ctx context.Context, agent uuid.UUID) string {
	if d.dir == nil || d.sender == nil {
		return ""
	}
	proc, err := d.dir.SessionProcess(ctx, agent)
	if err != nil {
		d.log.Warn("session lookup failed", zap.Stringer("agent", agent), zap.Error(err))
		return ""
	}
	if proc == d.self {
		return ""
	}
	return proc
}

// LandData asks the process hosting agent's session for the parcel under
// them. A local session is answered in-process.
func (d *Delivery) LandData(ctx context.Context, agent uuid.UUID) (*Response, error) {
	msg := GetLandData(agent)
	if _, _, ok := d.regions.RootPresence(agent); ok {
		return d.handler.Handle(ctx, msg)
	}
	if proc := d.owner(ctx, agent); proc != "" {
		return d.sender.Request(ctx, proc, msg)
	}
	return d.handler.Handle(ctx, msg)
}
