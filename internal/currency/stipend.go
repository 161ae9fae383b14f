package currency

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var stipendNamespace = uuid.MustParse("0b8f7c52-5a3e-4d1a-8c2b-5f1d2e3a4b6c")

// StipendID is the transaction ID for account's stipend in period. The
// same inputs always give the same ID so a replayed payout is a no-op.
func StipendID(account uuid.UUID, period int64) uuid.UUID {
	return uuid.NewSHA1(stipendNamespace, []byte(account.String()+"|"+strconv.FormatInt(period, 10)))
}

// Stipends pays a fixed amount from the Banker to every user account once
// per period.
type Stipends struct {
	svc *Service
	cfg StipendConfig
	log *zap.Logger
	now func() time.Time
}

func NewStipends(svc *Service, cfg StipendConfig, logger *zap.Logger) *Stipends {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stipends{svc: svc, cfg: cfg, log: logger, now: time.Now}
}

// Period is the stipend period index containing t.
func (p *Stipends) Period(t time.Time) int64 {
	every := int64(p.cfg.Every / time.Second)
	if every <= 0 {
		return 0
	}
	return t.Unix() / every
}

// RunOnce pays the stipend for the period containing now. It returns how
// many transfers were accepted by the store (replays included).
func (p *Stipends) RunOnce(ctx context.Context, now time.Time) (int, error) {
	if !p.cfg.Active() {
		return 0, nil
	}
	accts, err := p.svc.Store().Accounts(ctx)
	if err != nil {
		return 0, err
	}
	period := p.Period(now)
	paid := 0
	for _, a := range accts {
		if IsSystem(a.ID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return paid, err
		}
		ok := p.svc.Transfer(ctx, TransferRequest{
			ID:          StipendID(a.ID, period),
			From:        BankerID,
			To:          a.ID,
			Amount:      p.cfg.Amount,
			Description: "Stipend",
			Kind:        KindStipend,
		})
		if ok {
			paid++
		}
	}
	p.log.Info("stipends paid", zap.Int64("period", period), zap.Int("accounts", paid))
	return paid, nil
}

// Run pays immediately and then once per configured interval until ctx
// is done.
func (p *Stipends) Run(ctx context.Context) {
	if !p.cfg.Active() {
		return
	}
	if _, err := p.RunOnce(ctx, p.now()); err != nil && ctx.Err() == nil {
		p.log.Warn("stipend run failed", zap.Error(err))
	}
	t := time.NewTicker(p.cfg.Every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := p.RunOnce(ctx, p.now()); err != nil && ctx.Err() == nil {
				p.log.Warn("stipend run failed", zap.Error(err))
			}
		}
	}
}
