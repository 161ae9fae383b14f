package currency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BalanceUpdate is what a user's session link is told after a balance
// change.
type BalanceUpdate struct {
	AgentID       uuid.UUID
	Balance       int64
	Text          string
	TransactionID uuid.UUID
}

// Notifier delivers balance updates to wherever the user's root session
// lives. Delivery is best-effort.
type Notifier interface {
	NotifyBalance(ctx context.Context, u BalanceUpdate)
}

// Journal receives every committed (non-replayed) transaction.
type Journal interface {
	Append(tx Transaction) error
}

// ObjectPaid is fired after a committed transfer that targets an object.
type ObjectPaid struct {
	ObjectID uuid.UUID
	PayerID  uuid.UUID
	Amount   int64
}

type ObjectPaidFunc func(ctx context.Context, ev ObjectPaid)

type Options struct {
	Logger   *zap.Logger
	Notifier Notifier
	Journal  Journal
	Now      func() time.Time
}

// Service applies transfers against a Store. It never caches balances.
type Service struct {
	store    Store
	log      *zap.Logger
	notifier Notifier
	journal  Journal
	now      func() time.Time

	mu      sync.RWMutex
	nextSub uint64
	paid    map[uint64]ObjectPaidFunc

	stats Stats
}

// Stats are monotonic counters exposed on /metrics.
type Stats struct {
	Committed  atomic.Int64
	Replayed   atomic.Int64
	Rejected   atomic.Int64
	Failed     atomic.Int64
	ObjectPaid atomic.Int64
}

func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:    store,
		log:      opts.Logger,
		notifier: opts.Notifier,
		journal:  opts.Journal,
		now:      opts.Now,
		paid:     map[uint64]ObjectPaidFunc{},
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) Stats() *Stats { return &s.stats }

func (s *Service) Store() Store { return s.store }

// Config returns the store's active configuration (nil when none).
func (s *Service) Config() *Config { return s.store.Config() }

// Transfer validates req and hands it to the store exactly once. Every
// failure, including insufficient funds, is reported as false.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) bool {
	if err := req.validate(); err != nil {
		s.stats.Rejected.Add(1)
		s.log.Warn("transfer rejected",
			zap.Stringer("tx", req.ID),
			zap.Int64("amount", req.Amount),
			zap.Int32("kind", int32(req.Kind)),
			zap.Error(err))
		return false
	}
	tx := req.transaction(s.now())
	rcpt, err := s.store.Transfer(ctx, tx)
	if err != nil {
		s.stats.Failed.Add(1)
		lvl := s.log.Warn
		if errors.Is(err, ErrInsufficientFunds) {
			lvl = s.log.Info
		}
		lvl("transfer failed",
			zap.Stringer("tx", tx.ID),
			zap.Stringer("from", tx.From),
			zap.Stringer("to", tx.To),
			zap.Int64("amount", tx.Amount),
			zap.Stringer("kind", tx.Kind),
			zap.Error(err))
		return false
	}
	if rcpt.Replayed {
		s.stats.Replayed.Add(1)
		s.log.Debug("transfer replayed", zap.Stringer("tx", tx.ID))
		return true
	}
	s.stats.Committed.Add(1)
	committed := rcpt.Transaction
	if s.journal != nil {
		if err := s.journal.Append(committed); err != nil {
			s.log.Warn("journal append failed", zap.Stringer("tx", committed.ID), zap.Error(err))
		}
	}
	if !committed.ToObject.IsZero() {
		s.fireObjectPaid(ctx, ObjectPaid{
			ObjectID: committed.ToObject.ID,
			PayerID:  committed.From,
			Amount:   committed.Amount,
		})
	}
	s.notify(ctx, committed.From, rcpt.FromBalance, committed.ID)
	if committed.To != committed.From {
		s.notify(ctx, committed.To, rcpt.ToBalance, committed.ID)
	}
	return true
}

func (s *Service) notify(ctx context.Context, agent uuid.UUID, balance int64, txID uuid.UUID) {
	if s.notifier == nil || agent == uuid.Nil || IsSystem(agent) {
		return
	}
	s.notifier.NotifyBalance(ctx, BalanceUpdate{AgentID: agent, Balance: balance, TransactionID: txID})
}

// Charge takes amount from agent and gives it to the Banker.
func (s *Service) Charge(ctx context.Context, agent uuid.UUID, amount int64, description string, kind Kind) bool {
	return s.Transfer(ctx, TransferRequest{
		From:        agent,
		To:          BankerID,
		Amount:      amount,
		Description: description,
		Kind:        kind,
	})
}

// PayUser is a user to user transfer.
func (s *Service) PayUser(ctx context.Context, from, to uuid.UUID, amount int64, description string, kind Kind, txID uuid.UUID) bool {
	return s.Transfer(ctx, TransferRequest{
		ID:          txID,
		From:        from,
		To:          to,
		Amount:      amount,
		Description: description,
		Kind:        kind,
	})
}

// PayObject credits the owner of obj. ObjectPaid fires on success.
func (s *Service) PayObject(ctx context.Context, payer, owner uuid.UUID, obj ObjectRef, amount int64, description string, kind Kind, txID uuid.UUID) bool {
	return s.Transfer(ctx, TransferRequest{
		ID:          txID,
		From:        payer,
		To:          owner,
		ToObject:    obj,
		Amount:      amount,
		Description: description,
		Kind:        kind,
	})
}

// ObjectGiveMoney pays a user on behalf of an object; from is the
// object's owner.
func (s *Service) ObjectGiveMoney(ctx context.Context, objectID uuid.UUID, objectName string, from, to uuid.UUID, amount int64) bool {
	return s.Transfer(ctx, TransferRequest{
		From:        from,
		To:          to,
		FromObject:  ObjectRef{ID: objectID, Name: objectName},
		Amount:      amount,
		Description: "Object " + objectName + " pays",
		Kind:        KindObjectPays,
	})
}

func (s *Service) Balance(ctx context.Context, agent uuid.UUID) (int64, error) {
	return s.store.Balance(ctx, agent)
}

// OnObjectPaid subscribes fn. The returned func unsubscribes and may be
// called more than once.
func (s *Service) OnObjectPaid(fn ObjectPaidFunc) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.paid[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.paid, id)
		s.mu.Unlock()
	}
}

func (s *Service) fireObjectPaid(ctx context.Context, ev ObjectPaid) {
	s.stats.ObjectPaid.Add(1)
	s.mu.RLock()
	fns := make([]ObjectPaidFunc, 0, len(s.paid))
	for _, fn := range s.paid {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(ctx, ev)
	}
}

// SendGridMessage pushes text to the user along with their current
// balance. It does not move money.
func (s *Service) SendGridMessage(ctx context.Context, to uuid.UUID, text string, txID uuid.UUID) bool {
	if s.notifier == nil {
		return false
	}
	bal, err := s.store.Balance(ctx, to)
	if err != nil {
		s.log.Warn("grid message balance lookup failed", zap.Stringer("agent", to), zap.Error(err))
		return false
	}
	s.notifier.NotifyBalance(ctx, BalanceUpdate{AgentID: to, Balance: bal, Text: text, TransactionID: txID})
	return true
}

func (s *Service) UploadCharge() int64 {
	if cfg := s.store.Config(); cfg != nil {
		return cfg.PriceUpload
	}
	return 0
}

func (s *Service) GroupCreationCharge() int64 {
	if cfg := s.store.Config(); cfg != nil {
		return cfg.PriceGroupCreate
	}
	return 0
}

func (s *Service) DirectoryFeeCharge() int64 {
	if cfg := s.store.Config(); cfg != nil {
		return cfg.PriceDirectoryFee
	}
	return 0
}

func (s *Service) ClientPort() int {
	if cfg := s.store.Config(); cfg != nil {
		return cfg.ClientPort
	}
	return 0
}

func (s *Service) TransactionHistory(ctx context.Context, q HistoryQuery) ([]Transaction, error) {
	return s.store.History(ctx, q)
}

func (s *Service) NumberOfTransactions(ctx context.Context, to, from uuid.UUID) (int, error) {
	return s.store.CountTransactions(ctx, HistoryQuery{To: to, From: from})
}

// PurchaseHistory lists purchases made by q.From.
func (s *Service) PurchaseHistory(ctx context.Context, q HistoryQuery) ([]Transaction, error) {
	q.Kinds = PurchaseKinds
	return s.store.History(ctx, q)
}

func (s *Service) NumberOfPurchases(ctx context.Context, user uuid.UUID) (int, error) {
	return s.store.CountTransactions(ctx, HistoryQuery{From: user, Kinds: PurchaseKinds})
}
