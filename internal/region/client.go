package region

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"gridbank.ai/internal/currency"
)

// MoneyTransfer is a pay request coming from a viewer.
type MoneyTransfer struct {
	SourceID    uuid.UUID
	TargetID    uuid.UUID
	Amount      int64
	Kind        currency.Kind
	Description string
}

// Handlers are the request callbacks a subsystem installs on a client.
// Nil fields are skipped.
type Handlers struct {
	EconomyData   func(ctx context.Context, c Client)
	Balance       func(ctx context.Context, c Client, agent, session, txID uuid.UUID)
	MoneyTransfer func(ctx context.Context, c Client, req MoneyTransfer)
}

// Client is the session link to one connected viewer.
type Client interface {
	AgentID() uuid.UUID
	SessionID() uuid.UUID
	SendMoneyBalance(txID uuid.UUID, success bool, description []byte, balance int64)
	SendAlert(text string)
	SendEconomyData(d currency.EconomyData)

	SetHandlers(key string, h Handlers)
	ClearHandlers(key string)
}

// HandlerSet stores keyed Handlers and dispatches inbound requests to
// them. Client implementations embed it.
type HandlerSet struct {
	mu sync.RWMutex
	m  map[string]Handlers
}

func (s *HandlerSet) SetHandlers(key string, h Handlers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[string]Handlers{}
	}
	s.m[key] = h
}

func (s *HandlerSet) ClearHandlers(key string) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// HandlerCount is the number of installed handler keys.
func (s *HandlerSet) HandlerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *HandlerSet) snapshot() []Handlers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Handlers, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.m[k])
	}
	return out
}

func (s *HandlerSet) RequestEconomyData(ctx context.Context, c Client) {
	for _, h := range s.snapshot() {
		if h.EconomyData != nil {
			h.EconomyData(ctx, c)
		}
	}
}

func (s *HandlerSet) RequestBalance(ctx context.Context, c Client, agent, session, txID uuid.UUID) {
	for _, h := range s.snapshot() {
		if h.Balance != nil {
			h.Balance(ctx, c, agent, session, txID)
		}
	}
}

func (s *HandlerSet) RequestMoneyTransfer(ctx context.Context, c Client, req MoneyTransfer) {
	for _, h := range s.snapshot() {
		if h.MoneyTransfer != nil {
			h.MoneyTransfer(ctx, c, req)
		}
	}
}
