package currency

import (
	"time"

	"github.com/google/uuid"
)

// ObjectRef names an in-world object taking part in a transfer. The zero
// value means no object.
type ObjectRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name,omitempty"`
}

func (o ObjectRef) IsZero() bool { return o.ID == uuid.Nil }

// Transaction is an immutable committed balance change.
type Transaction struct {
	ID          uuid.UUID `json:"id"`
	From        uuid.UUID `json:"from"`
	To          uuid.UUID `json:"to"`
	FromObject  ObjectRef `json:"from_object,omitempty"`
	ToObject    ObjectRef `json:"to_object,omitempty"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description,omitempty"`
	Kind        Kind      `json:"kind"`
	CreatedAt   time.Time `json:"created_at"`
}

// Deduplicated reports whether the store must enforce replay protection
// for this transaction.
func (t Transaction) Deduplicated() bool { return t.ID != uuid.Nil }

// TransferRequest is the single input shape for every balance change.
// ID may be uuid.Nil, in which case the transfer is not deduplicated.
type TransferRequest struct {
	ID          uuid.UUID
	From        uuid.UUID
	To          uuid.UUID
	FromObject  ObjectRef
	ToObject    ObjectRef
	Amount      int64
	Description string
	Kind        Kind
}

func (r TransferRequest) validate() error {
	if r.Amount < 0 {
		return ErrInvalidAmount
	}
	if !r.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

func (r TransferRequest) transaction(now time.Time) Transaction {
	return Transaction{
		ID:          r.ID,
		From:        r.From,
		To:          r.To,
		FromObject:  r.FromObject,
		ToObject:    r.ToObject,
		Amount:      r.Amount,
		Description: r.Description,
		Kind:        r.Kind,
		CreatedAt:   now.UTC(),
	}
}

// Receipt is returned by Store.Transfer. Replayed is set when the
// transaction ID was already committed and nothing was applied.
type Receipt struct {
	Transaction Transaction
	Replayed    bool
	FromBalance int64
	ToBalance   int64
}

type Account struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryQuery filters transaction history. Zero fields do not filter.
type HistoryQuery struct {
	To     uuid.UUID
	From   uuid.UUID
	Start  time.Time
	End    time.Time
	Kinds  []Kind
	Offset int
	Limit  int
}

// Match reports whether t passes the filter. Offset and Limit are ignored.
func (q HistoryQuery) Match(t Transaction) bool {
	if q.To != uuid.Nil && t.To != q.To {
		return false
	}
	if q.From != uuid.Nil && t.From != q.From {
		return false
	}
	if !q.Start.IsZero() && t.CreatedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && !t.CreatedAt.Before(q.End) {
		return false
	}
	if len(q.Kinds) > 0 {
		for _, k := range q.Kinds {
			if t.Kind == k {
				return true
			}
		}
		return false
	}
	return true
}
