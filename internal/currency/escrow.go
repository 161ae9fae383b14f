package currency

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ParcelFlags is the parcel flag bit set as sent to viewers.
type ParcelFlags uint32

const (
	ParcelForSale           ParcelFlags = 1 << 2
	ParcelForSaleObjects    ParcelFlags = 1 << 7
	ParcelSellParcelObjects ParcelFlags = 1 << 16

	parcelAnySale = ParcelForSale | ParcelForSaleObjects | ParcelSellParcelObjects
)

// LandOffer is a read-only view of a parcel's sale terms.
type LandOffer struct {
	ParcelLocalID int         `json:"local_id"`
	ParcelID      uuid.UUID   `json:"parcel_id"`
	Name          string      `json:"name,omitempty"`
	OwnerID       uuid.UUID   `json:"owner_id"`
	AuthBuyerID   uuid.UUID   `json:"auth_buyer_id"`
	SalePrice     int64       `json:"sale_price"`
	Flags         ParcelFlags `json:"flags"`
	Area          int         `json:"area"`
}

// ForSale reports whether any sale flag is set.
func (o LandOffer) ForSale() bool { return o.Flags&parcelAnySale != 0 }

// ForSaleOnly reports whether the plain for-sale bit is set.
func (o LandOffer) ForSaleOnly() bool { return o.Flags&ParcelForSale != 0 }

// BuyerAllowed reports whether buyer may purchase under AuthBuyerID.
func (o LandOffer) BuyerAllowed(buyer uuid.UUID) bool {
	return o.AuthBuyerID == uuid.Nil || o.AuthBuyerID == buyer
}

type EscrowState uint8

const (
	EscrowPending EscrowState = iota
	EscrowValidated
	EscrowRejected
)

func (s EscrowState) String() string {
	switch s {
	case EscrowValidated:
		return "validated"
	case EscrowRejected:
		return "rejected"
	default:
		return "pending"
	}
}

type RejectReason string

const (
	RejectNone          RejectReason = ""
	RejectNoParcel      RejectReason = "parcel_not_found"
	RejectNotForSale    RejectReason = "not_for_sale"
	RejectWrongBuyer    RejectReason = "buyer_not_authorized"
	RejectUnderpriced   RejectReason = "price_below_sale_price"
	RejectPaymentFailed RejectReason = "payment_failed"
)

// LandPurchase is a buy-land request.
type LandPurchase struct {
	BuyerID       uuid.UUID
	ParcelLocalID int
	Price         int64
}

type EscrowResult struct {
	State         EscrowState
	Reason        RejectReason
	Owner         uuid.UUID
	TransactionID uuid.UUID
}

func (r EscrowResult) Validated() bool { return r.State == EscrowValidated }

// Transferer is the part of Service the escrow needs.
type Transferer interface {
	Transfer(ctx context.Context, req TransferRequest) bool
}

// EscrowRecord is one resolved escrow, kept for audit.
type EscrowRecord struct {
	BuyerID       uuid.UUID
	OwnerID       uuid.UUID
	ParcelLocalID int
	Price         int64
	State         EscrowState
	Reason        RejectReason
	TransactionID uuid.UUID
	At            time.Time
}

// EscrowRecorder must not block.
type EscrowRecorder interface {
	RecordEscrow(rec EscrowRecord)
}

// Escrow decides whether a land purchase may proceed and takes payment.
// It never changes parcel ownership.
type Escrow struct {
	tx       Transferer
	newID    func() uuid.UUID
	recorder EscrowRecorder
}

func NewEscrow(tx Transferer) *Escrow {
	return &Escrow{tx: tx, newID: uuid.New}
}

// SetRecorder installs an audit sink. Call before use.
func (e *Escrow) SetRecorder(r EscrowRecorder) { e.recorder = r }

// Validate serves the interactive buy-land hook. Payments from this path
// carry a nil transaction ID.
func (e *Escrow) Validate(ctx context.Context, req LandPurchase, offer *LandOffer) EscrowResult {
	return e.resolve(ctx, req, offer, uuid.Nil, "Land Buy")
}

// Purchase serves programmatic land purchases and tags the payment with a
// fresh transaction ID.
func (e *Escrow) Purchase(ctx context.Context, req LandPurchase, offer *LandOffer) EscrowResult {
	return e.resolve(ctx, req, offer, e.newID(), "Land Purchase")
}

func (e *Escrow) resolve(ctx context.Context, req LandPurchase, offer *LandOffer, txID uuid.UUID, description string) EscrowResult {
	res := e.decide(ctx, req, offer, txID, description)
	if e.recorder != nil {
		rec := EscrowRecord{
			BuyerID:       req.BuyerID,
			ParcelLocalID: req.ParcelLocalID,
			Price:         req.Price,
			State:         res.State,
			Reason:        res.Reason,
			TransactionID: res.TransactionID,
			At:            time.Now().UTC(),
		}
		if offer != nil {
			rec.OwnerID = offer.OwnerID
		}
		e.recorder.RecordEscrow(rec)
	}
	return res
}

func (e *Escrow) decide(ctx context.Context, req LandPurchase, offer *LandOffer, txID uuid.UUID, description string) EscrowResult {
	if reason := check(req, offer); reason != RejectNone {
		return EscrowResult{State: EscrowRejected, Reason: reason}
	}
	ok := e.tx.Transfer(ctx, TransferRequest{
		ID:          txID,
		From:        req.BuyerID,
		To:          offer.OwnerID,
		Amount:      offer.SalePrice,
		Description: description,
		Kind:        KindLandSale,
	})
	if !ok {
		return EscrowResult{State: EscrowRejected, Reason: RejectPaymentFailed, TransactionID: txID}
	}
	return EscrowResult{State: EscrowValidated, Owner: offer.OwnerID, TransactionID: txID}
}

func check(req LandPurchase, offer *LandOffer) RejectReason {
	switch {
	case offer == nil:
		return RejectNoParcel
	case !offer.ForSale():
		return RejectNotForSale
	case !offer.BuyerAllowed(req.BuyerID):
		return RejectWrongBuyer
	case req.Price < offer.SalePrice:
		return RejectUnderpriced
	}
	return RejectNone
}
