package currency_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"gridbank.ai/internal/currency"
	"gridbank.ai/internal/currency/currencytest"
)

func TestEscrow_Validate(t *testing.T) {
	owner, buyer, other := uuid.New(), uuid.New(), uuid.New()
	forSale := func(auth uuid.UUID) *currency.LandOffer {
		return &currency.LandOffer{ParcelLocalID: 1, OwnerID: owner, AuthBuyerID: auth, SalePrice: 1000, Flags: currency.ParcelForSale}
	}

	cases := []struct {
		name   string
		offer  *currency.LandOffer
		price  int64
		funds  int64
		state  currency.EscrowState
		reason currency.RejectReason
		calls  int
	}{
		{name: "no parcel", offer: nil, price: 1000, funds: 5000, state: currency.EscrowRejected, reason: currency.RejectNoParcel},
		{name: "not for sale", offer: &currency.LandOffer{OwnerID: owner, SalePrice: 10}, price: 1000, funds: 5000, state: currency.EscrowRejected, reason: currency.RejectNotForSale},
		{name: "wrong authorized buyer", offer: forSale(other), price: 1000, funds: 5000, state: currency.EscrowRejected, reason: currency.RejectWrongBuyer},
		{name: "underpriced", offer: forSale(uuid.Nil), price: 999, funds: 5000, state: currency.EscrowRejected, reason: currency.RejectUnderpriced},
		{name: "cannot afford", offer: forSale(uuid.Nil), price: 1000, funds: 10, state: currency.EscrowRejected, reason: currency.RejectPaymentFailed, calls: 1},
		{name: "anyone may buy", offer: forSale(uuid.Nil), price: 1000, funds: 5000, state: currency.EscrowValidated, calls: 1},
		{name: "authorized buyer matches", offer: forSale(buyer), price: 1200, funds: 5000, state: currency.EscrowValidated, calls: 1},
		{name: "sell objects flag counts", offer: &currency.LandOffer{OwnerID: owner, SalePrice: 5, Flags: currency.ParcelSellParcelObjects}, price: 5, funds: 5, state: currency.EscrowValidated, calls: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := currencytest.NewMemStoreT(t, nil)
			st.Fund(owner, 0)
			st.Fund(buyer, tc.funds)
			svc := currency.NewService(st, currency.Options{Logger: zaptest.NewLogger(t)})
			esc := currency.NewEscrow(svc)

			res := esc.Validate(context.Background(), currency.LandPurchase{BuyerID: buyer, ParcelLocalID: 1, Price: tc.price}, tc.offer)
			if res.State != tc.state || res.Reason != tc.reason {
				t.Fatalf("result: got %v/%q want %v/%q", res.State, res.Reason, tc.state, tc.reason)
			}
			if st.Calls != tc.calls {
				t.Fatalf("store calls: got %d want %d", st.Calls, tc.calls)
			}
			if res.TransactionID != uuid.Nil {
				t.Fatalf("validate path must use nil transaction id")
			}
			if res.Validated() {
				if res.Owner != owner {
					t.Fatalf("owner: got %s want %s", res.Owner, owner)
				}
				got, _ := st.Balance(context.Background(), owner)
				if got != tc.offer.SalePrice {
					t.Fatalf("owner paid %d want sale price %d", got, tc.offer.SalePrice)
				}
			} else {
				got, _ := st.Balance(context.Background(), buyer)
				if got != tc.funds {
					t.Fatalf("rejected purchase moved money: %d", got)
				}
			}
		})
	}
}

func TestEscrow_PurchaseUsesFreshTransactionID(t *testing.T) {
	owner, buyer := uuid.New(), uuid.New()
	st := currencytest.NewMemStoreT(t, nil)
	st.Fund(owner, 0)
	st.Fund(buyer, 100)
	esc := currency.NewEscrow(currency.NewService(st, currency.Options{}))
	offer := &currency.LandOffer{OwnerID: owner, SalePrice: 40, Flags: currency.ParcelForSale}

	r1 := esc.Purchase(context.Background(), currency.LandPurchase{BuyerID: buyer, Price: 40}, offer)
	r2 := esc.Purchase(context.Background(), currency.LandPurchase{BuyerID: buyer, Price: 40}, offer)
	if !r1.Validated() || !r2.Validated() {
		t.Fatalf("purchases: %+v %+v", r1, r2)
	}
	if r1.TransactionID == uuid.Nil || r1.TransactionID == r2.TransactionID {
		t.Fatalf("purchase ids should be fresh: %s %s", r1.TransactionID, r2.TransactionID)
	}
	if got, _ := st.Balance(context.Background(), buyer); got != 20 {
		t.Fatalf("buyer balance: got %d want 20", got)
	}
}

func TestEscrow_ScenarioC_WrongBuyerAtFullPrice(t *testing.T) {
	owner, c, d := uuid.New(), uuid.New(), uuid.New()
	st := currencytest.NewMemStoreT(t, nil)
	st.Fund(owner, 0)
	st.Fund(d, 5000)
	esc := currency.NewEscrow(currency.NewService(st, currency.Options{}))
	offer := &currency.LandOffer{OwnerID: owner, AuthBuyerID: c, SalePrice: 1000, Flags: currency.ParcelForSale}
	res := esc.Validate(context.Background(), currency.LandPurchase{BuyerID: d, Price: 1000}, offer)
	if res.Validated() || st.Calls != 0 {
		t.Fatalf("expected rejection without transfer: %+v calls=%d", res, st.Calls)
	}
}
