package syncmsg_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"gridbank.ai/internal/currency"
	"gridbank.ai/internal/region"
	"gridbank.ai/internal/region/regiontest"
	"gridbank.ai/internal/syncmsg"
)

func setup(t *testing.T) (*region.Registry, *region.Scene, *syncmsg.Handler) {
	t.Helper()
	reg := region.NewRegistry()
	s := region.NewScene("r1", 100, nil)
	reg.Attach(s)
	return reg, s, syncmsg.NewHandler(reg, zaptest.NewLogger(t))
}

func rootClient(t *testing.T, s *region.Scene, pos region.Vec3) *regiontest.Client {
	t.Helper()
	c := regiontest.NewClient()
	s.AddClient(context.Background(), c, pos)
	if err := s.MakeRoot(context.Background(), c.Agent); err != nil {
		t.Fatalf("MakeRoot: %v", err)
	}
	return c
}

func TestHandle_UpdateMoneyBalanceWithoutSessionIsNoop(t *testing.T) {
	_, s, h := setup(t)
	bystander := rootClient(t, s, region.Vec3{})
	resp, err := h.Handle(context.Background(), syncmsg.Message{
		Method: syncmsg.MethodUpdateMoneyBalance, AgentID: uuid.New(), Amount: 10, Text: "hi",
	})
	if resp != nil || err != nil {
		t.Fatalf("expected nil, nil: %+v %v", resp, err)
	}
	if len(bystander.Balances()) != 0 || len(bystander.Alerts()) != 0 {
		t.Fatalf("message leaked to another session")
	}
}

func TestHandle_UpdateMoneyBalanceChildPresenceIgnored(t *testing.T) {
	_, s, h := setup(t)
	c := regiontest.NewClient()
	s.AddClient(context.Background(), c, region.Vec3{})
	h.Handle(context.Background(), syncmsg.Message{Method: syncmsg.MethodUpdateMoneyBalance, AgentID: c.Agent, Amount: 5})
	if len(c.Balances()) != 0 {
		t.Fatalf("child presence received balance")
	}
}

func TestHandle_UpdateMoneyBalance(t *testing.T) {
	_, s, h := setup(t)
	c := rootClient(t, s, region.Vec3{})
	tx := uuid.New()

	h.Handle(context.Background(), syncmsg.Message{Method: syncmsg.MethodUpdateMoneyBalance, AgentID: c.Agent, Amount: 120, TransactionID: tx})
	if len(c.Alerts()) != 0 {
		t.Fatalf("empty text should not alert")
	}
	h.Handle(context.Background(), syncmsg.Message{Method: syncmsg.MethodUpdateMoneyBalance, AgentID: c.Agent, Amount: 90, Text: "You paid 30", TransactionID: tx})
	if got := c.Alerts(); len(got) != 1 || got[0] != "You paid 30" {
		t.Fatalf("alerts: %v", got)
	}
	bs := c.Balances()
	if len(bs) != 2 {
		t.Fatalf("balances: %+v", bs)
	}
	if bs[0].Balance != 120 || bs[0].TransactionID != tx || !bs[0].Success {
		t.Fatalf("first balance: %+v", bs[0])
	}
	if bs[1].Balance != 90 || bs[1].Description != "You paid 30" {
		t.Fatalf("second balance: %+v", bs[1])
	}
}

func TestHandle_UnknownMethod(t *testing.T) {
	_, _, h := setup(t)
	resp, err := h.Handle(context.Background(), syncmsg.Message{Method: "TeleportAgent", AgentID: uuid.New()})
	if resp != nil || err != nil {
		t.Fatalf("unknown method: %+v %v", resp, err)
	}
	if _, ignored := h.Counts(); ignored != 1 {
		t.Fatalf("ignored count: %d", ignored)
	}
}

func TestHandle_GetLandDataWithoutRegion(t *testing.T) {
	h := syncmsg.NewHandler(region.NewRegistry(), nil)
	_, err := h.Handle(context.Background(), syncmsg.GetLandData(uuid.New()))
	if !errors.Is(err, syncmsg.ErrNoRegion) {
		t.Fatalf("expected ErrNoRegion, got %v", err)
	}
}

func TestHandle_GetLandData(t *testing.T) {
	owner, other := uuid.New(), uuid.New()
	cases := []struct {
		name    string
		parcel  region.Parcel
		auth    func(agent uuid.UUID) uuid.UUID
		success bool
	}{
		{
			name:    "for sale to anyone",
			parcel:  region.Parcel{LocalID: 1, OwnerID: owner, SalePrice: 700, Flags: currency.ParcelForSale, MaxX: 50, MaxY: 50},
			success: true,
		},
		{
			name:    "authorized buyer matches",
			parcel:  region.Parcel{LocalID: 1, OwnerID: owner, SalePrice: 700, Flags: currency.ParcelForSale, MaxX: 50, MaxY: 50},
			auth:    func(agent uuid.UUID) uuid.UUID { return agent },
			success: true,
		},
		{
			name:    "authorized buyer differs",
			parcel:  region.Parcel{LocalID: 1, OwnerID: owner, SalePrice: 700, Flags: currency.ParcelForSale, MaxX: 50, MaxY: 50},
			auth:    func(uuid.UUID) uuid.UUID { return other },
			success: false,
		},
		{
			name:    "not for sale",
			parcel:  region.Parcel{LocalID: 1, OwnerID: owner, MaxX: 50, MaxY: 50},
			success: false,
		},
		{
			name:    "only objects for sale",
			parcel:  region.Parcel{LocalID: 1, OwnerID: owner, Flags: currency.ParcelSellParcelObjects, MaxX: 50, MaxY: 50},
			success: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, s, h := setup(t)
			c := rootClient(t, s, region.Vec3{X: 10, Y: 10})
			p := tc.parcel
			if tc.auth != nil {
				p.AuthBuyerID = tc.auth(c.Agent)
			}
			s.SetParcel(p)

			resp, err := h.Handle(context.Background(), syncmsg.GetLandData(c.Agent))
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if resp == nil || resp.Success != tc.success {
				t.Fatalf("response: %+v want success=%v", resp, tc.success)
			}
			if tc.success && (resp.Land == nil || resp.Land.SalePrice != 700 || resp.RegionID != "r1") {
				t.Fatalf("land data: %+v", resp)
			}
		})
	}
}

func TestHandle_GetLandDataFallsBackToPosition(t *testing.T) {
	_, s, h := setup(t)
	// presence arrives before any parcel exists, so its cached parcel is unset
	c := rootClient(t, s, region.Vec3{X: 5, Y: 5})
	s.SetParcel(region.Parcel{LocalID: 4, SalePrice: 10, Flags: currency.ParcelForSale, MaxX: 10, MaxY: 10})
	resp, err := h.Handle(context.Background(), syncmsg.GetLandData(c.Agent))
	if err != nil || resp == nil || !resp.Success || resp.Land.ParcelLocalID != 4 {
		t.Fatalf("position fallback: %+v %v", resp, err)
	}
}

func TestHandle_GetLandDataNoPresence(t *testing.T) {
	_, _, h := setup(t)
	resp, err := h.Handle(context.Background(), syncmsg.GetLandData(uuid.New()))
	if err != nil || resp == nil || resp.Success {
		t.Fatalf("missing presence: %+v %v", resp, err)
	}
}
