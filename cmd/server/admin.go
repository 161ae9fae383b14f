package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gridbank.ai/internal/currency"
	"gridbank.ai/internal/region"
	"gridbank.ai/internal/syncmsg"
)

// Loopback-only operator endpoints.
func (a *app) adminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/balance", a.local(http.MethodGet, a.handleBalance))
	mux.HandleFunc("/admin/v1/history", a.local(http.MethodGet, a.handleHistory))
	mux.HandleFunc("/admin/v1/purchases", a.local(http.MethodGet, a.handlePurchases))
	mux.HandleFunc("/admin/v1/fees", a.local(http.MethodGet, a.handleFees))
	mux.HandleFunc("/admin/v1/land", a.local(http.MethodGet, a.handleLandData))
	mux.HandleFunc("/admin/v1/land/purchase", a.local(http.MethodPost, a.handleLandPurchase))
	mux.HandleFunc("/admin/v1/charge", a.local(http.MethodPost, a.handleCharge))
	mux.HandleFunc("/admin/v1/message", a.local(http.MethodPost, a.handleMessage))
	mux.HandleFunc("/admin/v1/regions", a.local(http.MethodGet, a.handleRegions))
	mux.HandleFunc("/admin/v1/regions/detach", a.local(http.MethodPost, a.handleDetach))
	mux.HandleFunc("/admin/v1/regions/attach", a.local(http.MethodPost, a.handleAttach))
	mux.HandleFunc("/admin/v1/stipends/run", a.local(http.MethodPost, a.handleStipends))
}

func (a *app) local(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeErr(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, map[string]any{"ok": false, "error": err.Error()})
}

var errMissingAgent = errors.New("agent must be a uuid")

func queryUUID(r *http.Request, key string) (uuid.UUID, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(v)
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func (a *app) handleBalance(rw http.ResponseWriter, r *http.Request) {
	agent, err := queryUUID(r, "agent")
	if err != nil || agent == uuid.Nil {
		writeErr(rw, http.StatusBadRequest, errMissingAgent)
		return
	}
	bal, err := a.svc.Balance(r.Context(), agent)
	if errors.Is(err, currency.ErrUnknownAccount) {
		writeErr(rw, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "agent": agent, "balance": bal})
}

// historyQuery reads to/from/kind/period/period_type/offset/limit.
func historyQuery(r *http.Request, now time.Time) (currency.HistoryQuery, error) {
	var q currency.HistoryQuery
	var err error
	if q.To, err = queryUUID(r, "to"); err != nil {
		return q, err
	}
	if q.From, err = queryUUID(r, "from"); err != nil {
		return q, err
	}
	for _, k := range r.URL.Query()["kind"] {
		kind, ok := currency.ParseKind(k)
		if !ok {
			return q, errors.New("unknown kind " + k)
		}
		q.Kinds = append(q.Kinds, kind)
	}
	if p := queryInt(r, "period"); p > 0 {
		if q.Start, q.End, err = currency.PeriodRange(p, r.URL.Query().Get("period_type"), now); err != nil {
			return q, err
		}
	}
	q.Offset = queryInt(r, "offset")
	q.Limit = queryInt(r, "limit")
	return q, nil
}

func (a *app) handleHistory(rw http.ResponseWriter, r *http.Request) {
	q, err := historyQuery(r, time.Now())
	if err != nil {
		writeErr(rw, http.StatusBadRequest, err)
		return
	}
	txs, err := a.svc.TransactionHistory(r.Context(), q)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	n, err := a.svc.Store().CountTransactions(r.Context(), q)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "total": n, "transactions": txs})
}

func (a *app) handlePurchases(rw http.ResponseWriter, r *http.Request) {
	agent, err := queryUUID(r, "agent")
	if err != nil || agent == uuid.Nil {
		writeErr(rw, http.StatusBadRequest, errMissingAgent)
		return
	}
	q := currency.HistoryQuery{From: agent, Offset: queryInt(r, "offset"), Limit: queryInt(r, "limit")}
	txs, err := a.svc.PurchaseHistory(r.Context(), q)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	n, err := a.svc.NumberOfPurchases(r.Context(), agent)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "total": n, "purchases": txs})
}

func (a *app) handleFees(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"ok":             true,
		"upload":         a.svc.UploadCharge(),
		"group_creation": a.svc.GroupCreationCharge(),
		"directory_fee":  a.svc.DirectoryFeeCharge(),
		"client_port":    a.svc.ClientPort(),
	})
}

func (a *app) handleLandData(rw http.ResponseWriter, r *http.Request) {
	agent, err := queryUUID(r, "agent")
	if err != nil || agent == uuid.Nil {
		writeErr(rw, http.StatusBadRequest, errMissingAgent)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.cfg.RequestTimeout)
	defer cancel()
	resp, err := a.delivery.LandData(ctx, agent)
	switch {
	case errors.Is(err, syncmsg.ErrNoRegion):
		writeErr(rw, http.StatusNotFound, err)
	case err != nil:
		writeErr(rw, http.StatusBadGateway, err)
	default:
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "land": resp})
	}
}

type landPurchaseReq struct {
	RegionID      string    `json:"region_id"`
	Buyer         uuid.UUID `json:"buyer"`
	ParcelLocalID int       `json:"parcel_local_id"`
	Price         int64     `json:"price"`
}

func (a *app) handleLandPurchase(rw http.ResponseWriter, r *http.Request) {
	var req landPurchaseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(rw, http.StatusBadRequest, err)
		return
	}
	if req.Buyer == uuid.Nil {
		writeErr(rw, http.StatusBadRequest, errors.New("buyer must be a uuid"))
		return
	}
	res, err := a.bridge.PurchaseLand(r.Context(), req.RegionID, req.Buyer, req.ParcelLocalID, req.Price)
	if errors.Is(err, region.ErrParcelChanged) {
		writeJSON(rw, http.StatusConflict, map[string]any{
			"ok":             false,
			"error":          err.Error(),
			"paid":           true,
			"seller":         res.Owner,
			"transaction_id": res.TransactionID,
		})
		return
	}
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	status := http.StatusOK
	if !res.Validated() {
		status = http.StatusConflict
	}
	writeJSON(rw, status, map[string]any{
		"ok":             res.Validated(),
		"state":          res.State.String(),
		"reason":         res.Reason,
		"seller":         res.Owner,
		"transaction_id": res.TransactionID,
	})
}

type chargeReq struct {
	Agent       uuid.UUID `json:"agent"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	Kind        string    `json:"kind"`
}

func (a *app) handleCharge(rw http.ResponseWriter, r *http.Request) {
	var req chargeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(rw, http.StatusBadRequest, err)
		return
	}
	kind := currency.KindUploadCharge
	if req.Kind != "" {
		k, ok := currency.ParseKind(req.Kind)
		if !ok {
			writeErr(rw, http.StatusBadRequest, errors.New("unknown kind "+req.Kind))
			return
		}
		kind = k
	}
	ok := a.svc.Charge(r.Context(), req.Agent, req.Amount, req.Description, kind)
	status := http.StatusOK
	if !ok {
		status = http.StatusConflict
	}
	writeJSON(rw, status, map[string]any{"ok": ok})
}

type messageReq struct {
	Agent uuid.UUID `json:"agent"`
	Text  string    `json:"text"`
}

func (a *app) handleMessage(rw http.ResponseWriter, r *http.Request) {
	var req messageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(rw, http.StatusBadRequest, err)
		return
	}
	ok := a.svc.SendGridMessage(r.Context(), req.Agent, req.Text, uuid.Nil)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": ok})
}

func (a *app) handleRegions(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "attached": a.regions.IDs(), "subscribed": a.bridge.Attached()})
}

func (a *app) handleDetach(rw http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if !a.regions.Detach(id) {
		writeErr(rw, http.StatusNotFound, errors.New("region not attached: "+id))
		return
	}
	a.log.Info("region detached", zap.String("region", id))
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (a *app) handleAttach(rw http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	s, ok := a.scenes[id]
	if !ok {
		writeErr(rw, http.StatusNotFound, errors.New("unknown region: "+id))
		return
	}
	if !a.regions.Attach(s) {
		writeErr(rw, http.StatusConflict, errors.New("region already attached: "+id))
		return
	}
	a.log.Info("region attached", zap.String("region", id))
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (a *app) handleStipends(rw http.ResponseWriter, r *http.Request) {
	if a.stipends == nil {
		writeErr(rw, http.StatusConflict, errors.New("stipends disabled"))
		return
	}
	n, err := a.stipends.RunOnce(r.Context(), time.Now())
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "paid": n})
}
