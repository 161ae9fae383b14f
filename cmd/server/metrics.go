package main

import (
	"fmt"
	"io"
	"net/http"
)

func (a *app) metricsHandler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	a.writeMetrics(rw)
}

func gauge(w io.Writer, name, help string, v int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, help, name, name, v)
}

func counter(w io.Writer, name, help string, v int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
}

func (a *app) writeMetrics(w io.Writer) {
	st := a.svc.Stats()
	counter(w, "gridbank_transfers_committed_total", "Transfers applied to the ledger.", st.Committed.Load())
	counter(w, "gridbank_transfers_replayed_total", "Transfers answered from a prior commit.", st.Replayed.Load())
	counter(w, "gridbank_transfers_rejected_total", "Transfers refused by validation or funds.", st.Rejected.Load())
	counter(w, "gridbank_transfers_failed_total", "Transfers that hit a store error.", st.Failed.Load())
	counter(w, "gridbank_object_paid_total", "ObjectPaid events fired.", st.ObjectPaid.Load())

	gauge(w, "gridbank_regions_attached", "Regions attached to this process.", int64(a.regions.Len()))
	gauge(w, "gridbank_bridge_regions", "Regions the event bridge is subscribed to.", int64(a.bridge.Attached()))

	handled, ignored := a.handler.Counts()
	counter(w, "gridbank_sync_handled_total", "Cross-process messages handled.", handled)
	counter(w, "gridbank_sync_ignored_total", "Cross-process messages ignored.", ignored)

	if a.ledger != nil {
		counter(w, "gridbank_escrow_audit_dropped_total", "Escrow audit rows discarded.", int64(a.ledger.DroppedAudit()))
		counter(w, "gridbank_escrow_audit_errors_total", "Escrow audit rows the database refused.", int64(a.ledger.AuditErrors()))
	}
	if a.ws != nil {
		ws := a.ws.Stats()
		gauge(w, "gridbank_ws_connected", "Open viewer connections.", ws.Connected.Load())
		counter(w, "gridbank_ws_dropped_total", "Outbound viewer messages dropped on a full queue.", ws.Dropped.Load())
		counter(w, "gridbank_ws_rejected_total", "Viewer handshakes refused.", ws.Rejected.Load())
	}
	if a.bus != nil {
		bs := a.bus.Stats()
		counter(w, "gridbank_bus_sent_total", "Messages published to other processes.", bs.Sent.Load())
		counter(w, "gridbank_bus_received_total", "Messages received from other processes.", bs.Received.Load())
		counter(w, "gridbank_bus_replies_total", "Replies published.", bs.Replies.Load())
		counter(w, "gridbank_bus_dropped_total", "Bus messages dropped.", bs.Dropped.Load())
	}
}
