package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"gridbank.ai/internal/currency"
	"gridbank.ai/internal/protocol"
	"gridbank.ai/internal/region"
)

// conn is the region.Client for one websocket session. Outbound messages
// are queued for the writer goroutine; a full queue drops the message.
type conn struct {
	region.HandlerSet

	agent   uuid.UUID
	session uuid.UUID
	start   region.Vec3

	mu      sync.Mutex
	out     chan []byte
	closed  bool
	dropped *atomic.Int64
}

var _ region.Client = (*conn)(nil)

func newConn(agent, session uuid.UUID, queue int, dropped *atomic.Int64) *conn {
	return &conn{agent: agent, session: session, out: make(chan []byte, queue), dropped: dropped}
}

func (c *conn) AgentID() uuid.UUID   { return c.agent }
func (c *conn) SessionID() uuid.UUID { return c.session }

func (c *conn) SendMoneyBalance(txID uuid.UUID, success bool, description []byte, balance int64) {
	c.send(protocol.MoneyBalanceMsg{
		Type:            protocol.TypeMoneyBalance,
		ProtocolVersion: protocol.Version,
		TransactionID:   txID.String(),
		Success:         success,
		Description:     string(description),
		Balance:         balance,
	})
}

func (c *conn) SendAlert(text string) {
	c.send(protocol.AlertMsg{Type: protocol.TypeAlert, ProtocolVersion: protocol.Version, Message: text})
}

func (c *conn) SendEconomyData(d currency.EconomyData) {
	c.send(protocol.EconomyDataMsg{Type: protocol.TypeEconomyData, ProtocolVersion: protocol.Version, Economy: d})
}

func (c *conn) sendError(code, msg string) {
	c.send(protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: code, Message: msg})
}

func (c *conn) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- b:
	default:
		c.dropped.Add(1)
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}
