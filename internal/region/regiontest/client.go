package regiontest

import (
	"sync"

	"github.com/google/uuid"

	"gridbank.ai/internal/currency"
	"gridbank.ai/internal/region"
)

// BalanceMsg is one recorded SendMoneyBalance call.
type BalanceMsg struct {
	TransactionID uuid.UUID
	Success       bool
	Description   string
	Balance       int64
}

// Client is a region.Client that records everything sent to it.
type Client struct {
	region.HandlerSet

	Agent   uuid.UUID
	Session uuid.UUID

	mu       sync.Mutex
	balances []BalanceMsg
	alerts   []string
	economy  []currency.EconomyData
}

func NewClient() *Client {
	return &Client{Agent: uuid.New(), Session: uuid.New()}
}

func (c *Client) AgentID() uuid.UUID   { return c.Agent }
func (c *Client) SessionID() uuid.UUID { return c.Session }

func (c *Client) SendMoneyBalance(txID uuid.UUID, success bool, description []byte, balance int64) {
	c.mu.Lock()
	c.balances = append(c.balances, BalanceMsg{TransactionID: txID, Success: success, Description: string(description), Balance: balance})
	c.mu.Unlock()
}

func (c *Client) SendAlert(text string) {
	c.mu.Lock()
	c.alerts = append(c.alerts, text)
	c.mu.Unlock()
}

func (c *Client) SendEconomyData(d currency.EconomyData) {
	c.mu.Lock()
	c.economy = append(c.economy, d)
	c.mu.Unlock()
}

func (c *Client) Balances() []BalanceMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]BalanceMsg(nil), c.balances...)
}

func (c *Client) Alerts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.alerts...)
}

func (c *Client) Economy() []currency.EconomyData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]currency.EconomyData(nil), c.economy...)
}

// LastBalance returns the most recent balance message.
func (c *Client) LastBalance() (BalanceMsg, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.balances) == 0 {
		return BalanceMsg{}, false
	}
	return c.balances[len(c.balances)-1], true
}
