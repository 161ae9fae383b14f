// Package syncmsg carries balance notifications and land queries between
// region processes.
package syncmsg

import (
	"github.com/google/uuid"

	"gridbank.ai/internal/currency"
)

const (
	MethodUpdateMoneyBalance = "UpdateMoneyBalance"
	MethodGetLandData        = "GetLandData"
)

// Message is an inbound cross-process message. Which fields are used
// depends on Method.
type Message struct {
	Method        string    `cbor:"Method" json:"method"`
	AgentID       uuid.UUID `cbor:"AgentID" json:"agent_id"`
	Amount        int64     `cbor:"Amount,omitempty" json:"amount,omitempty"`
	Text          string    `cbor:"Message,omitempty" json:"message,omitempty"`
	TransactionID uuid.UUID `cbor:"TransactionID,omitempty" json:"transaction_id,omitempty"`
}

// Response answers a request-style Message.
type Response struct {
	Success  bool                `cbor:"Success" json:"success"`
	RegionID string              `cbor:"RegionID,omitempty" json:"region_id,omitempty"`
	Land     *currency.LandOffer `cbor:"Land,omitempty" json:"land,omitempty"`
}

// UpdateMoneyBalance builds the one-way balance notification for u.
func UpdateMoneyBalance(u currency.BalanceUpdate) Message {
	return Message{
		Method:        MethodUpdateMoneyBalance,
		AgentID:       u.AgentID,
		Amount:        u.Balance,
		Text:          u.Text,
		TransactionID: u.TransactionID,
	}
}

func GetLandData(agent uuid.UUID) Message {
	return Message{Method: MethodGetLandData, AgentID: agent}
}

// IsRequest reports whether method expects a Response.
func IsRequest(method string) bool {
	return method == MethodGetLandData
}
