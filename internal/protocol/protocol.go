// Package protocol defines the JSON messages exchanged with viewers over
// the websocket link.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeError   = "ERROR"

	// client -> server
	TypeMove                 = "MOVE"
	TypeMoneyBalanceRequest  = "MONEY_BALANCE_REQUEST"
	TypeMoneyTransferRequest = "MONEY_TRANSFER_REQUEST"
	TypeEconomyDataRequest   = "ECONOMY_DATA_REQUEST"
	TypeBuyLand              = "BUY_LAND"

	// server -> client
	TypeMoneyBalance  = "MONEY_BALANCE"
	TypeAlert         = "ALERT"
	TypeEconomyData   = "ECONOMY_DATA"
	TypeLandBuyResult = "LAND_BUY_RESULT"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
