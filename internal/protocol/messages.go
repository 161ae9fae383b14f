package protocol

import "gridbank.ai/internal/currency"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	AgentID         string     `json:"agent_id"`
	SessionID       string     `json:"session_id,omitempty"`
	Name            string     `json:"name,omitempty"`
	RegionID        string     `json:"region_id"`
	Pos             [3]float64 `json:"pos,omitempty"`
	MaxQueue        int        `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentID         string `json:"agent_id"`
	SessionID       string `json:"session_id"`
	RegionID        string `json:"region_id"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

type MoveMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Pos             [3]float64 `json:"pos"`
}

type MoneyBalanceRequestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentID         string `json:"agent_id"`
	SessionID       string `json:"session_id"`
	TransactionID   string `json:"transaction_id,omitempty"`
}

type MoneyTransferRequestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	TargetID        string `json:"target_id"`
	Amount          int64  `json:"amount"`
	// Kind is the numeric transaction kind; zero lets the server pick.
	Kind        int32  `json:"kind,omitempty"`
	Description string `json:"description,omitempty"`
}

type EconomyDataRequestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

type BuyLandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ParcelLocalID   int    `json:"parcel_local_id"`
	Price           int64  `json:"price"`
}

type MoneyBalanceMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	TransactionID   string `json:"transaction_id"`
	Success         bool   `json:"success"`
	Description     string `json:"description,omitempty"`
	Balance         int64  `json:"balance"`
}

type AlertMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Message         string `json:"message"`
}

type EconomyDataMsg struct {
	Type            string               `json:"type"`
	ProtocolVersion string               `json:"protocol_version"`
	Economy         currency.EconomyData `json:"economy"`
}

type LandBuyResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ParcelLocalID   int    `json:"parcel_local_id"`
	Validated       bool   `json:"validated"`
	SellerID        string `json:"seller_id,omitempty"`
	Code            string `json:"code,omitempty"`
}
