package core

import (
	"time"

	"lease_engine/pkg/finance"
)

// LiquidationOrder asks the swap service to sell lease collateral for LPN
type LiquidationOrder struct {
	ID        string         `json:"id"`
	LeaseID   string         `json:"lease_id"`
	Amount    finance.Coin   `json:"amount"`
	Lpn       finance.Ticker `json:"lpn"`
	Cause     string         `json:"cause"`
	Full      bool           `json:"full"`
	CreatedAt time.Time      `json:"created_at"`
}

// SwapResult reports a completed sale
type SwapResult struct {
	OrderID  string       `json:"order_id"`
	Sold     finance.Coin `json:"sold"`
	Proceeds finance.Coin `json:"proceeds"`
}
