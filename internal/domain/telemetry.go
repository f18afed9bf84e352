package domain

import "time"

// Telemetry event names and categories.
const (
	EventTokenDetected = "Token Detected"
	CategoryWallet     = "Wallet"
)

// Token standards and asset types reported with detection events.
const (
	TokenStandardERC20 = "ERC20"
	AssetTypeToken     = "TOKEN"
)

// TelemetryEvent is one analytics record.
type TelemetryEvent struct {
	ID         string         `json:"id"` // uuid
	Name       string         `json:"event"`
	Category   string         `json:"category"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
