package model

import (
	"log/slog"
	"math"
	"time"
)

// -----------------------------------------------------------------------------
// Account Types
// -----------------------------------------------------------------------------

// Account is a farmed wallet as stored in the account store.
type Account struct {
	WalletAddress string  // Primary key (checksummed 0x address)
	PrivateKey    string  // Hex private key, never logged
	Proxy         string  // Currently assigned proxy URL ("" = none)
	DailyPoints   float64 // Points accrued today (from the scoring service)
	TotalPoints   float64 // Lifetime points
	UpdatedAt     time.Time
}

// LogValue keeps the private key out of structured logs.
func (a Account) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("address", a.WalletAddress),
		slog.String("proxy", a.Proxy),
	)
}

// AccountUpdate is a partial update. Nil fields are left untouched.
type AccountUpdate struct {
	Proxy       *string
	DailyPoints *float64
	TotalPoints *float64
}

// WithProxy returns an update that assigns proxy.
func WithProxy(proxy string) AccountUpdate {
	return AccountUpdate{Proxy: &proxy}
}

// WithPoints returns an update that sets both point counters.
func WithPoints(daily, total float64) AccountUpdate {
	return AccountUpdate{DailyPoints: &daily, TotalPoints: &total}
}

// -----------------------------------------------------------------------------
// Event Types
// -----------------------------------------------------------------------------

// PointsUpdate is a point balance reported by the scoring service.
type PointsUpdate struct {
	WalletAddress string    `json:"wallet_address"`
	DailyPoints   float64   `json:"daily_points"`
	TotalPoints   float64   `json:"total_points"`
	ReceivedAt    time.Time `json:"received_at"`
}

// RoundPoints rounds v to 3 decimal places, half away from zero.
func RoundPoints(v float64) float64 {
	return math.Round(v*1000) / 1000
}
