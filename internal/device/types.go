package device

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// defaultNicknamePrefix is used to name grills that have no nickname.
const defaultNicknamePrefix = "G32 "

// gramsPerKilogram converts scale readings to kilograms.
var gramsPerKilogram = decimal.NewFromInt(1000)

// Grill is one Otto Wilde grill registered to the account.
// Field names follow the cloud API's JSON.
type Grill struct {
	// Serial is the grill's serial number and stable identifier.
	Serial string `json:"serialNumber"`

	// PopKey is the secret the relay requires to subscribe to the grill.
	PopKey string `json:"popKey"`

	// Nickname is the user-assigned name. May be empty; see DisplayName.
	Nickname string `json:"nickname,omitempty"`

	// Firmware is the grill's semantic firmware version.
	Firmware string `json:"firmwareSemanticVersion,omitempty"`

	// GasBuddy describes the installed gas tank.
	GasBuddy GasBuddy `json:"gasbuddyInfo"`
}

// GasBuddy is the gas tank metadata maintained by the cloud.
// Weights are in kilograms.
type GasBuddy struct {
	GasCapacity   decimal.Decimal `json:"gasCapacity"`
	TareWeight    decimal.Decimal `json:"tareWeight"`
	TankInstalled *time.Time      `json:"tankInstalledDate,omitempty"`
	GasConsumed   *time.Time      `json:"tsGasConsumed,omitempty"`
	LastModified  *time.Time      `json:"tsLastModified,omitempty"`
}

// DisplayName returns the nickname, or "G32 " plus the first six
// characters of the serial when no nickname is set.
func (g Grill) DisplayName() string {
	if g.Nickname != "" {
		return g.Nickname
	}
	prefix := g.Serial
	if len(prefix) > 6 { //nolint:mnd // serial prefix shown in default names
		prefix = prefix[:6]
	}
	return defaultNicknamePrefix + prefix
}

// HardwareDescription summarises the tank for device metadata,
// e.g. "capacity: 11kg, tare: 4.2kg".
func (g Grill) HardwareDescription() string {
	return fmt.Sprintf("capacity: %skg, tare: %skg",
		g.GasBuddy.GasCapacity.String(), g.GasBuddy.TareWeight.String())
}

// Validate checks the fields the bridge depends on.
func (g Grill) Validate() error {
	if g.Serial == "" {
		return fmt.Errorf("%w: serial number is required", ErrInvalidGrill)
	}
	if g.PopKey == "" {
		return fmt.Errorf("%w: grill %s has no pop key", ErrInvalidGrill, g.Serial)
	}
	if g.GasBuddy.GasCapacity.IsNegative() || g.GasBuddy.TareWeight.IsNegative() {
		return fmt.Errorf("%w: grill %s has negative gas metadata", ErrInvalidGrill, g.Serial)
	}
	return nil
}

// StaticSensors returns the values that come from the cloud rather than
// the telemetry stream: gas tank timestamps and weights. Unset
// timestamps are omitted.
func (g Grill) StaticSensors() map[string]any {
	s := map[string]any{
		"gas_original_capacity": g.GasBuddy.GasCapacity.InexactFloat64(),
		"gas_tara_weight":       g.GasBuddy.TareWeight.InexactFloat64(),
	}
	if t := g.GasBuddy.TankInstalled; t != nil {
		s["gas_installed"] = t.UTC().Format(time.RFC3339)
	}
	if t := g.GasBuddy.GasConsumed; t != nil {
		s["gas_consumed"] = t.UTC().Format(time.RFC3339)
	}
	if t := g.GasBuddy.LastModified; t != nil {
		s["gas_changed"] = t.UTC().Format(time.RFC3339)
	}
	return s
}

// GasRemainingKg converts a scale reading in grams to kilograms, rounded
// to three decimals.
func GasRemainingKg(grams int) decimal.Decimal {
	return decimal.NewFromInt(int64(grams)).Div(gramsPerKilogram).Round(3) //nolint:mnd // gram precision
}

// GasRemainingPercent returns the scale reading as a share of the tank
// capacity, or false when the capacity is unknown.
func (g Grill) GasRemainingPercent(grams int) (decimal.Decimal, bool) {
	if !g.GasBuddy.GasCapacity.IsPositive() {
		return decimal.Zero, false
	}
	pct := GasRemainingKg(grams).Div(g.GasBuddy.GasCapacity).Mul(decimal.NewFromInt(100)) //nolint:mnd // percent
	return pct.Round(1), true
}
