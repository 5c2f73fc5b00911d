package g32

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Packet framing constants.
const (
	// PacketSize is the length of one telemetry record, header included.
	PacketSize = 51

	// LowGasThreshold is the gas weight in grams below which the tank is
	// reported as low.
	LowGasThreshold = 2200

	// minTemperature and maxTemperature bound a plausible reading in °C.
	minTemperature = -50.0
	maxTemperature = 600.0
)

// packetHeader marks the start of every record in the relay stream.
var packetHeader = []byte{0xA3, 0x3A}

// Field offsets, in bytes from the header.
var (
	zoneOffsets  = [4]int{6, 8, 10, 12}
	probeOffsets = [4]int{14, 16, 18, 20}
)

const (
	gasWeightOffset = 22
	lidOffset       = 30
	lightOffset     = 31
	gasLevelOffset  = 48
)

// invalidTemperatures holds raw temperature patterns the grill sends for
// unplugged probes and idle zones. The set was observed on real devices
// and includes byte-swapped variants; keep it exact.
var invalidTemperatures = map[string]struct{}{
	"9600": {},
	"ffff": {},
	"0000": {},
	"ffef": {},
	"feff": {},
}

// Telemetry is one decoded packet from a grill.
//
// Temperatures are nil when the grill reports no valid reading for that
// channel (probe unplugged, zone off, sentinel value).
type Telemetry struct {
	// Serial is the grill the packet came from. Set by the session.
	Serial string `json:"serial"`

	// Zones holds the four burner zone temperatures in °C.
	Zones [4]*float64 `json:"zones"`

	// Probes holds the four meat probe temperatures in °C.
	Probes [4]*float64 `json:"probes"`

	// GasWeight is the remaining gas in grams as measured by the scale.
	GasWeight int `json:"gas_weight"`

	// GasLevel is the gas level in percent.
	GasLevel int `json:"gas_level"`

	// GasLow is true when GasWeight is below LowGasThreshold.
	GasLow bool `json:"gas_low"`

	// LidOpen reports the firebox lid state.
	LidOpen bool `json:"lid_open"`

	// LightOn reports the grill light state.
	LightOn bool `json:"light_on"`

	// Raw is the undecoded record.
	Raw []byte `json:"-"`

	// RawHex is Raw as lowercase hex, kept for the raw dump sensor.
	RawHex string `json:"raw_hex"`

	// ReceivedAt is when the session read the record. Set by the session.
	ReceivedAt time.Time `json:"received_at"`
}

// DecodePacket decodes a single framed record into a Telemetry value.
//
// The frame must be exactly PacketSize bytes and start with the packet
// header. Individual temperature fields that hold a sentinel or an
// implausible value decode to nil; they do not fail the packet.
//
// Parameters:
//   - frame: One record as produced by Framer.Next
//
// Returns:
//   - *Telemetry: Decoded record (Serial and ReceivedAt left empty)
//   - error: ErrInvalidPacket if the frame cannot be decoded
func DecodePacket(frame []byte) (*Telemetry, error) {
	if len(frame) != PacketSize {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrInvalidPacket, len(frame), PacketSize)
	}
	if !bytes.HasPrefix(frame, packetHeader) {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidPacket)
	}

	r := hexRecord(hex.EncodeToString(frame))

	t := &Telemetry{
		Raw:    append([]byte(nil), frame...),
		RawHex: string(r),
	}

	for i, off := range zoneOffsets {
		t.Zones[i] = r.temperature(off)
	}
	for i, off := range probeOffsets {
		t.Probes[i] = r.temperature(off)
	}

	weight, err := r.uint(gasWeightOffset, 2)
	if err != nil {
		return nil, err
	}
	t.GasWeight = int(weight)
	t.GasLow = t.GasWeight < LowGasThreshold

	level, err := r.uint(gasLevelOffset, 1)
	if err != nil {
		return nil, err
	}
	t.GasLevel = int(level)

	lid, err := r.field(lidOffset, 1)
	if err != nil {
		return nil, err
	}
	t.LidOpen = lid == "01"

	light, err := r.field(lightOffset, 1)
	if err != nil {
		return nil, err
	}
	t.LightOn = light == "01"

	return t, nil
}

// Zone returns zone n (1-4) and whether it holds a valid reading.
func (t *Telemetry) Zone(n int) (float64, bool) {
	return reading(t.Zones[:], n)
}

// Probe returns probe n (1-4) and whether it holds a valid reading.
func (t *Telemetry) Probe(n int) (float64, bool) {
	return reading(t.Probes[:], n)
}

// Values flattens the record into sensor keys (zone_1 .. probe_4,
// gas_weight, gas_level, gas_low, lid_open, light_on, raw_hex_dump).
// Missing temperatures map to nil.
func (t *Telemetry) Values() map[string]any {
	v := make(map[string]any, 14)
	for i := range t.Zones {
		v[fmt.Sprintf("zone_%d", i+1)] = floatOrNil(t.Zones[i])
	}
	for i := range t.Probes {
		v[fmt.Sprintf("probe_%d", i+1)] = floatOrNil(t.Probes[i])
	}
	v["gas_weight"] = t.GasWeight
	v["gas_level"] = t.GasLevel
	v["gas_low"] = t.GasLow
	v["lid_open"] = t.LidOpen
	v["light_on"] = t.LightOn
	v["raw_hex_dump"] = t.RawHex
	return v
}

func reading(values []*float64, n int) (float64, bool) {
	if n < 1 || n > len(values) || values[n-1] == nil {
		return 0, false
	}
	return *values[n-1], true
}

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// hexRecord is a record encoded as hex, two characters per byte.
type hexRecord string

// field returns n bytes at byte offset off, as hex.
func (r hexRecord) field(off, n int) (string, error) {
	start, end := off*2, (off+n)*2 //nolint:mnd // two hex chars per byte
	if off < 0 || end > len(r) {
		return "", fmt.Errorf("%w: offset %d out of range", ErrInvalidPacket, off)
	}
	return string(r[start:end]), nil
}

// uint reads an n-byte big-endian unsigned integer at off.
func (r hexRecord) uint(off, n int) (uint64, error) {
	h, err := r.field(off, n)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(h, 16, n*8) //nolint:mnd // bits per byte
	if err != nil {
		return 0, fmt.Errorf("%w: offset %d: %w", ErrInvalidPacket, off, err)
	}
	return v, nil
}

// temperature decodes the 2-byte temperature at off. The first byte's
// hex digits are read as decimal tens of degrees and the second byte's as
// decimal tenths of ten, so "0140" is 1×10 + 40/10 = 14.0.
func (r hexRecord) temperature(off int) *float64 {
	h, err := r.field(off, 2)
	if err != nil {
		return nil
	}
	if _, bad := invalidTemperatures[h]; bad {
		return nil
	}

	whole, err := strconv.ParseUint(h[0:2], 10, 8)
	if err != nil {
		return nil
	}
	tenths, err := strconv.ParseUint(h[2:4], 10, 8)
	if err != nil {
		return nil
	}

	v := float64(whole)*10 + float64(tenths)/10
	if v < minTemperature || v > maxTemperature {
		return nil
	}
	return &v
}
