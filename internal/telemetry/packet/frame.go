package packet

import (
	"math"
	"strconv"

	"github.com/banshee-data/telemetry.report/internal/telemetry/cipher"
)

// FRAME_SIZE is the decrypted frame length. Decode rejects anything else.
const FRAME_SIZE = cipher.PACKET_SIZE

// MAGIC is the frame identifier ("G7S0") found at offset 0 of a correctly
// decrypted frame.
const MAGIC uint32 = 0x47375330

// Wheel indexes used by every per-wheel array.
const (
	FL = iota
	FR
	RL
	RR
)

// WheelNames maps wheel indexes to the labels used in snapshots.
var WheelNames = [4]string{"FL", "FR", "RL", "RR"}

// Vec3 is a raw simulator vector.
type Vec3 struct {
	X float32
	Y float32
	Z float32
}

// Frame holds every field of one decrypted telemetry packet, in simulator
// units (metres, m/s, radians, rad/s, degrees Celsius, milliseconds).
type Frame struct {
	Magic uint32

	Position        Vec3
	Velocity        Vec3
	Rotation        Vec3 // X pitch, Y yaw, Z roll
	NorthOrient     float32
	AngularVelocity Vec3

	BodyHeight float32
	EngineRPM  float32
	NonceSeed  uint32

	FuelLevel    float32
	FuelCapacity float32
	SpeedMPS     float32
	Boost        float32
	OilPressure  float32
	WaterTemp    float32
	OilTemp      float32
	TireTemp     [4]float32

	PacketID          int32
	CurrentLap        int16
	TotalLaps         int16
	BestLapMs         int32
	LastLapMs         int32
	TimeOnTrackMs     int32
	StartPosition     int16
	NumCars           int16
	RevWarningRPM     uint16
	RevLimiterRPM     uint16
	EstimatedTopSpeed int16
	Flags             uint16
	Gears             uint8
	Throttle          uint8
	Brake             uint8

	RoadPlane         Vec3
	RoadPlaneDistance float32

	TireRPS          [4]float32
	TireRadius       [4]float32
	SuspensionHeight [4]float32

	ClutchPedal          float32
	ClutchEngagement     float32
	GearboxRPM           float32
	TransmissionTopSpeed float32
	GearRatios           [8]float32

	CarCode int32
}

// HasMagic reports whether the frame carries the expected identifier. A
// mismatch usually means the packet was decrypted with the wrong nonce.
func (f *Frame) HasMagic() bool {
	return f.Magic == MAGIC
}

// SpeedKPH converts the vehicle speed to km/h.
func (f *Frame) SpeedKPH() float64 {
	return Widen(f.SpeedMPS) * 3.6
}

// ThrottlePct scales the 0-255 throttle byte to 0-100%.
func (f *Frame) ThrottlePct() float64 {
	return float64(f.Throttle) / 2.55
}

// BrakePct scales the 0-255 brake byte to 0-100%.
func (f *Frame) BrakePct() float64 {
	return float64(f.Brake) / 2.55
}

// CurrentGear is the low nibble of the packed gear byte.
func (f *Frame) CurrentGear() int {
	return int(f.Gears & 0x0F)
}

// SuggestedGear is the high nibble of the packed gear byte.
func (f *Frame) SuggestedGear() int {
	return int(f.Gears >> 4)
}

// SetGears packs current and suggested gear into the gear byte.
func (f *Frame) SetGears(current, suggested int) {
	f.Gears = uint8(suggested&0x0F)<<4 | uint8(current&0x0F)
}

// Widen converts a wire float32 to float64 through its shortest decimal
// form, so 0.03 on the wire becomes 0.03 rather than 0.029999999329447746.
// Non-finite values read as 0: snapshots are JSON, which cannot carry them.
func Widen(v float32) float64 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0
	}
	d, err := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
	if err != nil {
		return float64(v)
	}
	return d
}
