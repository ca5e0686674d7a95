package extract

import (
	"math"
	"time"

	"github.com/banshee-data/telemetry.report/internal/telemetry/packet"
	"github.com/banshee-data/telemetry.report/internal/telemetry/rolling"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
	"github.com/banshee-data/telemetry.report/internal/units"
)

// Placeholder labels for analyses the stream cannot support yet.
const (
	BalanceNeutral = "neutral"
	CornerUnknown  = "unknown"
)

// WeightTransfer summarises lateral and longitudinal load in g.
type WeightTransfer struct {
	LateralG      rolling.Stats `json:"lateral_g"`
	LongitudinalG rolling.Stats `json:"longitudinal_g"`
}

// Rotation is the body orientation in radians.
type Rotation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// AngularVelocity is the body rotation rate in rad/s.
type AngularVelocity struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// StabilityMetrics holds placeholders for handling analysis. The event
// counts stay 0 and the bias neutral until a detector exists.
type StabilityMetrics struct {
	UndersteerEvents int    `json:"understeer_events"`
	OversteerEvents  int    `json:"oversteer_events"`
	BalanceBias      string `json:"balance_bias"`
}

// CornerAnalysis grades corner phases.
type CornerAnalysis struct {
	EntryStability string `json:"entry_stability"`
	MidCornerGrip  string `json:"mid_corner_grip"`
	ExitTraction   string `json:"exit_traction"`
}

// BalanceSnapshot is the content of balance.json.
type BalanceSnapshot struct {
	WeightTransfer   WeightTransfer   `json:"weight_transfer"`
	Rotation         Rotation         `json:"rotation"`
	AngularVelocity  AngularVelocity  `json:"angular_velocity"`
	StabilityMetrics StabilityMetrics `json:"stability_metrics"`
	CornerAnalysis   CornerAnalysis   `json:"corner_analysis"`
}

// BalanceExtractor derives g-forces from consecutive frames. It is the only
// extractor that carries state between frames beyond its buffers.
type BalanceExtractor struct {
	clock  timeutil.Clock
	source TimeSource

	lateral      *rolling.Buffer
	longitudinal *rolling.Buffer

	primed     bool
	prevVelZ   float64
	prevTime   time.Time
	prevPacket int32
}

// NewBalanceExtractor returns an extractor timing frames with opts' clock or
// packet sequence, per opts.TimeSource.
func NewBalanceExtractor(opts Options) *BalanceExtractor {
	opts = opts.withDefaults()
	return &BalanceExtractor{
		clock:        opts.Clock,
		source:       opts.TimeSource,
		lateral:      rolling.New(opts.WindowSize),
		longitudinal: rolling.New(opts.WindowSize),
	}
}

// Extract adds f's g-force samples and returns the updated snapshot.
// Lateral g is approximated from the yaw rate. Longitudinal g is the change
// in forward velocity over the frame interval; it is 0 on the first frame
// and whenever the interval is not positive.
func (e *BalanceExtractor) Extract(f *packet.Frame) BalanceSnapshot {
	velZ := packet.Widen(f.Velocity.Z)
	yawRate := packet.Widen(f.AngularVelocity.Z)

	now := e.clock.Now()
	longG := 0.0
	if e.primed {
		if dt := e.interval(now, f.PacketID); dt > 0 {
			longG = units.AccelToG((velZ - e.prevVelZ) / dt)
		}
	}
	e.primed = true
	e.prevVelZ = velZ
	e.prevTime = now
	e.prevPacket = f.PacketID

	e.lateral.Add(units.AccelToG(math.Abs(yawRate)))
	e.longitudinal.Add(longG)

	return BalanceSnapshot{
		WeightTransfer: WeightTransfer{
			LateralG:      e.lateral.Stats(),
			LongitudinalG: e.longitudinal.Stats(),
		},
		Rotation: Rotation{
			Pitch: packet.Widen(f.Rotation.X),
			Yaw:   packet.Widen(f.Rotation.Y),
			Roll:  packet.Widen(f.Rotation.Z),
		},
		AngularVelocity: AngularVelocity{
			X: packet.Widen(f.AngularVelocity.X),
			Y: packet.Widen(f.AngularVelocity.Y),
			Z: yawRate,
		},
		StabilityMetrics: StabilityMetrics{
			UndersteerEvents: 0,
			OversteerEvents:  0,
			BalanceBias:      BalanceNeutral,
		},
		CornerAnalysis: CornerAnalysis{
			EntryStability: CornerUnknown,
			MidCornerGrip:  CornerUnknown,
			ExitTraction:   CornerUnknown,
		},
	}
}

// interval returns the seconds since the previous frame.
func (e *BalanceExtractor) interval(now time.Time, packetID int32) float64 {
	if e.source == TimeSourcePacket {
		return float64(packetID-e.prevPacket) / PacketRateHz
	}
	return now.Sub(e.prevTime).Seconds()
}
