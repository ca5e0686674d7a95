// Package extract turns decoded frames into the six domain snapshots
// (metadata, suspension, tires, aero, drivetrain, balance).
//
// Each extractor owns its rolling buffers and event counters and is touched
// only by the single packet-processing path, so none of them lock. Extract
// never fails: a frame that decoded is assumed well formed, and arithmetic
// edge cases (near-zero speed, no previous sample) are reported as zero.
package extract

import (
	"path/filepath"
	"time"

	"github.com/banshee-data/telemetry.report/internal/telemetry/packet"
	"github.com/banshee-data/telemetry.report/internal/telemetry/rolling"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

// SessionIDLayout formats a session start time into its identifier.
const SessionIDLayout = "20060102_150405"

// SessionContext identifies one capture session. It is created once when the
// extractor set is built and never changes.
type SessionContext struct {
	ID        string
	StartTime time.Time
	OutputDir string
}

// NewSessionContext derives the session identifier from start and places the
// session directory under root.
func NewSessionContext(start time.Time, root string) SessionContext {
	id := start.Format(SessionIDLayout)
	return SessionContext{
		ID:        id,
		StartTime: start,
		OutputDir: filepath.Join(root, id),
	}
}

// TimeSource selects how the balance extractor measures the interval between
// frames.
type TimeSource string

const (
	// TimeSourceWall uses wall-clock time between Extract calls.
	TimeSourceWall TimeSource = "wall"
	// TimeSourcePacket uses the packet sequence delta at PacketRateHz.
	TimeSourcePacket TimeSource = "packet"
)

// PacketRateHz is the simulator's nominal send rate.
const PacketRateHz = 60.0

// Options holds the extractor thresholds. Zero thresholds take the
// defaults unless Resolved is set, in which case they are used as given and
// a zero floor or gate switches that check off. Window sizes below one
// always take the default.
type Options struct {
	WindowSize            int
	BottomingThresholdMM  float64
	SlipThreshold         float64
	MovingFloorKPH        float64
	HighSpeedThresholdKPH float64
	HighSpeedWindow       int
	SpinThrottlePct       float64
	TimeSource            TimeSource
	Clock                 timeutil.Clock
	Resolved              bool
}

// Default thresholds.
const (
	DefaultBottomingThresholdMM  = 5.0
	DefaultSlipThreshold         = 1.15
	DefaultMovingFloorKPH        = 1.0
	DefaultHighSpeedThresholdKPH = 150.0
	DefaultHighSpeedWindow       = 10
	DefaultSpinThrottlePct       = 50.0
)

// DefaultOptions returns the default thresholds with a real clock, marked
// Resolved so callers can override individual fields, zeros included.
func DefaultOptions() Options {
	o := Options{}.withDefaults()
	o.Resolved = true
	return o
}

func (o Options) withDefaults() Options {
	if o.WindowSize <= 0 {
		o.WindowSize = rolling.DefaultCapacity
	}
	if o.HighSpeedWindow <= 0 {
		o.HighSpeedWindow = DefaultHighSpeedWindow
	}
	if !o.Resolved {
		if o.BottomingThresholdMM == 0 {
			o.BottomingThresholdMM = DefaultBottomingThresholdMM
		}
		if o.SlipThreshold == 0 {
			o.SlipThreshold = DefaultSlipThreshold
		}
		if o.MovingFloorKPH == 0 {
			o.MovingFloorKPH = DefaultMovingFloorKPH
		}
		if o.HighSpeedThresholdKPH == 0 {
			o.HighSpeedThresholdKPH = DefaultHighSpeedThresholdKPH
		}
		if o.SpinThrottlePct == 0 {
			o.SpinThrottlePct = DefaultSpinThrottlePct
		}
	}
	if o.TimeSource == "" {
		o.TimeSource = TimeSourceWall
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	return o
}

// WheelStats holds one rolling summary per wheel.
type WheelStats struct {
	FL rolling.Stats `json:"FL"`
	FR rolling.Stats `json:"FR"`
	RL rolling.Stats `json:"RL"`
	RR rolling.Stats `json:"RR"`
}

// WheelValues holds one raw value per wheel.
type WheelValues struct {
	FL float64 `json:"FL"`
	FR float64 `json:"FR"`
	RL float64 `json:"RL"`
	RR float64 `json:"RR"`
}

// wheelBuffers is a set of four per-wheel rolling buffers.
type wheelBuffers [4]*rolling.Buffer

func newWheelBuffers(size int) wheelBuffers {
	var w wheelBuffers
	for i := range w {
		w[i] = rolling.New(size)
	}
	return w
}

func (w wheelBuffers) stats() WheelStats {
	return WheelStats{
		FL: w[packet.FL].Stats(),
		FR: w[packet.FR].Stats(),
		RL: w[packet.RL].Stats(),
		RR: w[packet.RR].Stats(),
	}
}

func wheelValues(v [4]float64) WheelValues {
	return WheelValues{FL: v[packet.FL], FR: v[packet.FR], RL: v[packet.RL], RR: v[packet.RR]}
}

func widen4(v [4]float32) [4]float64 {
	var out [4]float64
	for i, x := range v {
		out[i] = packet.Widen(x)
	}
	return out
}
