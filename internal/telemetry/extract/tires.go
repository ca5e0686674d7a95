package extract

import (
	"math"

	"github.com/banshee-data/telemetry.report/internal/telemetry/packet"
	"github.com/banshee-data/telemetry.report/internal/telemetry/rolling"
	"github.com/banshee-data/telemetry.report/internal/units"
)

// SlipStats is a slip ratio summary plus the number of frames above the slip
// threshold.
type SlipStats struct {
	rolling.Stats
	Events int `json:"events"`
}

// WheelSlip holds one SlipStats per wheel.
type WheelSlip struct {
	FL SlipStats `json:"FL"`
	FR SlipStats `json:"FR"`
	RL SlipStats `json:"RL"`
	RR SlipStats `json:"RR"`
}

// TiresSnapshot is the content of tires.json.
type TiresSnapshot struct {
	TempsCelsius     WheelStats  `json:"temps_celsius"`
	SlipRatio        WheelSlip   `json:"slip_ratio"`
	RotationSpeedRPS WheelValues `json:"rotation_speed_rps"`
	WearPct          WheelValues `json:"wear_pct"`
}

// TireSpeedKPH is the surface speed of a tire in km/h.
func TireSpeedKPH(radiusM, rps float64) float64 {
	return math.Abs(units.MPSToKPH * radiusM * rps)
}

// SlipRatios returns tire speed over vehicle speed for each wheel. Below
// floorKPH the car is treated as stationary and every ratio is 0.
func SlipRatios(f *packet.Frame, floorKPH float64) [4]float64 {
	var slip [4]float64
	speed := f.SpeedKPH()
	if speed <= floorKPH {
		return slip
	}
	radius := widen4(f.TireRadius)
	for i, rps := range widen4(f.TireRPS) {
		slip[i] = TireSpeedKPH(radius[i], rps) / speed
	}
	return slip
}

// TireExtractor tracks tire temperatures and slip.
type TireExtractor struct {
	threshold float64
	floorKPH  float64
	temps     wheelBuffers
	slip      wheelBuffers
	events    [4]int
}

// NewTireExtractor returns an extractor using opts' window, slip threshold
// and moving floor.
func NewTireExtractor(opts Options) *TireExtractor {
	opts = opts.withDefaults()
	return &TireExtractor{
		threshold: opts.SlipThreshold,
		floorKPH:  opts.MovingFloorKPH,
		temps:     newWheelBuffers(opts.WindowSize),
		slip:      newWheelBuffers(opts.WindowSize),
	}
}

// Extract adds f's tire samples and returns the updated snapshot.
func (e *TireExtractor) Extract(f *packet.Frame) TiresSnapshot {
	for i, t := range widen4(f.TireTemp) {
		e.temps[i].Add(t)
	}
	for i, s := range SlipRatios(f, e.floorKPH) {
		e.slip[i].Add(s)
		if s > e.threshold {
			e.events[i]++
		}
	}

	slip := func(i int) SlipStats {
		return SlipStats{Stats: e.slip[i].Stats(), Events: e.events[i]}
	}
	return TiresSnapshot{
		TempsCelsius: e.temps.stats(),
		SlipRatio: WheelSlip{
			FL: slip(packet.FL),
			FR: slip(packet.FR),
			RL: slip(packet.RL),
			RR: slip(packet.RR),
		},
		RotationSpeedRPS: wheelValues(widen4(f.TireRPS)),
		WearPct:          WheelValues{},
	}
}
