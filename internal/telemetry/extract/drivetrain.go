package extract

import (
	"math"
	"strconv"

	"github.com/banshee-data/telemetry.report/internal/telemetry/packet"
	"github.com/banshee-data/telemetry.report/internal/telemetry/rolling"
)

// Gears 0 (neutral/reverse) through 8 always appear in gear_usage.
const reportedGears = 9

// PowerDelivery summarises engine speed and pedal inputs.
type PowerDelivery struct {
	RPM             float64   `json:"rpm"`
	AvgRPM          float64   `json:"avg_rpm"`
	MaxRPM          uint16    `json:"max_rpm"`
	ThrottlePct     float64   `json:"throttle_pct"`
	AvgThrottlePct  float64   `json:"avg_throttle_pct"`
	BrakePct        float64   `json:"brake_pct"`
	SamplesRPM      []float64 `json:"samples_rpm"`
	SamplesThrottle []float64 `json:"samples_throttle"`
}

// WheelSpinEvents counts frames where a wheel slipped under throttle.
type WheelSpinEvents struct {
	TotalCount  int     `json:"total_count"`
	FLCount     int     `json:"FL_count"`
	FRCount     int     `json:"FR_count"`
	RLCount     int     `json:"RL_count"`
	RRCount     int     `json:"RR_count"`
	SeverityAvg float64 `json:"severity_avg"`
}

// Gearing is the current gearbox state.
type Gearing struct {
	CurrentGear          int       `json:"current_gear"`
	SuggestedGear        int       `json:"suggested_gear"`
	Ratios               []float64 `json:"ratios"`
	TransmissionTopSpeed float64   `json:"transmission_top_speed"`
}

// EngineTemps carries the fluid readings.
type EngineTemps struct {
	WaterTempC     float64 `json:"water_temp_c"`
	OilTempC       float64 `json:"oil_temp_c"`
	OilPressureBar float64 `json:"oil_pressure_bar"`
}

// DrivetrainSnapshot is the content of drivetrain.json.
type DrivetrainSnapshot struct {
	PowerDelivery   PowerDelivery      `json:"power_delivery"`
	WheelSpinEvents WheelSpinEvents    `json:"wheel_spin_events"`
	GearUsage       map[string]float64 `json:"gear_usage"`
	Gearing         Gearing            `json:"gearing"`
	EngineTemps     EngineTemps        `json:"engine_temps"`
}

// DrivetrainExtractor tracks power delivery, wheel spin and time spent in
// each gear.
type DrivetrainExtractor struct {
	slipThreshold float64
	spinThrottle  float64
	floorKPH      float64

	rpm      *rolling.Buffer
	throttle *rolling.Buffer

	spin        [4]int
	spinSlipSum float64

	gearCounts [16]int
	total      int
}

// NewDrivetrainExtractor returns an extractor using opts' window and wheel
// spin thresholds.
func NewDrivetrainExtractor(opts Options) *DrivetrainExtractor {
	opts = opts.withDefaults()
	return &DrivetrainExtractor{
		slipThreshold: opts.SlipThreshold,
		spinThrottle:  opts.SpinThrottlePct,
		floorKPH:      opts.MovingFloorKPH,
		rpm:           rolling.New(opts.WindowSize),
		throttle:      rolling.New(opts.WindowSize),
	}
}

// Extract adds f's drivetrain samples and returns the updated snapshot.
func (e *DrivetrainExtractor) Extract(f *packet.Frame) DrivetrainSnapshot {
	throttle := f.ThrottlePct()
	e.rpm.Add(packet.Widen(f.EngineRPM))
	e.throttle.Add(throttle)

	if throttle > e.spinThrottle {
		for i, s := range SlipRatios(f, e.floorKPH) {
			if s > e.slipThreshold {
				e.spin[i]++
				e.spinSlipSum += s
			}
		}
	}

	gear := f.CurrentGear()
	e.gearCounts[gear]++
	e.total++

	ratios := make([]float64, len(f.GearRatios))
	for i, r := range f.GearRatios {
		ratios[i] = packet.Widen(r)
	}

	rpm, thr := e.rpm.Stats(), e.throttle.Stats()
	return DrivetrainSnapshot{
		PowerDelivery: PowerDelivery{
			RPM:             rpm.Current,
			AvgRPM:          rpm.Avg,
			MaxRPM:          f.RevLimiterRPM,
			ThrottlePct:     thr.Current,
			AvgThrottlePct:  thr.Avg,
			BrakePct:        f.BrakePct(),
			SamplesRPM:      rpm.Samples,
			SamplesThrottle: thr.Samples,
		},
		WheelSpinEvents: e.spinEvents(),
		GearUsage:       e.GearUsage(),
		Gearing: Gearing{
			CurrentGear:          gear,
			SuggestedGear:        f.SuggestedGear(),
			Ratios:               ratios,
			TransmissionTopSpeed: packet.Widen(f.TransmissionTopSpeed),
		},
		EngineTemps: EngineTemps{
			WaterTempC:     packet.Widen(f.WaterTemp),
			OilTempC:       packet.Widen(f.OilTemp),
			OilPressureBar: packet.Widen(f.OilPressure),
		},
	}
}

func (e *DrivetrainExtractor) spinEvents() WheelSpinEvents {
	ev := WheelSpinEvents{
		FLCount: e.spin[packet.FL],
		FRCount: e.spin[packet.FR],
		RLCount: e.spin[packet.RL],
		RRCount: e.spin[packet.RR],
	}
	for _, n := range e.spin {
		ev.TotalCount += n
	}
	if ev.TotalCount > 0 {
		ev.SeverityAvg = e.spinSlipSum / float64(ev.TotalCount)
	}
	return ev
}

// GearUsage returns the share of frames spent in each gear as a percentage
// rounded to one decimal. Counts are kept exact; rounding happens only here.
// Gears 0-8 are always present, higher gears only once seen.
func (e *DrivetrainExtractor) GearUsage() map[string]float64 {
	usage := make(map[string]float64, reportedGears)
	for gear, n := range e.gearCounts {
		if gear >= reportedGears && n == 0 {
			continue
		}
		pct := 0.0
		if e.total > 0 {
			pct = math.Round(1000*float64(n)/float64(e.total)) / 10
		}
		usage[strconv.Itoa(gear)] = pct
	}
	return usage
}
