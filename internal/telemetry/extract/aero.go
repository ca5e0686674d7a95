package extract

import (
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/telemetry.report/internal/telemetry/packet"
	"github.com/banshee-data/telemetry.report/internal/telemetry/rolling"
	"github.com/banshee-data/telemetry.report/internal/units"
)

// DownforceSource labels where the downforce figure comes from.
const DownforceSource = "car_database_lookup"

// AeroRideHeight summarises front and rear axle heights in mm.
type AeroRideHeight struct {
	AvgFront     float64   `json:"avg_front"`
	AvgRear      float64   `json:"avg_rear"`
	MinFront     float64   `json:"min_front"`
	MinRear      float64   `json:"min_rear"`
	RakeMM       float64   `json:"rake_mm"`
	SamplesFront []float64 `json:"samples_front"`
	SamplesRear  []float64 `json:"samples_rear"`
}

// DownforceEstimate is the static per-car estimate.
type DownforceEstimate struct {
	Total  float64 `json:"total"`
	Source string  `json:"source"`
}

// SpeedCorrelation lists recent high-speed samples in mph.
type SpeedCorrelation struct {
	HighSpeedZonesMPH []float64 `json:"high_speed_zones_mph"`
	AvgHighSpeedMPH   float64   `json:"avg_high_speed_mph"`
}

// AeroSnapshot is the content of aero.json.
type AeroSnapshot struct {
	RideHeightMM         AeroRideHeight    `json:"ride_height_mm"`
	DownforceEstimateLbs DownforceEstimate `json:"downforce_estimate_lbs"`
	SpeedCorrelation     SpeedCorrelation  `json:"speed_correlation"`
}

// AeroExtractor tracks axle ride heights and high-speed running.
type AeroExtractor struct {
	downforce DownforceTable
	threshold float64
	front     *rolling.Buffer
	rear      *rolling.Buffer
	highSpeed *rolling.Buffer
}

// NewAeroExtractor returns an extractor using opts' window and high-speed
// settings. downforce may be nil.
func NewAeroExtractor(opts Options, downforce DownforceTable) *AeroExtractor {
	opts = opts.withDefaults()
	return &AeroExtractor{
		downforce: downforce,
		threshold: opts.HighSpeedThresholdKPH,
		front:     rolling.New(opts.WindowSize),
		rear:      rolling.New(opts.WindowSize),
		highSpeed: rolling.New(opts.HighSpeedWindow),
	}
}

// Extract adds f's ride height and speed samples and returns the updated
// snapshot.
func (e *AeroExtractor) Extract(f *packet.Frame) AeroSnapshot {
	h := widen4(f.SuspensionHeight)
	e.front.Add(units.MetersToMillimeters(h[packet.FL]+h[packet.FR]) / 2)
	e.rear.Add(units.MetersToMillimeters(h[packet.RL]+h[packet.RR]) / 2)

	if kph := f.SpeedKPH(); kph > e.threshold {
		e.highSpeed.Add(kph)
	}

	front, rear := e.front.Stats(), e.rear.Stats()
	zones := e.highSpeed.Samples()
	avg := 0.0
	if len(zones) > 0 {
		avg = units.KPHToMPHValue(stat.Mean(zones, nil))
	}
	for i, kph := range zones {
		zones[i] = units.KPHToMPHValue(kph)
	}

	return AeroSnapshot{
		RideHeightMM: AeroRideHeight{
			AvgFront:     front.Avg,
			AvgRear:      rear.Avg,
			MinFront:     front.Min,
			MinRear:      rear.Min,
			RakeMM:       rear.Avg - front.Avg,
			SamplesFront: front.Samples,
			SamplesRear:  rear.Samples,
		},
		DownforceEstimateLbs: DownforceEstimate{
			Total:  e.downforce.Estimate(f.CarCode),
			Source: DownforceSource,
		},
		SpeedCorrelation: SpeedCorrelation{
			HighSpeedZonesMPH: zones,
			AvgHighSpeedMPH:   avg,
		},
	}
}
