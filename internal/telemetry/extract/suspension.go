package extract

import (
	"github.com/banshee-data/telemetry.report/internal/telemetry/packet"
	"github.com/banshee-data/telemetry.report/internal/units"
)

// BottomingEvents counts frames whose travel fell below the threshold.
type BottomingEvents struct {
	Detected bool `json:"detected"`
	FLCount  int  `json:"FL_count"`
	FRCount  int  `json:"FR_count"`
	RLCount  int  `json:"RL_count"`
	RRCount  int  `json:"RR_count"`
}

// RideHeight is the body height in mm. The stream has a single value, so
// front and rear are equal.
type RideHeight struct {
	Front float64 `json:"front"`
	Rear  float64 `json:"rear"`
}

// RoadSurface is the road plane under the car.
type RoadSurface struct {
	PlaneX   float64 `json:"plane_x"`
	PlaneY   float64 `json:"plane_y"`
	PlaneZ   float64 `json:"plane_z"`
	Distance float64 `json:"distance"`
}

// SuspensionSnapshot is the content of suspension.json.
type SuspensionSnapshot struct {
	TravelMM            WheelStats      `json:"travel_mm"`
	BottomingEvents     BottomingEvents `json:"bottoming_events"`
	CurrentRideHeightMM RideHeight      `json:"current_ride_height_mm"`
	RoadSurface         RoadSurface     `json:"road_surface"`
}

// SuspensionExtractor tracks per-wheel travel and bottoming.
type SuspensionExtractor struct {
	threshold float64
	travel    wheelBuffers
	bottoming [4]int
}

// NewSuspensionExtractor returns an extractor using opts' window and
// bottoming threshold.
func NewSuspensionExtractor(opts Options) *SuspensionExtractor {
	opts = opts.withDefaults()
	return &SuspensionExtractor{
		threshold: opts.BottomingThresholdMM,
		travel:    newWheelBuffers(opts.WindowSize),
	}
}

// Extract adds f's travel samples and returns the updated snapshot.
func (e *SuspensionExtractor) Extract(f *packet.Frame) SuspensionSnapshot {
	for i, h := range widen4(f.SuspensionHeight) {
		mm := units.MetersToMillimeters(h)
		e.travel[i].Add(mm)
		if mm < e.threshold {
			e.bottoming[i]++
		}
	}

	body := units.MetersToMillimeters(packet.Widen(f.BodyHeight))
	return SuspensionSnapshot{
		TravelMM: e.travel.stats(),
		BottomingEvents: BottomingEvents{
			Detected: e.bottoming != [4]int{},
			FLCount:  e.bottoming[packet.FL],
			FRCount:  e.bottoming[packet.FR],
			RLCount:  e.bottoming[packet.RL],
			RRCount:  e.bottoming[packet.RR],
		},
		CurrentRideHeightMM: RideHeight{Front: body, Rear: body},
		RoadSurface: RoadSurface{
			PlaneX:   packet.Widen(f.RoadPlane.X),
			PlaneY:   packet.Widen(f.RoadPlane.Y),
			PlaneZ:   packet.Widen(f.RoadPlane.Z),
			Distance: packet.Widen(f.RoadPlaneDistance),
		},
	}
}
