package extract

import (
	"time"

	"github.com/banshee-data/telemetry.report/internal/telemetry/packet"
	"github.com/banshee-data/telemetry.report/internal/units"
)

// CarInfo identifies the car in a metadata snapshot.
type CarInfo struct {
	Code           int32  `json:"code"`
	Name           string `json:"name"`
	Classification string `json:"classification"`
}

// TrackInfo is not carried by the stream; it is reported as placeholders the
// user can fill in later.
type TrackInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SessionSummary carries lap, fuel and speed state.
type SessionSummary struct {
	StartTime     time.Time `json:"start_time"`
	CurrentLap    int16     `json:"current_lap"`
	TotalLaps     int16     `json:"total_laps"`
	BestLapMs     int32     `json:"best_lap_ms"`
	LastLapMs     int32     `json:"last_lap_ms"`
	TimeOnTrackMs int32     `json:"time_on_track_ms"`
	SpeedKPH      float64   `json:"speed_kph"`
	FuelLevel     float64   `json:"fuel_level"`
	FuelCapacity  float64   `json:"fuel_capacity"`
	IsElectric    bool      `json:"is_electric"`
}

// RaceInfo carries the pre-race grid state.
type RaceInfo struct {
	StartPosition int16 `json:"start_position"`
	NumCars       int16 `json:"num_cars"`
}

// MetadataSnapshot is the content of metadata.json.
type MetadataSnapshot struct {
	SessionID      string         `json:"session_id"`
	Timestamp      time.Time      `json:"timestamp"`
	PacketID       int32          `json:"packet_id"`
	Car            CarInfo        `json:"car"`
	Track          TrackInfo      `json:"track"`
	SessionSummary SessionSummary `json:"session_summary"`
	RaceInfo       RaceInfo       `json:"race_info"`
}

// MetadataExtractor reports session identity and lap state. It keeps no
// history.
type MetadataExtractor struct {
	session SessionContext
	cars    CarTable
}

// NewMetadataExtractor returns an extractor bound to session. cars may be nil.
func NewMetadataExtractor(session SessionContext, cars CarTable) *MetadataExtractor {
	return &MetadataExtractor{session: session, cars: cars}
}

// Extract builds the metadata snapshot for f received at ts.
func (e *MetadataExtractor) Extract(f *packet.Frame, ts time.Time) MetadataSnapshot {
	name, known := e.cars.Name(f.CarCode)
	class := ClassUnknown
	if known {
		class = ClassifyCar(name)
	}

	capacity := packet.Widen(f.FuelCapacity)
	return MetadataSnapshot{
		SessionID: e.session.ID,
		Timestamp: ts,
		PacketID:  f.PacketID,
		Car: CarInfo{
			Code:           f.CarCode,
			Name:           name,
			Classification: class,
		},
		Track: TrackInfo{Name: "Unknown", Type: "balanced"},
		SessionSummary: SessionSummary{
			StartTime:     e.session.StartTime,
			CurrentLap:    f.CurrentLap,
			TotalLaps:     f.TotalLaps,
			BestLapMs:     f.BestLapMs,
			LastLapMs:     f.LastLapMs,
			TimeOnTrackMs: f.TimeOnTrackMs,
			SpeedKPH:      units.MPSToKPHValue(packet.Widen(f.SpeedMPS)),
			FuelLevel:     packet.Widen(f.FuelLevel),
			FuelCapacity:  capacity,
			IsElectric:    capacity <= 0,
		},
		RaceInfo: RaceInfo{
			StartPosition: f.StartPosition,
			NumCars:       f.NumCars,
		},
	}
}
