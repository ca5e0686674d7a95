package extract

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/telemetry.report/internal/telemetry/packet"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

var sessionStart = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// sampleFrame is a car at 180 km/h in 4th gear on 80% throttle.
func sampleFrame() *packet.Frame {
	f := &packet.Frame{
		Magic:            packet.MAGIC,
		SpeedMPS:         50,
		SuspensionHeight: [4]float32{0.030, 0.030, 0.032, 0.032},
		TireTemp:         [4]float32{85, 85, 82, 82},
		TireRadius:       [4]float32{0.3, 0.3, 0.3, 0.3},
		TireRPS:          [4]float32{166.66667, 166.66667, 166.66667, 166.66667},
		EngineRPM:        6000,
		Throttle:         204,
		BodyHeight:       0.065,
		CarCode:          3462,
		CurrentLap:       3,
		TotalLaps:        10,
		FuelLevel:        42,
		FuelCapacity:     100,
		RevLimiterRPM:    8500,
	}
	f.SetGears(4, 5)
	return f
}

func TestNewSessionContext(t *testing.T) {
	sc := NewSessionContext(sessionStart, "sessions")
	assert.Equal(t, "20260314_092653", sc.ID)
	assert.Equal(t, filepath.Join("sessions", "20260314_092653"), sc.OutputDir)
	assert.True(t, sc.StartTime.Equal(sessionStart))
}

func TestMetadataExtractor(t *testing.T) {
	sc := NewSessionContext(sessionStart, t.TempDir())
	cars := CarTable{3462: "Porsche 919 Hybrid '16"}
	e := NewMetadataExtractor(sc, cars)

	ts := sessionStart.Add(5 * time.Second)
	snap := e.Extract(sampleFrame(), ts)

	assert.Equal(t, sc.ID, snap.SessionID)
	assert.True(t, snap.Timestamp.Equal(ts))
	assert.Equal(t, CarInfo{Code: 3462, Name: "Porsche 919 Hybrid '16", Classification: ClassPrototype}, snap.Car)
	assert.Equal(t, TrackInfo{Name: "Unknown", Type: "balanced"}, snap.Track)
	assert.Equal(t, int16(3), snap.SessionSummary.CurrentLap)
	assert.InDelta(t, 180.0, snap.SessionSummary.SpeedKPH, 1e-9)
	assert.False(t, snap.SessionSummary.IsElectric)
}

func TestMetadataExtractor_UnknownCarAndElectric(t *testing.T) {
	e := NewMetadataExtractor(NewSessionContext(sessionStart, ""), nil)
	f := sampleFrame()
	f.CarCode = 999
	f.FuelCapacity = 0

	snap := e.Extract(f, sessionStart)
	assert.Equal(t, "Unknown Car (999)", snap.Car.Name)
	assert.Equal(t, ClassUnknown, snap.Car.Classification)
	assert.True(t, snap.SessionSummary.IsElectric)
}

func TestClassifyCar(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Red Bull X2019 Competition Kart", ClassKart},
		{"Formula Gran Turismo", ClassFormula},
		{"Subaru WRX Rally Car", ClassRally},
		{"Toyota GR010 HYBRID '21", ClassPrototype},
		{"Porsche 911 GT3 R (992) '22", ClassRaceCar},
		{"Mazda Roadster S (ND) '15", ClassStreet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyCar(tt.name))
		})
	}
}

func TestSuspensionExtractor_TravelIsExactMillimetres(t *testing.T) {
	e := NewSuspensionExtractor(Options{})
	snap := e.Extract(sampleFrame())

	assert.Equal(t, 30.0, snap.TravelMM.FL.Current)
	assert.Equal(t, 32.0, snap.TravelMM.RR.Current)
	assert.Equal(t, []float64{30.0}, snap.TravelMM.FR.Samples)
	assert.Equal(t, 65.0, snap.CurrentRideHeightMM.Front)
	assert.Equal(t, snap.CurrentRideHeightMM.Front, snap.CurrentRideHeightMM.Rear)
	assert.False(t, snap.BottomingEvents.Detected)
}

func TestSuspensionExtractor_BottomingIsStrict(t *testing.T) {
	e := NewSuspensionExtractor(Options{})
	f := sampleFrame()
	f.SuspensionHeight = [4]float32{0.004, 0.005, 0.030, 0.030}

	e.Extract(f)
	snap := e.Extract(f)

	assert.True(t, snap.BottomingEvents.Detected)
	assert.Equal(t, 2, snap.BottomingEvents.FLCount)
	assert.Equal(t, 0, snap.BottomingEvents.FRCount, "5 mm equals the threshold and is not bottoming")
	assert.Equal(t, 0, snap.BottomingEvents.RLCount)
}

func TestSuspensionExtractor_WindowEvicts(t *testing.T) {
	e := NewSuspensionExtractor(Options{WindowSize: 3})
	f := sampleFrame()
	var snap SuspensionSnapshot
	for _, h := range []float32{0.010, 0.020, 0.030, 0.040} {
		f.SuspensionHeight[packet.FL] = h
		snap = e.Extract(f)
	}
	assert.Equal(t, []float64{20, 30, 40}, snap.TravelMM.FL.Samples)
	assert.Equal(t, 40.0, snap.TravelMM.FL.Max)
	assert.Equal(t, 20.0, snap.TravelMM.FL.Min)
	assert.InDelta(t, 30.0, snap.TravelMM.FL.Avg, 1e-9)
}

func TestTireExtractor_SlipEvents(t *testing.T) {
	e := NewTireExtractor(Options{})
	f := sampleFrame()
	f.TireRPS = [4]float32{200, 166.66667, 166.66667, 166.66667}

	snap := e.Extract(f)

	assert.InDelta(t, 1.2, snap.SlipRatio.FL.Current, 1e-4)
	assert.Equal(t, 1, snap.SlipRatio.FL.Events)
	assert.InDelta(t, 1.0, snap.SlipRatio.FR.Current, 1e-4)
	assert.Equal(t, 0, snap.SlipRatio.FR.Events)
	assert.Equal(t, 85.0, snap.TempsCelsius.FL.Current)
	assert.Equal(t, 200.0, snap.RotationSpeedRPS.FL)
	assert.Equal(t, WheelValues{}, snap.WearPct)
}

func TestTireExtractor_StationaryCarHasNoSlip(t *testing.T) {
	e := NewTireExtractor(Options{})
	f := sampleFrame()
	f.SpeedMPS = 0.5 / 3.6

	snap := e.Extract(f)
	for _, s := range []SlipStats{snap.SlipRatio.FL, snap.SlipRatio.FR, snap.SlipRatio.RL, snap.SlipRatio.RR} {
		assert.Equal(t, 0.0, s.Current)
		assert.Equal(t, 0, s.Events)
	}
}

func TestOptions_ResolvedKeepsZero(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, DefaultMovingFloorKPH, opts.MovingFloorKPH)
	assert.Equal(t, DefaultSpinThrottlePct, opts.SpinThrottlePct)

	opts.MovingFloorKPH = 0
	opts.SpinThrottlePct = 0

	tires := NewTireExtractor(opts)
	f := sampleFrame()
	f.SpeedMPS = 0.5 / 3.6
	snap := tires.Extract(f)
	assert.Greater(t, snap.SlipRatio.FL.Current, 0.0, "a zero floor measures slip at walking pace")

	drive := NewDrivetrainExtractor(opts)
	f = sampleFrame()
	f.Throttle = 51 // 20%
	f.TireRPS = [4]float32{200, 166.66667, 166.66667, 166.66667}
	var ds DrivetrainSnapshot
	for i := 0; i < 4; i++ {
		ds = drive.Extract(f)
	}
	assert.Equal(t, 4, ds.WheelSpinEvents.FLCount, "a zero throttle gate counts spin at any throttle")
	assert.Equal(t, 0, ds.WheelSpinEvents.FRCount)
}

func TestOptions_UnresolvedZeroTakesDefault(t *testing.T) {
	drive := NewDrivetrainExtractor(Options{})
	f := sampleFrame()
	f.Throttle = 51
	f.TireRPS = [4]float32{200, 166.66667, 166.66667, 166.66667}
	ds := drive.Extract(f)
	assert.Equal(t, 0, ds.WheelSpinEvents.FLCount, "20% is under the default gate")
}

func TestTireSpeedKPH(t *testing.T) {
	assert.InDelta(t, 216.0, TireSpeedKPH(0.3, 200), 1e-9)
	assert.InDelta(t, 216.0, TireSpeedKPH(0.3, -200), 1e-9)
}

func TestAeroExtractor(t *testing.T) {
	e := NewAeroExtractor(Options{}, DownforceTable{3462: 1850})
	snap := e.Extract(sampleFrame())

	assert.InDelta(t, 30.0, snap.RideHeightMM.AvgFront, 1e-9)
	assert.InDelta(t, 32.0, snap.RideHeightMM.AvgRear, 1e-9)
	assert.InDelta(t, 2.0, snap.RideHeightMM.RakeMM, 1e-9)
	assert.Len(t, snap.RideHeightMM.SamplesFront, 1)
	assert.Equal(t, DownforceEstimate{Total: 1850, Source: DownforceSource}, snap.DownforceEstimateLbs)
	require.Len(t, snap.SpeedCorrelation.HighSpeedZonesMPH, 1)
	assert.InDelta(t, 180*0.621371, snap.SpeedCorrelation.HighSpeedZonesMPH[0], 1e-6)
	assert.InDelta(t, 180*0.621371, snap.SpeedCorrelation.AvgHighSpeedMPH, 1e-6)
}

func TestAeroExtractor_SlowRunningHasEmptyZones(t *testing.T) {
	e := NewAeroExtractor(Options{}, nil)
	f := sampleFrame()
	f.SpeedMPS = 40

	snap := e.Extract(f)
	assert.Equal(t, 0.0, snap.DownforceEstimateLbs.Total)
	assert.Equal(t, 0.0, snap.SpeedCorrelation.AvgHighSpeedMPH)

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"high_speed_zones_mph":[]`)
}

func TestAeroExtractor_HighSpeedWindow(t *testing.T) {
	e := NewAeroExtractor(Options{HighSpeedWindow: 2}, nil)
	f := sampleFrame()
	var snap AeroSnapshot
	for _, mps := range []float32{50, 60, 70} {
		f.SpeedMPS = mps
		snap = e.Extract(f)
	}
	require.Len(t, snap.SpeedCorrelation.HighSpeedZonesMPH, 2)
	assert.InDelta(t, 216*0.621371, snap.SpeedCorrelation.HighSpeedZonesMPH[0], 1e-6)
}

func TestDrivetrainExtractor_GearUsage(t *testing.T) {
	e := NewDrivetrainExtractor(Options{})
	f := sampleFrame()
	var snap DrivetrainSnapshot
	for _, g := range []int{3, 4, 4} {
		f.SetGears(g, 5)
		snap = e.Extract(f)
	}

	assert.Equal(t, 33.3, snap.GearUsage["3"])
	assert.Equal(t, 66.7, snap.GearUsage["4"])
	assert.Equal(t, 0.0, snap.GearUsage["0"])
	assert.Len(t, snap.GearUsage, 9)
	assert.Equal(t, 4, snap.Gearing.CurrentGear)
	assert.Equal(t, 5, snap.Gearing.SuggestedGear)
	assert.Len(t, snap.Gearing.Ratios, 8)
}

func TestDrivetrainExtractor_PowerDelivery(t *testing.T) {
	e := NewDrivetrainExtractor(Options{})
	f := sampleFrame()
	e.Extract(f)
	f.EngineRPM = 7000
	f.Brake = 255
	snap := e.Extract(f)

	assert.Equal(t, 7000.0, snap.PowerDelivery.RPM)
	assert.InDelta(t, 100.0, snap.PowerDelivery.BrakePct, 1e-9)
	assert.Equal(t, 6500.0, snap.PowerDelivery.AvgRPM)
	assert.Equal(t, uint16(8500), snap.PowerDelivery.MaxRPM)
	assert.InDelta(t, 80.0, snap.PowerDelivery.ThrottlePct, 1e-9)
	assert.Equal(t, []float64{6000, 7000}, snap.PowerDelivery.SamplesRPM)
}

func TestDrivetrainExtractor_WheelSpinNeedsThrottle(t *testing.T) {
	e := NewDrivetrainExtractor(Options{})
	f := sampleFrame()
	f.TireRPS = [4]float32{166.66667, 166.66667, 200, 200}

	f.Throttle = 255
	e.Extract(f)
	f.Throttle = 0
	snap := e.Extract(f)

	assert.Equal(t, 0, snap.WheelSpinEvents.FLCount)
	assert.Equal(t, 1, snap.WheelSpinEvents.RLCount)
	assert.Equal(t, 1, snap.WheelSpinEvents.RRCount)
	assert.Equal(t, 2, snap.WheelSpinEvents.TotalCount)
	assert.InDelta(t, 1.2, snap.WheelSpinEvents.SeverityAvg, 1e-4)
}

func TestBalanceExtractor_WallClock(t *testing.T) {
	clock := timeutil.NewMockClock(sessionStart)
	e := NewBalanceExtractor(Options{Clock: clock})
	f := sampleFrame()
	f.Velocity.Z = 10
	f.AngularVelocity.Z = -0.981

	first := e.Extract(f)
	assert.Equal(t, 0.0, first.WeightTransfer.LongitudinalG.Current, "no previous frame")
	assert.InDelta(t, 0.1, first.WeightTransfer.LateralG.Current, 1e-6)

	clock.Advance(100 * time.Millisecond)
	f.Velocity.Z = 11
	second := e.Extract(f)
	assert.InDelta(t, 10/9.81, second.WeightTransfer.LongitudinalG.Current, 1e-9)

	f.Velocity.Z = 12
	third := e.Extract(f)
	assert.Equal(t, 0.0, third.WeightTransfer.LongitudinalG.Current, "zero interval")
	assert.Len(t, third.WeightTransfer.LongitudinalG.Samples, 3)
}

func TestBalanceExtractor_PacketClock(t *testing.T) {
	clock := timeutil.NewMockClock(sessionStart)
	e := NewBalanceExtractor(Options{Clock: clock, TimeSource: TimeSourcePacket})
	f := sampleFrame()
	f.PacketID = 100
	f.Velocity.Z = 10
	e.Extract(f)

	f.PacketID = 106
	f.Velocity.Z = 11
	snap := e.Extract(f)
	assert.InDelta(t, 10/9.81, snap.WeightTransfer.LongitudinalG.Current, 1e-9)
}

func TestBalanceExtractor_Placeholders(t *testing.T) {
	e := NewBalanceExtractor(Options{})
	f := sampleFrame()
	f.Rotation = packet.Vec3{X: 0.1, Y: 0.2, Z: 0.3}

	snap := e.Extract(f)
	assert.Equal(t, Rotation{Pitch: 0.1, Yaw: 0.2, Roll: 0.3}, snap.Rotation)
	assert.Equal(t, StabilityMetrics{BalanceBias: BalanceNeutral}, snap.StabilityMetrics, "event counts stay 0")
	assert.Equal(t, CornerAnalysis{CornerUnknown, CornerUnknown, CornerUnknown}, snap.CornerAnalysis)
}

func TestSetExtract_JSONKeys(t *testing.T) {
	set := NewSet(NewSessionContext(sessionStart, ""), nil, nil, Options{Clock: timeutil.NewMockClock(sessionStart)})
	snaps := set.Extract(sampleFrame(), sessionStart)

	for name, v := range map[string]any{
		"metadata":   snaps.Metadata,
		"suspension": snaps.Suspension,
		"tires":      snaps.Tires,
		"aero":       snaps.Aero,
		"drivetrain": snaps.Drivetrain,
		"balance":    snaps.Balance,
	} {
		raw, err := json.Marshal(v)
		require.NoError(t, err, name)
		assert.NotContains(t, string(raw), "null", name)
	}

	raw, err := json.Marshal(snaps.Tires)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"slip_ratio":{"FL":{"current":`), "slip stats are flattened: %s", raw)
	assert.Contains(t, string(raw), `"events":0`)
}
