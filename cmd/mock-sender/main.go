// Command mock-sender streams synthetic encrypted telemetry frames to a
// listener, for exercising the ingestor without a console.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/banshee-data/telemetry.report/internal/telemetry/cipher"
	"github.com/banshee-data/telemetry.report/internal/telemetry/packet"
)

var (
	target = flag.String("target", "127.0.0.1:33740", "UDP address of the listener")
	rate   = flag.Int("rate", 60, "frames per second")
	count  = flag.Int("count", 0, "frames to send, 0 sends until interrupted")
	car    = flag.Int("car", 3462, "car code carried by every frame")
)

// framesPerLap advances the lap counter roughly once a minute at 60 Hz.
const framesPerLap = 3600

// mockFrame builds a plausible mid-corner frame. Values drift slightly with
// id so rolling statistics have something to measure.
func mockFrame(id, car int32) *packet.Frame {
	wobble := float32(math.Sin(float64(id) / 10))
	f := &packet.Frame{
		Magic:                packet.MAGIC,
		Position:             packet.Vec3{X: 100, Y: 5, Z: 200},
		Velocity:             packet.Vec3{Z: 50},
		AngularVelocity:      packet.Vec3{Y: 0.2 * wobble},
		BodyHeight:           0.065,
		EngineRPM:            6000 + 200*wobble,
		FuelLevel:            50,
		FuelCapacity:         100,
		SpeedMPS:             50 + wobble,
		Boost:                1.0,
		OilPressure:          4.5,
		WaterTemp:            85,
		OilTemp:              100,
		TireTemp:             [4]float32{80, 80, 82, 82},
		PacketID:             id,
		CurrentLap:           int16(id/framesPerLap) + 1,
		TotalLaps:            10,
		TimeOnTrackMs:        id * 1000 / 60,
		NumCars:              16,
		RevWarningRPM:        7000,
		RevLimiterRPM:        7500,
		Throttle:             204, // 80%
		RoadPlane:            packet.Vec3{Y: 1},
		TireRPS:              [4]float32{8, 8, 8.2 + 0.1*wobble, 8.2 + 0.1*wobble},
		TireRadius:           [4]float32{0.33, 0.33, 0.33, 0.33},
		SuspensionHeight:     [4]float32{0.030, 0.030, 0.032 + 0.002*wobble, 0.032 + 0.002*wobble},
		GearboxRPM:           6000,
		TransmissionTopSpeed: 1.2,
		GearRatios:           [8]float32{3.2, 2.3, 1.8, 1.5, 1.25, 1.05, 0, 0},
		CarCode:              car,
	}
	f.SetGears(3, 4)
	return f
}

// sendFrames writes n frames (forever when n is 0), paced to one per
// interval. It returns the number of frames written.
func sendFrames(ctx context.Context, w io.Writer, n int, interval time.Duration, car int32) (int, error) {
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	sent := 0
	for id := int32(1); n == 0 || sent < n; id++ {
		if err := limiter.Wait(ctx); err != nil {
			return sent, err
		}
		raw, err := cipher.EncryptWithSeed(packet.Encode(mockFrame(id, car)), uint32(id))
		if err != nil {
			return sent, err
		}
		if _, err := w.Write(raw); err != nil {
			return sent, fmt.Errorf("send frame %d: %w", id, err)
		}
		sent++
		if sent%600 == 0 {
			log.Printf("%d frames sent", sent)
		}
	}
	return sent, nil
}

func main() {
	flag.Parse()
	if *rate <= 0 {
		log.Fatalf("-rate must be positive, got %d", *rate)
	}

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", *target, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Sending car %d frames to %s at %d Hz", *car, *target, *rate)
	sent, err := sendFrames(ctx, conn, *count, time.Second/time.Duration(*rate), int32(*car))
	if err != nil && ctx.Err() == nil {
		log.Fatalf("Stopped after %d frames: %v", sent, err)
	}
	log.Printf("✓ Sent %d frames", sent)
}
