package network

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

// HEARTBEAT_PORT is the console port that accepts heartbeats.
const HEARTBEAT_PORT = 33739

// HEARTBEAT_PAYLOAD is the single byte that keeps the console streaming.
var HEARTBEAT_PAYLOAD = []byte("A")

// DefaultHeartbeatInterval stays well inside the console's timeout, which
// stops the stream after about 100 packets without a heartbeat.
const DefaultHeartbeatInterval = time.Second

// Sender writes datagrams. UDPSocket satisfies it.
type Sender interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// Heartbeat periodically asks the console to keep sending telemetry.
type Heartbeat struct {
	sender   Sender
	target   *net.UDPAddr
	interval time.Duration
	clock    timeutil.Clock
}

// ResolveConsole resolves a console address. A bare host gets
// HEARTBEAT_PORT.
func ResolveConsole(address string) (*net.UDPAddr, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(HEARTBEAT_PORT))
	}
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve console address: %w", err)
	}
	return addr, nil
}

// NewHeartbeat returns a heartbeat sending to target every interval.
func NewHeartbeat(sender Sender, target *net.UDPAddr, interval time.Duration, clock timeutil.Clock) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Heartbeat{sender: sender, target: target, interval: interval, clock: clock}
}

// Send writes one heartbeat.
func (h *Heartbeat) Send() error {
	_, err := h.sender.WriteToUDP(HEARTBEAT_PAYLOAD, h.target)
	return err
}

// Run sends a heartbeat immediately and then on every tick until ctx is
// done. Send errors are logged once per failure streak.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	failing := false
	send := func() {
		err := h.Send()
		switch {
		case err != nil && !failing:
			monitoring.Logf("Heartbeat to %s failed: %v", h.target, err)
			failing = true
		case err == nil && failing:
			monitoring.Logf("Heartbeat to %s recovered", h.target)
			failing = false
		}
	}

	send()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			send()
		}
	}
}
