// Package network receives the simulator's telemetry datagrams, keeps the
// stream alive with heartbeats, and optionally relays or replays traffic.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/telemetry/cipher"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

// DEFAULT_LISTEN_PORT is where the console sends telemetry.
const DEFAULT_LISTEN_PORT = 33740

// PacketHandler consumes one raw datagram. The buffer is reused after the
// call returns.
type PacketHandler interface {
	HandlePacket(raw []byte) error
}

// PacketStats is the statistics sink used by the listener.
type PacketStats interface {
	DropCounter
	LogStats()
}

// UDPListener receives datagrams and hands them to a PacketHandler, one at a
// time in arrival order.
type UDPListener struct {
	address           string
	rcvBuf            int
	logInterval       time.Duration
	stats             PacketStats
	forwarder         *PacketForwarder
	handler           PacketHandler
	factory           UDPSocketFactory
	console           *net.UDPAddr
	heartbeatInterval time.Duration
	clock             timeutil.Clock

	malformed int
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       PacketStats
	Forwarder   *PacketForwarder
	Handler     PacketHandler

	// SocketFactory defaults to RealUDPSocketFactory.
	SocketFactory UDPSocketFactory

	// Console, when set, receives a heartbeat every HeartbeatInterval.
	Console           *net.UDPAddr
	HeartbeatInterval time.Duration
	Clock             timeutil.Clock
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	stats := config.Stats
	if stats == nil {
		stats = noopStats{}
	}
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	factory := config.SocketFactory
	if factory == nil {
		factory = RealUDPSocketFactory{}
	}
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	return &UDPListener{
		address:           config.Address,
		rcvBuf:            config.RcvBuf,
		logInterval:       logInterval,
		stats:             stats,
		forwarder:         config.Forwarder,
		handler:           config.Handler,
		factory:           factory,
		console:           config.Console,
		heartbeatInterval: config.HeartbeatInterval,
		clock:             clock,
	}
}

type noopStats struct{}

func (noopStats) AddDropped() {}
func (noopStats) LogStats()   {}

// Start listens until ctx is cancelled. Socket setup failures are returned
// immediately; per-packet errors are logged and never stop the loop.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}
	monitoring.Logf("UDP listener started on %s with receive buffer %d bytes", conn.LocalAddr(), l.rcvBuf)

	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}
	if l.console != nil {
		hb := NewHeartbeat(conn, l.console, l.heartbeatInterval, l.clock)
		go hb.Run(ctx)
		monitoring.Logf("Sending heartbeats to %s", l.console)
	}
	go l.startStatsLogging(ctx)

	// Room for the larger packet variants; the handler only reads the first
	// cipher.PACKET_SIZE bytes.
	buffer := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("UDP socket closed: %w", err)
			}
			monitoring.Logf("UDP read error: %v", err)
			continue
		}

		if err := l.handlePacket(buffer[:n]); err != nil {
			monitoring.Logf("Error handling packet from %v: %v", from, err)
		}
	}
}

// handlePacket forwards and processes one datagram. Malformed packets are
// expected on a noisy LAN, so only the first of each streak is reported.
func (l *UDPListener) handlePacket(pkt []byte) error {
	if l.forwarder != nil {
		l.forwarder.ForwardAsync(pkt)
	}
	if l.handler == nil {
		return nil
	}

	err := l.handler.HandlePacket(pkt)
	if errors.Is(err, cipher.ErrMalformedPacket) {
		l.malformed++
		if l.malformed > 1 {
			return nil
		}
		return err
	}
	l.malformed = 0
	return err
}

func (l *UDPListener) startStatsLogging(ctx context.Context) {
	ticker := l.clock.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			l.stats.LogStats()
		}
	}
}
