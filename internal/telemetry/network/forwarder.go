package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
)

// DropCounter counts datagrams the forwarder could not queue.
type DropCounter interface {
	AddDropped()
}

// forwardQueueSize bounds the datagrams waiting to be relayed.
const forwardQueueSize = 1000

// PacketForwarder relays raw datagrams to another address without blocking
// the receive loop, e.g. to a second telemetry consumer on the LAN.
type PacketForwarder struct {
	conn        net.Conn
	channel     chan []byte
	stats       DropCounter
	logInterval time.Duration
	address     string
}

// NewPacketForwarder dials address ("host:port") for forwarding.
func NewPacketForwarder(address string, stats DropCounter, logInterval time.Duration) (*PacketForwarder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	return newPacketForwarder(conn, address, stats, logInterval), nil
}

func newPacketForwarder(conn net.Conn, address string, stats DropCounter, logInterval time.Duration) *PacketForwarder {
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &PacketForwarder{
		conn:        conn,
		channel:     make(chan []byte, forwardQueueSize),
		stats:       stats,
		logInterval: logInterval,
		address:     address,
	}
}

// Start begins relaying queued datagrams until ctx is done. Write errors are
// summarised once per log interval.
func (f *PacketForwarder) Start(ctx context.Context) {
	go func() {
		failed := 0
		var lastErr error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case pkt, ok := <-f.channel:
				if !ok {
					return
				}
				if _, err := f.conn.Write(pkt); err != nil {
					failed++
					lastErr = err
				}
			case <-ticker.C:
				if failed > 0 {
					monitoring.Logf("Failed to forward %d packets to %s (latest: %v)", failed, f.address, lastErr)
					failed = 0
					lastErr = nil
				}
			}
		}
	}()

	monitoring.Logf("Forwarding packets to %s", f.address)
}

// ForwardAsync queues a copy of pkt. When the queue is full the datagram is
// dropped and counted.
func (f *PacketForwarder) ForwardAsync(pkt []byte) {
	c := append([]byte(nil), pkt...)
	select {
	case f.channel <- c:
	default:
		if f.stats != nil {
			f.stats.AddDropped()
		}
	}
}

// Close stops the relay and closes the connection.
func (f *PacketForwarder) Close() error {
	close(f.channel)
	return f.conn.Close()
}
