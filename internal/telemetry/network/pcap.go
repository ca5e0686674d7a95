//go:build pcap
// +build pcap

package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/telemetry/cipher"
)

// ReadPCAPFile replays the telemetry datagrams of a capture file through
// handler, as if they had arrived on udpPort. If forwarder is not nil the
// datagrams are relayed too. Only available with the 'pcap' build tag.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, handler PacketHandler, forwarder *PacketForwarder) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	monitoring.Logf("PCAP BPF filter set: %s", filterStr)

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	count, malformed := 0, 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("PCAP reader stopping due to context cancellation (processed %d packets)", count)
			return ctx.Err()
		case pkt := <-source.Packets():
			if pkt == nil {
				monitoring.Logf("PCAP replay complete: %d packets (%d malformed) in %v",
					count, malformed, time.Since(startTime))
				return nil
			}

			udpLayer := pkt.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}
			// Heartbeats travel on the same pair of ports.
			if len(udp.Payload) < cipher.PACKET_SIZE {
				continue
			}
			count++

			if forwarder != nil {
				forwarder.ForwardAsync(udp.Payload)
			}
			if handler == nil {
				continue
			}
			if err := handler.HandlePacket(udp.Payload); err != nil {
				if errors.Is(err, cipher.ErrMalformedPacket) {
					malformed++
					continue
				}
				monitoring.Logf("PCAP packet %d: %v", count, err)
			}

			if count%10000 == 0 {
				elapsed := time.Since(startTime)
				monitoring.Logf("PCAP progress: %d packets in %v (%.0f pkt/s)",
					count, elapsed, float64(count)/elapsed.Seconds())
			}
		}
	}
}
