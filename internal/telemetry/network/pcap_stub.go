//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"errors"
)

// ErrPCAPDisabled is returned by ReadPCAPFile in builds without pcap support.
var ErrPCAPDisabled = errors.New("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP replay")

// ReadPCAPFile is a stub when PCAP support is disabled.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, handler PacketHandler, forwarder *PacketForwarder) error {
	return ErrPCAPDisabled
}
