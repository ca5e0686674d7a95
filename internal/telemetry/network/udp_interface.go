package network

import (
	"net"
	"sync"
	"time"
)

// UDPSocket defines the UDP socket operations the listener needs. The
// simulator streams back to whichever address sent the heartbeat, so the
// same socket is used for both directions.
type UDPSocket interface {
	// ReadFromUDP reads a UDP packet from the socket.
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)

	// WriteToUDP sends b to addr.
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)

	// SetReadBuffer sets the size of the operating system's receive buffer.
	SetReadBuffer(bytes int) error

	// SetReadDeadline sets the deadline for future Read calls.
	SetReadDeadline(t time.Time) error

	// Close closes the socket.
	Close() error

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr
}

// UDPSocketFactory creates UDP sockets.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory implements UDPSocketFactory using net.ListenUDP.
// *net.UDPConn already satisfies UDPSocket.
type RealUDPSocketFactory struct{}

// ListenUDP creates a new UDP socket.
func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPPacket represents a packet for mock testing.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// MockUDPSocket implements UDPSocket for testing. Reads return the queued
// packets in order and then time out; writes are recorded.
type MockUDPSocket struct {
	mu sync.Mutex

	packets   []MockUDPPacket
	readIndex int
	closed    bool
	readErr   error

	writes         []MockUDPPacket
	readBufferSize int
	localAddr      *net.UDPAddr

	// SetReadBufferError is returned by SetReadBuffer if set.
	SetReadBufferError error
}

// NewMockUDPSocket creates a mock socket that will deliver packets.
func NewMockUDPSocket(packets ...MockUDPPacket) *MockUDPSocket {
	return &MockUDPSocket{
		packets:   packets,
		localAddr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 33740},
	}
}

// Queue appends packets to be read.
func (m *MockUDPSocket) Queue(packets ...MockUDPPacket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, packets...)
}

// FailNextRead makes the next ReadFromUDP return err.
func (m *MockUDPSocket) FailNextRead(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// ReadFromUDP returns the next queued packet, or a timeout after a short
// pause when none is left.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, nil, net.ErrClosed
	}
	if m.readErr != nil {
		err := m.readErr
		m.readErr = nil
		return 0, nil, err
	}
	if m.readIndex >= len(m.packets) {
		m.mu.Unlock()
		time.Sleep(time.Millisecond)
		m.mu.Lock()
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	pkt := m.packets[m.readIndex]
	m.readIndex++
	return copy(b, pkt.Data), pkt.Addr, nil
}

// WriteToUDP records the datagram.
func (m *MockUDPSocket) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, net.ErrClosed
	}
	m.writes = append(m.writes, MockUDPPacket{Data: append([]byte(nil), b...), Addr: addr})
	return len(b), nil
}

// Writes returns the datagrams written so far.
func (m *MockUDPSocket) Writes() []MockUDPPacket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockUDPPacket(nil), m.writes...)
}

// Delivered returns the number of packets read so far.
func (m *MockUDPSocket) Delivered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readIndex
}

// SetReadBuffer records the buffer size.
func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetReadBufferError != nil {
		return m.SetReadBufferError
	}
	m.readBufferSize = bytes
	return nil
}

// ReadBufferSize returns the value set by SetReadBuffer.
func (m *MockUDPSocket) ReadBufferSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBufferSize
}

// SetReadDeadline is accepted and ignored.
func (m *MockUDPSocket) SetReadDeadline(time.Time) error { return nil }

// Close marks the socket as closed.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// LocalAddr returns the mock local address.
func (m *MockUDPSocket) LocalAddr() net.Addr { return m.localAddr }

// MockUDPSocketFactory implements UDPSocketFactory for testing.
type MockUDPSocketFactory struct {
	Socket *MockUDPSocket
	Error  error

	mu    sync.Mutex
	addrs []*net.UDPAddr
}

// ListenUDP returns the configured mock socket.
func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.mu.Lock()
	f.addrs = append(f.addrs, laddr)
	f.mu.Unlock()
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Socket, nil
}

// ListenAddrs returns the addresses passed to ListenUDP.
func (f *MockUDPSocketFactory) ListenAddrs() []*net.UDPAddr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*net.UDPAddr(nil), f.addrs...)
}

// timeoutError implements net.Error for timeout simulation.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
