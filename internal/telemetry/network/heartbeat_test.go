package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

func TestResolveConsole(t *testing.T) {
	addr, err := ResolveConsole("192.168.1.50")
	require.NoError(t, err)
	assert.Equal(t, HEARTBEAT_PORT, addr.Port)

	addr, err = ResolveConsole("192.168.1.50:40000")
	require.NoError(t, err)
	assert.Equal(t, 40000, addr.Port)

	_, err = ResolveConsole("192.168.1.50:notaport")
	assert.Error(t, err)
}

type flakySender struct {
	mu    sync.Mutex
	sent  int
	fails int
}

func (f *flakySender) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	if f.fails > 0 {
		f.fails--
		return 0, errors.New("network unreachable")
	}
	return len(b), nil
}

func (f *flakySender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func TestHeartbeat_RunTicks(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sender := &flakySender{fails: 1}
	hb := NewHeartbeat(sender, consoleAddr(), time.Second, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hb.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		return sender.count() >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestHeartbeat_Send(t *testing.T) {
	sock := NewMockUDPSocket()
	hb := NewHeartbeat(sock, consoleAddr(), 0, nil)
	require.NoError(t, hb.Send())
	require.Len(t, sock.Writes(), 1)
	assert.Equal(t, []byte("A"), sock.Writes()[0].Data)

	sock.Close()
	assert.ErrorIs(t, hb.Send(), net.ErrClosed)
}
