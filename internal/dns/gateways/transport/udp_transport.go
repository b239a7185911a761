package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/gateways/wire"
	"github.com/haukened/dns-sinkhole/internal/dns/services/resolver"
)

// Large enough for EDNS0 queries from stub resolvers.
const udpBufferSize = 4096

// UDPTransport answers DNS over UDP, one goroutine per datagram.
type UDPTransport struct {
	queryServer
	addr string

	mu      sync.RWMutex
	conn    *net.UDPConn
	running bool
	done    chan struct{}
}

// NewUDPTransport returns an unstarted UDP transport. queryTimeout bounds each
// query; zero means five seconds.
func NewUDPTransport(addr string, codec wire.DNSCodec, logger log.Logger, queryTimeout time.Duration) *UDPTransport {
	return &UDPTransport{queryServer: newQueryServer(codec, logger, queryTimeout), addr: addr}
}

func (t *UDPTransport) Start(ctx context.Context, handler resolver.DNSResponder) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("UDP transport already running")
	}

	laddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", t.addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s: %w", t.addr, err)
	}

	t.conn, t.running, t.done = conn, true, make(chan struct{})
	t.logger.Info(map[string]any{"transport": "udp", "address": conn.LocalAddr().String()}, "DNS transport started")

	go t.readLoop(ctx, conn, handler)
	go func(done <-chan struct{}) {
		// A blocked read never sees ctx, so closing the socket is what ends it.
		select {
		case <-ctx.Done():
			_ = t.Stop()
		case <-done:
		}
	}(t.done)
	return nil
}

func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return nil
	}
	t.running = false
	close(t.done)

	err := t.conn.Close()
	if err != nil {
		t.logger.Warn(map[string]any{"error": err.Error()}, "Error closing UDP connection")
	}
	t.logger.Info(map[string]any{"transport": "udp", "address": t.conn.LocalAddr().String()}, "DNS transport stopped")
	return err
}

func (t *UDPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.running {
		return t.conn.LocalAddr().String()
	}
	return t.addr
}

func (t *UDPTransport) readLoop(ctx context.Context, conn *net.UDPConn, handler resolver.DNSResponder) {
	buf := make([]byte, udpBufferSize)
	for {
		n, client, err := conn.ReadFromUDP(buf)
		if errors.Is(err, net.ErrClosed) {
			t.logger.Debug(map[string]any{"transport": "udp"}, "UDP read loop exiting")
			return
		}
		if err != nil {
			t.logger.Warn(map[string]any{"error": err.Error()}, "Failed to read UDP packet")
			continue
		}
		packet := append([]byte(nil), buf[:n]...)
		go func() {
			reply := t.answer(ctx, packet, client, handler)
			if reply == nil {
				return
			}
			if _, err := conn.WriteToUDP(reply, client); err != nil {
				t.logger.Error(map[string]any{"client": client.String(), "error": err.Error()}, "Failed to send DNS response")
			}
		}()
	}
}

var _ ServerTransport = (*UDPTransport)(nil)
