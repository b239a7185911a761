package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/gateways/wire"
	"github.com/haukened/dns-sinkhole/internal/dns/services/resolver"
)

// TCPTransport serves DNS over TCP using the miekg/dns server for connection
// handling and framing.
type TCPTransport struct {
	queryServer
	addr string

	mu       sync.Mutex
	server   *dns.Server
	listener net.Listener
}

func NewTCPTransport(addr string, codec wire.DNSCodec, logger log.Logger, queryTimeout time.Duration) *TCPTransport {
	return &TCPTransport{queryServer: newQueryServer(codec, logger, queryTimeout), addr: addr}
}

func (t *TCPTransport) Start(ctx context.Context, handler resolver.DNSResponder) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.server != nil {
		return fmt.Errorf("TCP transport already running")
	}

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to bind TCP listener on %s: %w", t.addr, err)
	}

	started := make(chan struct{})
	srv := &dns.Server{
		Listener:          ln,
		Net:               "tcp",
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			t.serveDNS(ctx, w, r, handler)
		}),
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ActivateAndServe() }()

	select {
	case <-started:
	case err := <-errCh:
		_ = ln.Close()
		return fmt.Errorf("failed to start TCP server on %s: %w", t.addr, err)
	}

	t.server = srv
	t.listener = ln
	t.logger.Info(map[string]any{
		"transport": "tcp",
		"address":   ln.Addr().String(),
	}, "DNS transport started")

	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	return nil
}

func (t *TCPTransport) serveDNS(ctx context.Context, w dns.ResponseWriter, r *dns.Msg, handler resolver.DNSResponder) {
	data, err := r.Pack()
	if err != nil {
		t.logger.Warn(map[string]any{
			"client": w.RemoteAddr().String(),
			"error":  err.Error(),
		}, "Failed to repack TCP query")
		return
	}
	out := t.answer(ctx, data, w.RemoteAddr(), handler)
	if out == nil {
		return
	}
	if _, err := w.Write(out); err != nil {
		t.logger.Error(map[string]any{
			"client": w.RemoteAddr().String(),
			"error":  err.Error(),
		}, "Failed to send DNS response")
	}
}

func (t *TCPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.server == nil {
		return nil
	}
	err := t.server.Shutdown()
	t.server = nil
	t.listener = nil
	t.logger.Info(map[string]any{
		"transport": "tcp",
		"address":   t.addr,
	}, "DNS transport stopped")
	return err
}

func (t *TCPTransport) Address() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

var _ ServerTransport = (*TCPTransport)(nil)
