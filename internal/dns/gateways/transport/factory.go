package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/gateways/wire"
	"github.com/haukened/dns-sinkhole/internal/dns/services/resolver"
)

// NewTransport creates a new transport instance based on the specified type.
func NewTransport(transportType TransportType, addr string, codec wire.DNSCodec, logger log.Logger, queryTimeout time.Duration) (ServerTransport, error) {
	switch transportType {
	case TransportUDP:
		return NewUDPTransport(addr, codec, logger, queryTimeout), nil

	case TransportTCP:
		return NewTCPTransport(addr, codec, logger, queryTimeout), nil

	default:
		return nil, fmt.Errorf("unsupported transport type: %s", transportType)
	}
}

// GetSupportedTransports returns a list of currently supported transport types.
func GetSupportedTransports() []TransportType {
	return []TransportType{TransportUDP, TransportTCP}
}

// IsTransportSupported checks if a given transport type is currently supported.
func IsTransportSupported(transportType TransportType) bool {
	for _, t := range GetSupportedTransports() {
		if t == transportType {
			return true
		}
	}
	return false
}

// ListenConfig describes where a transport binds.
type ListenConfig struct {
	Type         TransportType
	Host         string
	Port         int
	FallbackPort int // used once when Port is refused with a permission error; 0 disables
	QueryTimeout time.Duration
}

// newTransportFn is swapped in tests.
var newTransportFn = NewTransport

// Listen creates and starts a transport. Binding a privileged port without the
// needed rights fails with os.ErrPermission; in that case the transport is
// retried once on FallbackPort.
func Listen(ctx context.Context, cfg ListenConfig, codec wire.DNSCodec, logger log.Logger, handler resolver.DNSResponder) (ServerTransport, error) {
	tr, err := start(ctx, cfg, cfg.Port, codec, logger, handler)
	if err == nil {
		return tr, nil
	}
	if !errors.Is(err, os.ErrPermission) || cfg.FallbackPort == 0 || cfg.FallbackPort == cfg.Port {
		return nil, err
	}
	logger.Warn(map[string]any{
		"transport":     string(cfg.Type),
		"port":          cfg.Port,
		"fallback_port": cfg.FallbackPort,
		"error":         err,
	}, "Permission denied binding DNS port, using fallback port")
	return start(ctx, cfg, cfg.FallbackPort, codec, logger, handler)
}

func start(ctx context.Context, cfg ListenConfig, port int, codec wire.DNSCodec, logger log.Logger, handler resolver.DNSResponder) (ServerTransport, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	tr, err := newTransportFn(cfg.Type, addr, codec, logger, cfg.QueryTimeout)
	if err != nil {
		return nil, err
	}
	if err := tr.Start(ctx, handler); err != nil {
		return nil, err
	}
	return tr, nil
}
