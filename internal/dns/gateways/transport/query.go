package transport

import (
	"context"
	"net"
	"time"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/gateways/wire"
	"github.com/haukened/dns-sinkhole/internal/dns/services/resolver"
)

const defaultQueryTimeout = 5 * time.Second

// queryServer is the part of a transport that turns one packet into one reply.
type queryServer struct {
	codec        wire.DNSCodec
	logger       log.Logger
	queryTimeout time.Duration
}

func newQueryServer(codec wire.DNSCodec, logger log.Logger, timeout time.Duration) queryServer {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return queryServer{codec: codec, logger: logger, queryTimeout: timeout}
}

// answer returns the encoded reply for packet, or nil when the packet is
// dropped. Undecodable queries get no reply at all.
func (s queryServer) answer(ctx context.Context, packet []byte, client net.Addr, handler resolver.DNSResponder) []byte {
	q, err := s.codec.DecodeQuery(packet)
	if err != nil {
		s.logger.Warn(map[string]any{"client": client.String(), "size": len(packet), "error": err.Error()}, "Failed to decode DNS query")
		return nil
	}
	s.logger.Debug(map[string]any{
		"client":   client.String(),
		"query_id": q.ID,
		"name":     q.Name,
		"type":     q.Type.String(),
	}, "Received DNS query")

	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	resp := handler.HandleQuery(qctx, q, packet)
	cancel()

	out, err := s.codec.EncodeResponse(packet, resp)
	if err != nil {
		s.logger.Error(map[string]any{"client": client.String(), "query_id": q.ID, "error": err.Error()}, "Failed to encode DNS response")
		return nil
	}
	return out
}
