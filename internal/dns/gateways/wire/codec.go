// Package wire converts between DNS wire format and domain types using miekg/dns.
package wire

import (
	"errors"
	"fmt"
	"net"

	"github.com/miekg/dns"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

// DNSCodec decodes client queries and encodes the replies sent back to them.
type DNSCodec interface {
	DecodeQuery(data []byte) (domain.Question, error)
	// EncodeResponse builds the reply to request. Pass-through responses are
	// returned byte for byte.
	EncodeResponse(request []byte, resp domain.DNSResponse) ([]byte, error)
}

var (
	ErrNotAQuery        = errors.New("message is not a query")
	ErrQuestionCount    = errors.New("query must carry exactly one question")
	ErrUnsupportedRData = errors.New("unsupported answer record type")
)

type codec struct {
	logger log.Logger
}

// NewCodec returns the miekg/dns backed DNSCodec.
func NewCodec(logger log.Logger) DNSCodec {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &codec{logger: logger}
}

func (c *codec) DecodeQuery(data []byte) (domain.Question, error) {
	var msg dns.Msg
	if err := msg.Unpack(data); err != nil {
		return domain.Question{}, fmt.Errorf("unpack query: %w", err)
	}
	if msg.Response || msg.Opcode != dns.OpcodeQuery {
		return domain.Question{}, ErrNotAQuery
	}
	if len(msg.Question) != 1 {
		return domain.Question{}, ErrQuestionCount
	}
	q := msg.Question[0]
	return domain.NewQuestion(msg.Id, q.Name, domain.RRType(q.Qtype), domain.RRClass(q.Qclass))
}

func (c *codec) EncodeResponse(request []byte, resp domain.DNSResponse) ([]byte, error) {
	if resp.IsPassThrough() {
		return resp.Raw, nil
	}
	var req dns.Msg
	if err := req.Unpack(request); err != nil {
		return nil, fmt.Errorf("unpack request: %w", err)
	}

	m := new(dns.Msg)
	m.SetReply(&req)
	m.Id = resp.ID
	m.Rcode = int(resp.RCode)
	m.RecursionAvailable = true
	for _, rr := range resp.Answers {
		out, err := toRR(rr)
		if err != nil {
			return nil, err
		}
		m.Answer = append(m.Answer, out)
	}

	data, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack response: %w", err)
	}
	c.logger.Debug(map[string]any{
		"query_id": resp.ID,
		"rcode":    resp.RCode.String(),
		"answers":  len(m.Answer),
		"size":     len(data),
	}, "Encoded DNS response")
	return data, nil
}

func toRR(rr domain.ResourceRecord) (dns.RR, error) {
	hdr := dns.RR_Header{
		Name:   dns.Fqdn(rr.Name),
		Rrtype: uint16(rr.Type),
		Class:  uint16(rr.Class),
		Ttl:    rr.TTL,
	}
	switch rr.Type {
	case domain.RRTypeA:
		return &dns.A{Hdr: hdr, A: net.IP(rr.Addr.AsSlice())}, nil
	case domain.RRTypeAAAA:
		return &dns.AAAA{Hdr: hdr, AAAA: net.IP(rr.Addr.AsSlice())}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRData, rr.Type)
	}
}
