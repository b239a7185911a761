package domain

import "fmt"

// DNSResponse is the reply the resolver hands back to the serving boundary.
//
// A response either carries Raw bytes received from an upstream, which are sent
// back verbatim, or a synthesized header (ID, RCode) plus Answers that the wire
// codec packs against the original request.
type DNSResponse struct {
	ID      uint16
	RCode   RCode
	Answers []ResourceRecord
	Raw     []byte
}

// NewDNSErrorResponse creates a DNSResponse with the given ID and RCode and no answers.
func NewDNSErrorResponse(id uint16, rcode RCode) DNSResponse {
	return DNSResponse{ID: id, RCode: rcode}
}

// NewPassThroughResponse wraps upstream bytes. The ID is taken from the query
// because the forwarder has already checked that the upstream echoed it.
func NewPassThroughResponse(id uint16, raw []byte) DNSResponse {
	return DNSResponse{ID: id, Raw: raw}
}

// IsPassThrough reports whether the response carries upstream bytes.
func (resp DNSResponse) IsPassThrough() bool {
	return resp.Raw != nil
}

// Validate checks whether the DNSResponse fields are structurally valid.
func (resp DNSResponse) Validate() error {
	if !resp.RCode.IsValid() {
		return fmt.Errorf("invalid RCode: %d", resp.RCode)
	}
	if resp.IsPassThrough() && len(resp.Answers) > 0 {
		return fmt.Errorf("pass-through response must not carry synthesized answers")
	}
	for i, rr := range resp.Answers {
		if err := rr.Validate(); err != nil {
			return fmt.Errorf("invalid answer record at index %d: %w", i, err)
		}
	}
	return nil
}

// IsError returns true if the response indicates an error condition.
func (resp DNSResponse) IsError() bool {
	return resp.RCode != RCodeNoError
}

// HasAnswers returns true if the response contains synthesized answer records.
func (resp DNSResponse) HasAnswers() bool {
	return len(resp.Answers) > 0
}
