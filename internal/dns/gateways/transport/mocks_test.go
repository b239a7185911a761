package transport

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

type MockDNSCodec struct {
	mock.Mock
}

func (m *MockDNSCodec) DecodeQuery(data []byte) (domain.Question, error) {
	args := m.Called(data)
	return args.Get(0).(domain.Question), args.Error(1)
}

func (m *MockDNSCodec) EncodeResponse(request []byte, resp domain.DNSResponse) ([]byte, error) {
	args := m.Called(request, resp)
	return args.Get(0).([]byte), args.Error(1)
}

type MockDNSResponder struct {
	mock.Mock
}

func (m *MockDNSResponder) HandleQuery(ctx context.Context, query domain.Question, raw []byte) domain.DNSResponse {
	return m.Called(ctx, query, raw).Get(0).(domain.DNSResponse)
}

type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Info(fields map[string]any, msg string)  { m.Called(fields, msg) }
func (m *MockLogger) Error(fields map[string]any, msg string) { m.Called(fields, msg) }
func (m *MockLogger) Debug(fields map[string]any, msg string) { m.Called(fields, msg) }
func (m *MockLogger) Warn(fields map[string]any, msg string)  { m.Called(fields, msg) }
func (m *MockLogger) Panic(fields map[string]any, msg string) { m.Called(fields, msg) }
func (m *MockLogger) Fatal(fields map[string]any, msg string) { m.Called(fields, msg) }
