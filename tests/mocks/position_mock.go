package mocks

import (
	"github.com/ridetrack/telemetry-agent/pkg/position"
	"github.com/stretchr/testify/mock"
)

// MockPositionProvider is a mock implementation of the position.Provider interface
type MockPositionProvider struct {
	mock.Mock
}

func (m *MockPositionProvider) GetLocation() (position.Location, error) {
	args := m.Called()
	return args.Get(0).(position.Location), args.Error(1)
}

func (m *MockPositionProvider) Close() error {
	args := m.Called()
	return args.Error(0)
}
