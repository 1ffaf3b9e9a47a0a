package mocks

import (
	"github.com/stretchr/testify/mock"
)

// MockIndicator is a mock implementation of the appstate.Indicator interface
type MockIndicator struct {
	mock.Mock
}

func (m *MockIndicator) Show(rideID string) error {
	args := m.Called(rideID)
	return args.Error(0)
}

func (m *MockIndicator) Refresh() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockIndicator) Dismiss() error {
	args := m.Called()
	return args.Error(0)
}

// MockNotifier is a mock implementation of the appstate.Notifier interface
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Advise(message string) error {
	args := m.Called(message)
	return args.Error(0)
}
