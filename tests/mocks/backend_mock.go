package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRideAPI is a mock implementation of the backend.RideAPI interface
type MockRideAPI struct {
	mock.Mock
}

func (m *MockRideAPI) RideStatus(ctx context.Context, rideID string) (string, error) {
	args := m.Called(ctx, rideID)
	return args.String(0), args.Error(1)
}

func (m *MockRideAPI) PostTracking(ctx context.Context, rideID string, body []byte) error {
	args := m.Called(ctx, rideID, body)
	return args.Error(0)
}
