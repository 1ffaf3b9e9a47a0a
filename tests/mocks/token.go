package mocks

import (
	"time"
)

// MockToken is a controllable implementation of the paho mqtt.Token interface.
type MockToken struct {
	Err error
}

func (t *MockToken) Wait() bool {
	return true
}

func (t *MockToken) WaitTimeout(d time.Duration) bool {
	return true
}

func (t *MockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *MockToken) Error() error {
	return t.Err
}
