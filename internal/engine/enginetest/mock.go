// Package enginetest provides testify mocks of the engine contract.
package enginetest

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
	"github.com/stretchr/testify/mock"
)

// MockEngine is a mock implementation of engine.Engine.
type MockEngine struct {
	mock.Mock
}

// Init mocks the Init method.
func (m *MockEngine) Init() error {
	args := m.Called()
	return args.Error(0)
}

// Parse mocks the Parse method.
func (m *MockEngine) Parse(description string) (engine.Element, error) {
	args := m.Called(description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(engine.Element), args.Error(1)
}

// MockElement is a mock bare element.
type MockElement struct {
	mock.Mock
}

func (m *MockElement) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockElement) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockPipeline is a mock implementation of engine.Pipeline. Control calls go through
// testify; the bus is a real channel fed by Emit so monitors can be driven from tests.
type MockPipeline struct {
	mock.Mock

	bus    chan engine.RawEvent
	ended  atomic.Bool
	stops  atomic.Int32
	closes atomic.Int32
}

func (m *MockPipeline) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockPipeline) Close() error {
	m.closes.Add(1)
	args := m.Called()
	return args.Error(0)
}

// SetState mocks the SetState method.
func (m *MockPipeline) SetState(target engine.State) (engine.StateChange, error) {
	args := m.Called(target)
	return args.Get(0).(engine.StateChange), args.Error(1)
}

// QueryState mocks the QueryState method.
func (m *MockPipeline) QueryState(timeout time.Duration) (engine.State, engine.State) {
	args := m.Called(timeout)
	return args.Get(0).(engine.State), args.Get(1).(engine.State)
}

func (m *MockPipeline) QueryPosition() (time.Duration, bool) {
	args := m.Called()
	return args.Get(0).(time.Duration), args.Bool(1)
}

func (m *MockPipeline) QueryDuration() (time.Duration, bool) {
	args := m.Called()
	return args.Get(0).(time.Duration), args.Bool(1)
}

func (m *MockPipeline) Events() (<-chan engine.RawEvent, func()) {
	return m.bus, func() { m.stops.Add(1) }
}

func (m *MockPipeline) Pop(timeout time.Duration) (engine.RawEvent, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev, ok := <-m.bus:
		return ev, ok
	case <-timer.C:
		return engine.RawEvent{}, false
	}
}

// Emit delivers ev to whoever is consuming the bus. It blocks until the event is taken.
func (m *MockPipeline) Emit(ev engine.RawEvent) {
	m.bus <- ev
}

// EndStream closes the bus without an end-of-stream event.
func (m *MockPipeline) EndStream() {
	if m.ended.CompareAndSwap(false, true) {
		close(m.bus)
	}
}

// Stops reports how many times an Events subscription was cancelled.
func (m *MockPipeline) Stops() int {
	return int(m.stops.Load())
}

// Closes reports how many times Close was called. Safe to poll from any goroutine.
func (m *MockPipeline) Closes() int {
	return int(m.closes.Load())
}

// NewMockEngine creates a mock engine whose Init succeeds.
func NewMockEngine(t *testing.T) *MockEngine {
	t.Helper()
	m := new(MockEngine)
	m.On("Init").Return(nil).Maybe()
	return m
}

// NewMockPipeline creates a mock pipeline with teardown and query defaults. Tests add
// SetState and QueryState expectations for the other transitions they drive.
func NewMockPipeline(t *testing.T, name string) *MockPipeline {
	t.Helper()
	m := &MockPipeline{bus: make(chan engine.RawEvent)}

	m.On("Name").Return(name).Maybe()
	m.On("Close").Return(nil).Maybe()
	m.On("SetState", engine.StateNull).Return(engine.ChangeSuccess, nil).Maybe()
	m.On("QueryPosition").Return(time.Duration(0), false).Maybe()
	m.On("QueryDuration").Return(time.Duration(0), false).Maybe()

	return m
}

// NewMockElement creates a bare element mock that can be released.
func NewMockElement(t *testing.T, name string) *MockElement {
	t.Helper()
	m := new(MockElement)
	m.On("Name").Return(name).Maybe()
	m.On("Close").Return(nil).Maybe()
	return m
}
