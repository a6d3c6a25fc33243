// Package tuyatest provides a deterministic, in-memory tuya.DeviceLink and a
// manual clock for hardware-free tests.
package tuyatest

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-minisplit/internal/bridges/tuya"
)

// Clock is a manually advanced tuya.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Write is one SetValue call the link accepted.
type Write struct {
	Index int
	Value any
}

// Link is a fake device. Writes update its datapoints, so a later Status
// reflects them the way a real unit does.
type Link struct {
	mu          sync.Mutex
	dps         tuya.RawDatapoints
	connectErr  error
	statusErr   error
	nextStatus  []error
	setErr      error
	latency     time.Duration
	connects    int
	statusCalls int
	setCalls    int
	closes      int
	inFlight    int
	maxInFlight int
	writes      []Write
	lastID      tuya.Identity
}

// NewLink creates a fake device reporting initial.
func NewLink(initial tuya.RawDatapoints) *Link {
	return &Link{dps: initial.Clone()}
}

// Connect implements tuya.DeviceLink.
func (l *Link) Connect(_ context.Context, id tuya.Identity) (tuya.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connects++
	l.lastID = id
	if l.connectErr != nil {
		return nil, l.connectErr
	}
	return &handle{link: l}, nil
}

// SetConnectError makes every Connect fail with err until cleared with nil.
func (l *Link) SetConnectError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connectErr = err
}

// SetStatusError makes every Status fail with err until cleared with nil.
func (l *Link) SetStatusError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statusErr = err
}

// FailNextStatus makes only the next Status call fail with err.
func (l *Link) FailNextStatus(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextStatus = append(l.nextStatus, err)
}

// SetSetError makes every SetValue fail with err until cleared with nil.
func (l *Link) SetSetError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setErr = err
}

// SetLatency makes each Status and SetValue take d.
func (l *Link) SetLatency(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latency = d
}

// SetDatapoint changes what the device reports, as if the unit changed
// state on its own.
func (l *Link) SetDatapoint(index int, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dps[index] = value
}

// ClearDatapoints makes the device report nothing.
func (l *Link) ClearDatapoints() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dps = tuya.RawDatapoints{}
}

// Datapoints returns the device's current state.
func (l *Link) Datapoints() tuya.RawDatapoints {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dps.Clone()
}

// Connects returns the number of Connect calls.
func (l *Link) Connects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connects
}

// StatusCalls returns the number of Status calls.
func (l *Link) StatusCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusCalls
}

// SetCalls returns the number of SetValue calls.
func (l *Link) SetCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.setCalls
}

// Closes returns the number of handle Close calls.
func (l *Link) Closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

// MaxInFlight returns the highest number of concurrent Status/SetValue
// calls observed.
func (l *Link) MaxInFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxInFlight
}

// Writes returns the accepted writes in order.
func (l *Link) Writes() []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Write(nil), l.writes...)
}

// LastIdentity returns the identity passed to the most recent Connect.
func (l *Link) LastIdentity() tuya.Identity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastID
}

func (l *Link) enter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight++
	if l.inFlight > l.maxInFlight {
		l.maxInFlight = l.inFlight
	}
	return l.latency
}

func (l *Link) leave() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight--
}

type handle struct {
	link   *Link
	mu     sync.Mutex
	closed bool
}

func (h *handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *handle) Status(_ context.Context) (tuya.RawDatapoints, error) {
	if d := h.link.enter(); d > 0 {
		time.Sleep(d)
	}
	defer h.link.leave()

	l := h.link
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statusCalls++
	if h.isClosed() {
		return nil, tuya.ErrNotConnected
	}
	if len(l.nextStatus) > 0 {
		err := l.nextStatus[0]
		l.nextStatus = l.nextStatus[1:]
		return nil, err
	}
	if l.statusErr != nil {
		return nil, l.statusErr
	}
	return l.dps.Clone(), nil
}

func (h *handle) SetValue(_ context.Context, index int, value any) error {
	if d := h.link.enter(); d > 0 {
		time.Sleep(d)
	}
	defer h.link.leave()

	l := h.link
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setCalls++
	if h.isClosed() {
		return tuya.ErrNotConnected
	}
	if l.setErr != nil {
		return l.setErr
	}
	l.dps[index] = value
	l.writes = append(l.writes, Write{Index: index, Value: value})
	return nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	already := h.closed
	h.closed = true
	h.mu.Unlock()
	if already {
		return nil
	}
	h.link.mu.Lock()
	h.link.closes++
	h.link.mu.Unlock()
	return nil
}
