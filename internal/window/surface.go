package window

import (
	"sync"
	"time"
)

// EventKind classifies a native surface event.
type EventKind int

const (
	EventResize EventKind = iota
	EventClose
	EventKey
)

// NativeEvent is one event polled from the windowing backend.
type NativeEvent struct {
	Kind   EventKind
	Width  int
	Height int
	Key    string
	Down   bool
}

// Surface is the native windowing backend: one OS window with an input queue.
type Surface interface {
	PollEvents() []NativeEvent
	ShouldClose() bool
	RequestClose()
	Size() (width, height int)
	Destroy() error
}

// Clock is a monotonic time source measured from an arbitrary origin.
type Clock interface {
	Now() time.Duration
}

// SystemClock reads the process monotonic clock.
type SystemClock struct {
	origin time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{origin: time.Now()}
}

func (c *SystemClock) Now() time.Duration { return time.Since(c.origin) }

// StepClock advances by a fixed step on every read. Frame loops that sample
// the clock once per frame therefore observe a constant delta.
type StepClock struct {
	Step time.Duration
	now  time.Duration
}

func NewStepClock(step time.Duration) *StepClock {
	return &StepClock{Step: step}
}

func (c *StepClock) Now() time.Duration {
	cur := c.now
	c.now += c.Step
	return cur
}

// HeadlessSurface is a Surface without an OS window. Events are injected by
// the caller; with a frame limit it requests close after that many polls.
type HeadlessSurface struct {
	mu        sync.Mutex
	width     int
	height    int
	maxFrames int
	polls     int
	closed    bool
	destroyed bool
	queued    []NativeEvent
}

func NewHeadlessSurface(width, height, maxFrames int) *HeadlessSurface {
	return &HeadlessSurface{width: width, height: height, maxFrames: maxFrames}
}

// Inject queues an event for the next poll. Safe from any goroutine.
func (s *HeadlessSurface) Inject(ev NativeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, ev)
}

func (s *HeadlessSurface) PollEvents() []NativeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	out := s.queued
	s.queued = nil
	for _, ev := range out {
		switch ev.Kind {
		case EventResize:
			s.width, s.height = ev.Width, ev.Height
		case EventClose:
			s.closed = true
		}
	}
	if s.maxFrames > 0 && s.polls >= s.maxFrames {
		s.closed = true
	}
	return out
}

func (s *HeadlessSurface) ShouldClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *HeadlessSurface) RequestClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *HeadlessSurface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *HeadlessSurface) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	s.closed = true
	return nil
}

// Destroyed reports whether Destroy was called.
func (s *HeadlessSurface) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Polls returns how many times PollEvents ran.
func (s *HeadlessSurface) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}
