package event

import (
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Bus is a double-buffered event bus. Events emitted in frame N are delivered
// in frame N+1, when the window swaps buffers at the top of its update.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	front    map[reflect.Type][]any
	back     map[reflect.Type][]any
	handlers map[reflect.Type][]func(any)
	order    []reflect.Type
	log      *zap.Logger
	failures int
}

func NewBus() *Bus {
	return &Bus{
		log:      zap.NewNop(),
		front:    make(map[reflect.Type][]any),
		back:     make(map[reflect.Type][]any),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// SetLogger sets where handler failures are reported.
func (b *Bus) SetLogger(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	b.log = log
}

// Emit queues an event into the back buffer (delivered next frame).
func Emit[T any](b *Bus, event T) {
	t := typeOf[T]()
	if _, seen := b.back[t]; !seen {
		if _, known := b.front[t]; !known {
			b.order = append(b.order, t)
		}
	}
	b.back[t] = append(b.back[t], event)
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := typeOf[T]()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// SwapBuffers rotates back to front and clears the new back buffer.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front
	for k := range b.back {
		b.back[k] = b.back[k][:0]
	}
}

// DispatchAll delivers all front-buffer events to their handlers. Event types
// are visited in first-emitted order, events of one type in emission order.
// A panicking handler is logged and skipped; delivery continues.
func (b *Bus) DispatchAll() int {
	n := 0
	for _, t := range b.order {
		events := b.front[t]
		handlers := b.handlers[t]
		for _, ev := range events {
			for _, h := range handlers {
				b.deliver(t, h, ev)
			}
			n++
		}
	}
	return n
}

func (b *Bus) deliver(t reflect.Type, h func(any), ev any) {
	defer func() {
		if r := recover(); r != nil {
			b.failures++
			b.log.Error("event handler panicked",
				zap.String("event", t.String()),
				zap.Any("panic", r),
			)
		}
	}()
	h(ev)
}

// Failures returns how many handler invocations have panicked.
func (b *Bus) Failures() int { return b.failures }

// Pending returns the number of events queued for the next frame.
func (b *Bus) Pending() int {
	n := 0
	for _, evs := range b.back {
		n += len(evs)
	}
	return n
}
