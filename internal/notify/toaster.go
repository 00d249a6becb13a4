// Package notify carries transient user-facing messages.
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/padd/internal/eventbus"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// DefaultTTL is how long a toast stays visible.
const DefaultTTL = 1200 * time.Millisecond

// Toast is a transient message.
type Toast struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Publisher is the subset of the event bus the toaster needs.
type Publisher interface {
	Publish(event eventbus.Event)
}

// Toaster holds the most recent toast and clears it after the TTL. A newer
// toast replaces the current one and restarts the timer.
type Toaster struct {
	ttl time.Duration
	bus Publisher

	mu      sync.Mutex
	current *Toast
	timer   *time.Timer
	seq     uint64
}

// NewToaster creates a toaster. bus may be nil.
func NewToaster(ttl time.Duration, bus Publisher) *Toaster {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Toaster{ttl: ttl, bus: bus}
}

// Notify shows msg until the TTL elapses or another toast replaces it.
func (t *Toaster) Notify(level Level, msg string) {
	toast := Toast{Level: level, Message: msg, At: time.Now()}

	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.seq++
	seq := t.seq
	t.current = &toast
	t.timer = time.AfterFunc(t.ttl, func() { t.dismiss(seq) })
	t.mu.Unlock()

	ev := log.Info()
	if level == LevelError {
		ev = log.Warn()
	}
	ev.Str("level", string(level)).Msg(msg)

	if t.bus != nil {
		t.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeNotification,
			Data: map[string]any{"level": string(level), "message": msg},
		})
	}
}

func (t *Toaster) dismiss(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seq == seq {
		t.current = nil
		t.timer = nil
	}
}

// Current returns the visible toast, if any.
func (t *Toaster) Current() (Toast, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return Toast{}, false
	}
	return *t.current, true
}

// Close stops the dismiss timer.
func (t *Toaster) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
