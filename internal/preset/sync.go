package preset

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store is the external document store: get/put plus change notification.
type Store interface {
	Get(ctx context.Context, key string) (data []byte, exists bool, err error)
	Put(ctx context.Context, key string, data []byte) error
	// Watch calls fn on every change to key until cancel is called.
	Watch(key string, fn func(data []byte, exists bool)) (cancel func())
}

// Sink receives the pad list every time it changes.
type Sink func(pads []Pad)

// Sync feeds pads from the document at key into sink, falling back to
// defaults when the document is absent or malformed.
type Sync struct {
	store    Store
	key      string
	defaults []Pad
	sink     Sink
	now      func() time.Time

	mu     sync.Mutex
	cancel func()
	ctx    context.Context
}

// NewSync creates a Sync. The document key is the principal identity.
func NewSync(store Store, key string, defaults []Pad, sink Sink) *Sync {
	if len(defaults) == 0 {
		defaults = DefaultPads()
	}
	return &Sync{
		store:    store,
		key:      key,
		defaults: defaults,
		sink:     sink,
		now:      time.Now,
	}
}

// Start subscribes to the document and replays its current value.
func (s *Sync) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("preset sync already started")
	}
	s.ctx = ctx
	s.cancel = s.store.Watch(s.key, s.onChange)
	s.mu.Unlock()

	data, exists, err := s.store.Get(ctx, s.key)
	if err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("Failed to load preset document, using defaults")
		s.sink(clonePads(s.defaults))
		return nil
	}
	s.onChange(data, exists)
	return nil
}

// Stop unsubscribes. It is safe to call more than once.
func (s *Sync) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Write replaces the document with pads.
func (s *Sync) Write(ctx context.Context, pads []Pad) error {
	for _, p := range pads {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	data, err := NewDocument(pads, s.now()).Marshal()
	if err != nil {
		return err
	}
	return s.store.Put(ctx, s.key, data)
}

func (s *Sync) onChange(data []byte, exists bool) {
	if !exists {
		log.Info().Str("key", s.key).Msg("No preset document, creating one with defaults")
		s.sink(clonePads(s.defaults))
		s.createDefault()
		return
	}

	doc, err := ParseDocument(data)
	if err != nil {
		// The stored document is left alone; a fix from elsewhere will arrive as a change.
		log.Warn().Err(err).Str("key", s.key).Msg("Preset document malformed, using defaults")
		s.sink(clonePads(s.defaults))
		return
	}

	log.Debug().Str("key", s.key).Int("pads", len(doc.Pads)).Int("version", doc.Version).Msg("Preset document received")
	s.sink(doc.Pads)
}

func (s *Sync) createDefault() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.Write(ctx, clonePads(s.defaults)); err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("Failed to create default preset document")
	}
}

func clonePads(pads []Pad) []Pad {
	return append([]Pad(nil), pads...)
}
