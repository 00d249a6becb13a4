// Package coalesce turns bursts of control updates into a bounded stream of
// device commands. Each channel keeps one pending timer; every new update
// restarts it, and when it fires the producer builds the command from the
// state current at that moment.
package coalesce

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/padd/internal/wled"
)

// Channel identifies an independent debounce lane.
type Channel string

const (
	ChannelSlider Channel = "slider"
	ChannelColor  Channel = "color"
)

// Kind tags what changed. Kinds scheduled on the same channel within one
// window are merged, so the producer sees every control that moved.
type Kind uint8

const (
	KindBri Kind = 1 << iota
	KindSx
	KindIx
	KindColor
)

// Has reports whether k includes all bits of other.
func (k Kind) Has(other Kind) bool {
	return k&other == other
}

func (k Kind) String() string {
	var parts []string
	for _, n := range []struct {
		k    Kind
		name string
	}{{KindBri, "bri"}, {KindSx, "sx"}, {KindIx, "ix"}, {KindColor, "color"}} {
		if k.Has(n.k) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Producer builds the command to send. It runs when the timer fires, never
// when the update is scheduled. Returning nil sends nothing.
type Producer func(kinds Kind) *wled.State

// Sender delivers a state command. *wled.Client satisfies it.
type Sender interface {
	State(ctx context.Context, base string, state wled.State) error
}

// AddressSource yields the device base address at send time.
type AddressSource interface {
	Address() string
}

// Config holds per-channel delays.
type Config struct {
	SliderDelay time.Duration
	ColorDelay  time.Duration
	SendTimeout time.Duration
}

// DefaultConfig returns 120ms for sliders, 90ms for colour.
func DefaultConfig() Config {
	return Config{
		SliderDelay: 120 * time.Millisecond,
		ColorDelay:  90 * time.Millisecond,
		SendTimeout: 3 * time.Second,
	}
}

type pending struct {
	timer    *time.Timer
	kinds    Kind
	producer Producer
	seq      uint64
}

// Coalescer debounces control updates per channel.
type Coalescer struct {
	sender  Sender
	address AddressSource
	cfg     Config

	mu      sync.Mutex
	pending map[Channel]*pending
	seq     uint64
	closed  bool

	inflight sync.WaitGroup
}

// New creates a Coalescer.
func New(sender Sender, address AddressSource, cfg Config) *Coalescer {
	d := DefaultConfig()
	if cfg.SliderDelay <= 0 {
		cfg.SliderDelay = d.SliderDelay
	}
	if cfg.ColorDelay <= 0 {
		cfg.ColorDelay = d.ColorDelay
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = d.SendTimeout
	}
	return &Coalescer{
		sender:  sender,
		address: address,
		cfg:     cfg,
		pending: make(map[Channel]*pending),
	}
}

func (c *Coalescer) delay(ch Channel) time.Duration {
	if ch == ChannelColor {
		return c.cfg.ColorDelay
	}
	return c.cfg.SliderDelay
}

// Schedule cancels the channel's pending timer, if any, and starts a new one.
func (c *Coalescer) Schedule(ch Channel, kind Kind, producer Producer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	kinds := kind
	if prev, ok := c.pending[ch]; ok {
		prev.timer.Stop()
		kinds |= prev.kinds
	}

	c.seq++
	seq := c.seq
	p := &pending{kinds: kinds, producer: producer, seq: seq}
	p.timer = time.AfterFunc(c.delay(ch), func() { c.fire(ch, seq) })
	c.pending[ch] = p
}

// fire runs on the timer goroutine. A timer that lost the race against a
// newer Schedule sees a different seq and does nothing.
func (c *Coalescer) fire(ch Channel, seq uint64) {
	c.mu.Lock()
	p, ok := c.pending[ch]
	if !ok || p.seq != seq || c.closed {
		c.mu.Unlock()
		return
	}
	delete(c.pending, ch)
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	state := p.producer(p.kinds)
	if state == nil {
		return
	}

	base := c.address.Address()
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SendTimeout)
	defer cancel()

	if err := c.sender.State(ctx, base, *state); err != nil {
		// A newer update will supersede this one shortly.
		log.Warn().Err(err).Str("channel", string(ch)).Str("kinds", p.kinds.String()).Msg("Coalesced update failed")
		return
	}
	log.Debug().Str("channel", string(ch)).Str("kinds", p.kinds.String()).Msg("Coalesced update sent")
}

// Commit sends state right away, bypassing any debounce. It is used when a
// continuous interaction ends so the final value always reaches the device.
func (c *Coalescer) Commit(ctx context.Context, state wled.State) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SendTimeout)
	defer cancel()
	return c.sender.State(ctx, c.address.Address(), state)
}

// Pending reports whether ch has a timer waiting to fire.
func (c *Coalescer) Pending(ch Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[ch]
	return ok
}

// Cancel drops the pending update on ch.
func (c *Coalescer) Cancel(ch Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[ch]; ok {
		p.timer.Stop()
		delete(c.pending, ch)
	}
}

// CancelAll drops every pending update.
func (c *Coalescer) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, ch)
	}
}

// Close cancels pending updates, refuses new ones and waits for sends already
// in progress, up to ctx.
func (c *Coalescer) Close(ctx context.Context) {
	c.mu.Lock()
	c.closed = true
	for ch, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, ch)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("Coalescer shutdown timed out with sends in flight")
	}
}
