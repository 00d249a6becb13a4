// Package session owns the connection and power state of the controlled
// device, applies pads and routes control changes to the device.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/padd/internal/addressbook"
	"github.com/dokzlo13/padd/internal/capability"
	"github.com/dokzlo13/padd/internal/coalesce"
	"github.com/dokzlo13/padd/internal/discovery"
	"github.com/dokzlo13/padd/internal/eventbus"
	"github.com/dokzlo13/padd/internal/notify"
	"github.com/dokzlo13/padd/internal/preset"
	"github.com/dokzlo13/padd/internal/wled"
)

var (
	ErrNotConnected = errors.New("not connected to a device")
	ErrThrottled    = errors.New("pad activated too quickly")
	ErrPoweredOff   = errors.New("device is powered off")
	ErrNoEffects    = errors.New("device effects not loaded")
	ErrUnknownPad   = errors.New("unknown pad")
)

// DefaultPadThrottle is the minimum time between two pad activations.
const DefaultPadThrottle = 350 * time.Millisecond

// Notifier shows transient messages to the user.
type Notifier interface {
	Notify(level notify.Level, msg string)
}

// Publisher receives state change events.
type Publisher interface {
	Publish(event eventbus.Event)
}

// Connector establishes a connection to a device address.
type Connector interface {
	ConnectTo(ctx context.Context, base string) discovery.Result
	Running() bool
}

// Selection is the effect currently active on the device. Fx 0 with Pal 0 on a
// solid pad is solid colour mode.
type Selection struct {
	Label        string `json:"label"`
	Fx           int    `json:"fx"`
	Pal          int    `json:"pal"`
	FixedPalette bool   `json:"fixedPalette"`
	Solid        bool   `json:"solid"`
}

// Config configures a Session.
type Config struct {
	PadThrottle time.Duration
	SendTimeout time.Duration
}

// Deps are the collaborators a Session drives.
type Deps struct {
	Book      *addressbook.Book
	Connector Connector
	Coalescer *coalesce.Coalescer
	Sender    coalesce.Sender
	Notifier  Notifier
	Events    Publisher
}

// Status is a consistent view of the session.
type Status struct {
	State      string     `json:"state"`
	Connected  bool       `json:"connected"`
	Address    string     `json:"address"`
	DeviceName string     `json:"deviceName"`
	Effects    int        `json:"effects"`
	Palettes   int        `json:"palettes"`
	Controls   Values     `json:"controls"`
	Selection  *Selection `json:"selection,omitempty"`
	ActivePad  string     `json:"activePad,omitempty"`
	Pads       int        `json:"pads"`
}

// Session is the device state machine. It is the only writer of immediate
// commands; continuous controls go through the coalescer.
type Session struct {
	cfg       Config
	book      *addressbook.Book
	connector Connector
	coalescer *coalesce.Coalescer
	sender    coalesce.Sender
	notifier  Notifier
	events    Publisher
	controls  *Controls
	now       func() time.Time

	mu        sync.Mutex
	state     State
	selection *Selection
	activePad string
	lastHash  string
	lastTap   time.Time
	pads      []preset.Pad
}

// New creates a session in the disconnected state with the default pads.
func New(cfg Config, deps Deps) *Session {
	if cfg.PadThrottle <= 0 {
		cfg.PadThrottle = DefaultPadThrottle
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 3 * time.Second
	}
	return &Session{
		cfg:       cfg,
		book:      deps.Book,
		connector: deps.Connector,
		coalescer: deps.Coalescer,
		sender:    deps.Sender,
		notifier:  deps.Notifier,
		events:    deps.Events,
		controls:  NewControls(),
		now:       time.Now,
		state:     StateDisconnected,
		pads:      preset.DefaultPads(),
	}
}

// Controls exposes the control cell.
func (s *Session) Controls() *Controls {
	return s.controls
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot for display.
func (s *Session) Status() Status {
	entry := s.book.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:      s.state.String(),
		Connected:  s.state.Connected(),
		Address:    entry.Address,
		DeviceName: entry.DeviceName,
		Effects:    len(entry.Capabilities.Effects),
		Palettes:   len(entry.Capabilities.Palettes),
		Controls:   s.controls.Snapshot(),
		ActivePad:  s.activePad,
		Pads:       len(s.pads),
	}
	if s.selection != nil {
		sel := *s.selection
		st.Selection = &sel
	}
	return st
}

// SetPads replaces the cached pad list.
func (s *Session) SetPads(pads []preset.Pad) {
	s.mu.Lock()
	s.pads = append([]preset.Pad(nil), pads...)
	n := len(s.pads)
	s.mu.Unlock()

	log.Info().Int("pads", n).Msg("Pad list updated")
	s.publish(eventbus.EventTypePresets, map[string]any{"pads": n})
}

// Pads returns a copy of the cached pad list.
func (s *Session) Pads() []preset.Pad {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]preset.Pad(nil), s.pads...)
}

// Connect connects to host, or to the current address when host is empty.
// A non-empty host is an address edit and resets the session first. Nothing
// is edited while a discovery is running, since it may still connect elsewhere.
func (s *Session) Connect(ctx context.Context, host string) discovery.Result {
	if s.connector.Running() {
		log.Debug().Str("host", host).Msg("Discovery running, ignoring connect request")
		return discovery.Result{Busy: true}
	}
	if strings.TrimSpace(host) != "" {
		s.EditHost(host)
	}
	return s.connector.ConnectTo(ctx, "")
}

// ConnectStarted implements discovery.Observer.
func (s *Session) ConnectStarted(address string) {
	s.transition(EventConnectStarted)
	s.publish(eventbus.EventTypeConnection, map[string]any{"state": StateConnecting.String(), "address": address})
}

// ConnectFinished implements discovery.Observer.
func (s *Session) ConnectFinished(res discovery.Result) {
	if res.Found {
		s.mu.Lock()
		s.state = Next(s.state, EventConnectSucceeded)
		s.selection = nil
		s.activePad = ""
		s.lastHash = ""
		s.mu.Unlock()

		s.toast(notify.LevelInfo, "Connected: "+res.DeviceName)
		s.publish(eventbus.EventTypeConnection, map[string]any{
			"state":   StateConnectedOn.String(),
			"address": res.Address,
			"name":    res.DeviceName,
		})
		return
	}

	s.transition(EventConnectFailed)
	s.toast(notify.LevelError, "Could not connect")
	s.publish(eventbus.EventTypeConnection, map[string]any{
		"state":   StateDisconnected.String(),
		"address": res.Address,
		"reason":  res.Reason,
	})
}

// EditHost sets a new device address. The session always drops to
// disconnected and forgets everything learned from the previous device.
func (s *Session) EditHost(raw string) string {
	address := s.book.Edit(raw)
	if s.coalescer != nil {
		s.coalescer.CancelAll()
	}

	s.mu.Lock()
	s.state = Next(s.state, EventHostEdited)
	s.selection = nil
	s.activePad = ""
	s.lastHash = ""
	s.mu.Unlock()

	log.Info().Str("address", address).Msg("Device address changed")
	s.publish(eventbus.EventTypeConnection, map[string]any{"state": StateDisconnected.String(), "address": address})
	return address
}

// TurnOff powers the device off immediately.
func (s *Session) TurnOff(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.Connected() {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.state = Next(s.state, EventTurnOff)
	s.selection = nil
	s.activePad = s.offLabelLocked()
	s.lastHash = ""
	s.mu.Unlock()

	// A pending live update would switch the device back on.
	if s.coalescer != nil {
		s.coalescer.CancelAll()
	}
	s.publish(eventbus.EventTypePower, map[string]any{"on": false})

	if err := s.send(ctx, wled.State{On: wled.Bool(false)}); err != nil {
		s.toast(notify.LevelError, "Could not turn off")
		return err
	}
	return nil
}

// TurnOn powers the device on at the current brightness.
func (s *Session) TurnOn(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.Connected() {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.state = Next(s.state, EventTurnOn)
	s.mu.Unlock()

	v := s.controls.Snapshot()
	s.publish(eventbus.EventTypePower, map[string]any{"on": true, "bri": v.Bri})

	if err := s.send(ctx, wled.State{On: wled.Bool(true), Bri: wled.Int(v.Bri)}); err != nil {
		s.toast(notify.LevelError, "Could not turn on")
		return err
	}
	return nil
}

// ApplyPad activates the first pad with label.
func (s *Session) ApplyPad(ctx context.Context, label string) error {
	s.mu.Lock()
	pad, ok := preset.Find(s.pads, label)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPad, label)
	}
	return s.ApplyPreset(ctx, pad)
}

// ApplyPreset activates pad. Activations closer together than the throttle
// are ignored.
func (s *Session) ApplyPreset(ctx context.Context, pad preset.Pad) error {
	s.mu.Lock()
	now := s.now()
	if !s.lastTap.IsZero() && now.Sub(s.lastTap) < s.cfg.PadThrottle {
		s.mu.Unlock()
		log.Debug().Str("pad", pad.Label).Msg("Pad activation throttled")
		return ErrThrottled
	}
	s.lastTap = now
	connected := s.state.Connected()
	s.mu.Unlock()

	if !connected {
		s.toast(notify.LevelError, "Connect to or detect the device first")
		return ErrNotConnected
	}

	switch pad.Type {
	case preset.TypeOff:
		return s.TurnOff(ctx)
	case preset.TypeSolid:
		return s.applySolid(ctx, pad)
	case preset.TypeEffectByName:
		return s.applyEffect(ctx, pad)
	default:
		return fmt.Errorf("%w: %q has type %q", ErrUnknownPad, pad.Label, pad.Type)
	}
}

func (s *Session) applySolid(ctx context.Context, pad preset.Pad) error {
	v := s.controls.ApplyDefaults(pad)

	s.mu.Lock()
	s.state = Next(s.state, EventApplyPad)
	s.selection = &Selection{Label: pad.Label, Solid: true}
	s.activePad = pad.Label
	s.lastHash = ""
	s.mu.Unlock()

	if err := s.send(ctx, solidState(v)); err != nil {
		s.toast(notify.LevelError, "Could not apply "+pad.Label)
		return err
	}
	s.toast(notify.LevelInfo, "Applied: "+pad.Label)
	s.publish(eventbus.EventTypePower, map[string]any{"on": true, "pad": pad.Label})
	return nil
}

func (s *Session) applyEffect(ctx context.Context, pad preset.Pad) error {
	caps := s.book.Snapshot().Capabilities
	if len(caps.Effects) == 0 {
		s.toast(notify.LevelError, "Loading effects...")
		return ErrNoEffects
	}

	v := s.controls.ApplyDefaults(pad)
	fixed := pad.HasFixedPalette()
	fx := capability.Resolve(caps.Effects, pad.EffectName)
	pal := 0
	if fixed {
		pal = capability.Resolve(caps.Palettes, pad.FixedPalette)
	}
	hash := fmt.Sprintf("%s|fx:%d|pal:%d|bri:%d|sx:%d|ix:%d", pad.Label, fx, pal, v.Bri, v.Sx, v.Ix)

	s.mu.Lock()
	s.state = Next(s.state, EventApplyPad)
	s.selection = &Selection{Label: pad.Label, Fx: fx, Pal: pal, FixedPalette: fixed}
	s.activePad = pad.Label
	unchanged := s.lastHash == hash
	s.mu.Unlock()

	if unchanged {
		log.Debug().Str("pad", pad.Label).Msg("Pad already applied, skipping send")
		return nil
	}

	seg := wled.Segment{ID: 0, Fx: wled.Int(fx), Pal: wled.Int(pal), Sx: wled.Int(v.Sx), Ix: wled.Int(v.Ix)}
	if !fixed {
		seg.Col = []wled.RGB{v.Color}
	}
	st := wled.State{On: wled.Bool(true), Bri: wled.Int(v.Bri), Seg: []wled.Segment{seg}}

	if err := s.send(ctx, st); err != nil {
		s.toast(notify.LevelError, "Could not apply "+pad.Label)
		return err
	}

	s.mu.Lock()
	s.lastHash = hash
	s.mu.Unlock()

	log.Info().Str("pad", pad.Label).Int("fx", fx).Int("pal", pal).Msg("Pad applied")
	s.toast(notify.LevelInfo, "Applied: "+pad.Label)
	s.publish(eventbus.EventTypePower, map[string]any{"on": true, "pad": pad.Label})
	return nil
}

// liveAllowed returns nil when continuous updates may be scheduled.
func (s *Session) liveAllowed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateConnectedOn:
		return nil
	case s.state == StateConnectedOff:
		return ErrPoweredOff
	default:
		return ErrNotConnected
	}
}

// SetBrightness records a live brightness change and schedules a coalesced send.
func (s *Session) SetBrightness(v int) error {
	s.controls.SetBri(v)
	return s.scheduleSlider(coalesce.KindBri)
}

// SetSpeed records a live speed change and schedules a coalesced send.
func (s *Session) SetSpeed(v int) error {
	s.controls.SetSx(v)
	return s.scheduleSlider(coalesce.KindSx)
}

// SetIntensity records a live intensity change and schedules a coalesced send.
func (s *Session) SetIntensity(v int) error {
	s.controls.SetIx(v)
	return s.scheduleSlider(coalesce.KindIx)
}

func (s *Session) scheduleSlider(kind coalesce.Kind) error {
	s.forgetApplied()
	if err := s.liveAllowed(); err != nil {
		return err
	}
	s.coalescer.Schedule(coalesce.ChannelSlider, kind, s.sliderState)
	return nil
}

// sliderState builds the slider command from the values current at fire time.
func (s *Session) sliderState(kinds coalesce.Kind) *wled.State {
	if s.liveAllowed() != nil {
		return nil
	}
	v := s.controls.Snapshot()
	st := &wled.State{On: wled.Bool(true)}
	if kinds.Has(coalesce.KindBri) {
		st.Bri = wled.Int(v.Bri)
	}
	if kinds.Has(coalesce.KindSx) || kinds.Has(coalesce.KindIx) {
		st.Seg = []wled.Segment{{ID: 0, Sx: wled.Int(v.Sx), Ix: wled.Int(v.Ix)}}
	}
	return st
}

// SetColor records a colour change and schedules a coalesced send on the
// colour channel.
func (s *Session) SetColor(rgb wled.RGB) error {
	s.controls.SetColor(rgb)
	if err := s.liveAllowed(); err != nil {
		return err
	}
	s.coalescer.Schedule(coalesce.ChannelColor, coalesce.KindColor, s.colorState)
	return nil
}

// colorState applies the colour to whatever is selected. A fixed-palette
// effect or no selection yields nothing to send.
func (s *Session) colorState(coalesce.Kind) *wled.State {
	if s.liveAllowed() != nil {
		return nil
	}
	s.mu.Lock()
	sel := s.selection
	s.mu.Unlock()

	v := s.controls.Snapshot()
	switch {
	case sel == nil:
		return nil
	case sel.Solid:
		st := solidState(v)
		return &st
	case sel.FixedPalette:
		return nil
	default:
		return &wled.State{
			On:  wled.Bool(true),
			Bri: wled.Int(v.Bri),
			Seg: []wled.Segment{{
				ID:  0,
				Fx:  wled.Int(sel.Fx),
				Pal: wled.Int(sel.Pal),
				Sx:  wled.Int(v.Sx),
				Ix:  wled.Int(v.Ix),
				Col: []wled.RGB{v.Color},
			}},
		}
	}
}

// CommitBrightness sends the final brightness of an interaction immediately.
func (s *Session) CommitBrightness(ctx context.Context, v int) error {
	bri := s.controls.SetBri(v)
	return s.commit(ctx, wled.State{On: wled.Bool(true), Bri: wled.Int(bri)})
}

// CommitSpeed sends the final speed of an interaction immediately.
func (s *Session) CommitSpeed(ctx context.Context, v int) error {
	sx := s.controls.SetSx(v)
	return s.commit(ctx, wled.State{On: wled.Bool(true), Seg: []wled.Segment{{ID: 0, Sx: wled.Int(sx)}}})
}

// CommitIntensity sends the final intensity of an interaction immediately.
func (s *Session) CommitIntensity(ctx context.Context, v int) error {
	ix := s.controls.SetIx(v)
	return s.commit(ctx, wled.State{On: wled.Bool(true), Seg: []wled.Segment{{ID: 0, Ix: wled.Int(ix)}}})
}

func (s *Session) commit(ctx context.Context, st wled.State) error {
	s.forgetApplied()
	if err := s.liveAllowed(); err != nil {
		return err
	}
	if err := s.coalescer.Commit(ctx, st); err != nil {
		log.Warn().Err(err).Msg("Commit failed")
		return err
	}
	return nil
}

// forgetApplied drops the last applied pad hash. Called whenever bri, sx or ix
// move away from what the pad last sent, so the next tap sends again.
func (s *Session) forgetApplied() {
	s.mu.Lock()
	s.lastHash = ""
	s.mu.Unlock()
}

func (s *Session) send(ctx context.Context, st wled.State) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	address := s.book.Address()
	if err := s.sender.State(ctx, address, st); err != nil {
		log.Warn().Err(err).Str("address", address).Msg("Command failed")
		return err
	}
	return nil
}

func (s *Session) transition(e Event) {
	s.mu.Lock()
	from := s.state
	s.state = Next(from, e)
	to := s.state
	s.mu.Unlock()

	if from != to {
		log.Debug().Str("event", e.String()).Str("from", from.String()).Str("to", to.String()).Msg("Session transition")
	}
}

func (s *Session) offLabelLocked() string {
	for _, p := range s.pads {
		if p.Type == preset.TypeOff {
			return p.Label
		}
	}
	return "Off"
}

func (s *Session) toast(level notify.Level, msg string) {
	if s.notifier != nil {
		s.notifier.Notify(level, msg)
	}
}

func (s *Session) publish(t eventbus.EventType, data map[string]any) {
	if s.events != nil {
		s.events.Publish(eventbus.Event{Type: t, Data: data})
	}
}

func solidState(v Values) wled.State {
	return wled.State{
		On:  wled.Bool(true),
		Bri: wled.Int(v.Bri),
		Seg: []wled.Segment{{
			ID:  0,
			Fx:  wled.Int(0),
			Pal: wled.Int(0),
			Sx:  wled.Int(v.Sx),
			Ix:  wled.Int(v.Ix),
			Col: []wled.RGB{v.Color},
		}},
	}
}
