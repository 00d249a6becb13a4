// Package discovery finds a live WLED device when its address is unknown and
// connects to it, filling the address book and capability snapshot.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/padd/internal/addressbook"
	"github.com/dokzlo13/padd/internal/capability"
	"github.com/dokzlo13/padd/internal/wled"
)

// Stage names the strategy step that produced a result.
type Stage string

const (
	StageNone        Stage = ""
	StageAccessPoint Stage = "access_point"
	StageCurrent     Stage = "current_address"
	StageHostname    Stage = "hostname"
	StageMDNS        Stage = "mdns"
	StageSweep       Stage = "sweep"
	StageDirect      Stage = "direct"
)

// Prober is the device query surface discovery needs. *wled.Client satisfies it.
type Prober interface {
	Info(ctx context.Context, base string, timeout time.Duration) (*wled.Info, error)
	Effects(ctx context.Context, base string, timeout time.Duration) ([]string, error)
	Palettes(ctx context.Context, base string, timeout time.Duration) ([]string, error)
}

// Observer is told when a connection attempt begins and how it ended.
type Observer interface {
	ConnectStarted(address string)
	ConnectFinished(result Result)
}

// Config holds the strategy constants. Zero values are replaced by DefaultConfig's.
type Config struct {
	AccessPointPrefix  string
	AccessPointAddress string
	Hostname           string
	FallbackPrefix     string

	AccessPointTimeout time.Duration
	CurrentTimeout     time.Duration
	HostnameTimeout    time.Duration
	SweepTimeout       time.Duration
	SweepDelay         time.Duration
	Workers            int

	InfoTimeout time.Duration
	ListTimeout time.Duration

	MDNS        bool
	MDNSService string
	MDNSTimeout time.Duration
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		AccessPointPrefix:  "192.168.4",
		AccessPointAddress: "http://192.168.4.1",
		Hostname:           "http://wled.local",
		FallbackPrefix:     "192.168.1",
		AccessPointTimeout: 1700 * time.Millisecond,
		CurrentTimeout:     1100 * time.Millisecond,
		HostnameTimeout:    1200 * time.Millisecond,
		SweepTimeout:       900 * time.Millisecond,
		SweepDelay:         8 * time.Millisecond,
		Workers:            8,
		InfoTimeout:        1800 * time.Millisecond,
		ListTimeout:        2500 * time.Millisecond,
		MDNSService:        "_wled._tcp",
		MDNSTimeout:        1200 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AccessPointPrefix == "" {
		c.AccessPointPrefix = d.AccessPointPrefix
	}
	if c.AccessPointAddress == "" {
		c.AccessPointAddress = d.AccessPointAddress
	}
	if c.Hostname == "" {
		c.Hostname = d.Hostname
	}
	if c.FallbackPrefix == "" {
		c.FallbackPrefix = d.FallbackPrefix
	}
	if c.AccessPointTimeout == 0 {
		c.AccessPointTimeout = d.AccessPointTimeout
	}
	if c.CurrentTimeout == 0 {
		c.CurrentTimeout = d.CurrentTimeout
	}
	if c.HostnameTimeout == 0 {
		c.HostnameTimeout = d.HostnameTimeout
	}
	if c.SweepTimeout == 0 {
		c.SweepTimeout = d.SweepTimeout
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.InfoTimeout == 0 {
		c.InfoTimeout = d.InfoTimeout
	}
	if c.ListTimeout == 0 {
		c.ListTimeout = d.ListTimeout
	}
	if c.MDNSService == "" {
		c.MDNSService = d.MDNSService
	}
	if c.MDNSTimeout == 0 {
		c.MDNSTimeout = d.MDNSTimeout
	}
	// SweepDelay may legitimately be zero
	return c
}

// SweepStats describes what the subnet sweep did.
type SweepStats struct {
	Workers int // workers started; 0 when the sweep did not run
	Visited int // addresses probed
}

// Result is the outcome of one discovery or connect attempt. It is reported,
// folded into the address book and discarded.
type Result struct {
	Found        bool
	Busy         bool // another attempt was already running; nothing was done
	Address      string
	DeviceName   string
	Capabilities capability.Snapshot
	Prefix       string
	Stage        Stage
	Reason       string
	Sweep        SweepStats
}

// Discovery runs the staged search. At most one Discover or ConnectTo runs at a time.
type Discovery struct {
	cfg    Config
	prober Prober
	book   *addressbook.Book

	localIP func() (net.IP, error)
	browse  func(ctx context.Context, service string, timeout time.Duration) ([]string, error)

	observerMu sync.RWMutex
	observer   Observer

	running atomic.Bool
}

// New creates a Discovery writing into book.
func New(cfg Config, prober Prober, book *addressbook.Book) *Discovery {
	return &Discovery{
		cfg:     cfg.withDefaults(),
		prober:  prober,
		book:    book,
		localIP: LocalIPv4,
		browse:  BrowseMDNS,
	}
}

// SetObserver registers the observer notified about connection attempts.
func (d *Discovery) SetObserver(o Observer) {
	d.observerMu.Lock()
	d.observer = o
	d.observerMu.Unlock()
}

// Running reports whether an attempt is in flight.
func (d *Discovery) Running() bool {
	return d.running.Load()
}

// Prefix returns the /24 prefix the sweep would use right now.
func (d *Discovery) Prefix() string {
	ip, err := d.localIP()
	if err != nil {
		log.Debug().Err(err).Msg("Local IP unavailable, using fallback prefix")
		return d.cfg.FallbackPrefix
	}
	if p := PrefixFromIP(ip); p != "" {
		return p
	}
	return d.cfg.FallbackPrefix
}

// Discover looks for a device, short-circuiting on the first stage that finds
// one: access point gateway, the configured address, the hostname alias, mDNS
// (if enabled) and finally a sweep of the local /24.
func (d *Discovery) Discover(ctx context.Context) Result {
	if !d.running.CompareAndSwap(false, true) {
		log.Debug().Msg("Discovery already running, ignoring request")
		return Result{Busy: true}
	}
	defer d.running.Store(false)

	prefix := d.Prefix()
	started := time.Now()
	log.Info().Str("prefix", prefix).Msg("Discovery started")

	res := d.discover(ctx, prefix)
	log.Info().
		Bool("found", res.Found).
		Str("stage", string(res.Stage)).
		Str("address", res.Address).
		Int("swept", res.Sweep.Visited).
		Dur("took", time.Since(started)).
		Msg("Discovery finished")
	return res
}

func (d *Discovery) discover(ctx context.Context, prefix string) Result {
	if prefix == d.cfg.AccessPointPrefix {
		if info := d.probe(ctx, d.cfg.AccessPointAddress, d.cfg.AccessPointTimeout); info != nil {
			return d.connect(ctx, d.cfg.AccessPointAddress, info, StageAccessPoint, prefix)
		}
	}

	if current := d.book.Address(); current != "" {
		if info := d.probe(ctx, current, d.cfg.CurrentTimeout); info != nil {
			return d.connect(ctx, current, info, StageCurrent, prefix)
		}
	}

	if info := d.probe(ctx, d.cfg.Hostname, d.cfg.HostnameTimeout); info != nil {
		return d.connect(ctx, d.cfg.Hostname, info, StageHostname, prefix)
	}

	if d.cfg.MDNS {
		bases, err := d.browse(ctx, d.cfg.MDNSService, d.cfg.MDNSTimeout)
		if err != nil {
			log.Debug().Err(err).Msg("mDNS browse failed")
		}
		for _, base := range bases {
			if info := d.probe(ctx, base, d.cfg.HostnameTimeout); info != nil {
				return d.connect(ctx, base, info, StageMDNS, prefix)
			}
		}
	}

	if ctx.Err() != nil {
		return Result{Prefix: prefix, Reason: "discovery cancelled"}
	}

	found, stats := d.Sweep(ctx, prefix)
	if found == "" && ctx.Err() != nil {
		return Result{Prefix: prefix, Sweep: stats, Reason: "discovery cancelled"}
	}
	if found == "" {
		return Result{
			Prefix: prefix,
			Sweep:  stats,
			Reason: fmt.Sprintf("no device found on %s.x; join the same network or the device's access point", prefix),
		}
	}

	res := d.connect(ctx, found, nil, StageSweep, prefix)
	res.Sweep = stats
	return res
}

// Sweep probes every host of prefix with a fixed pool of workers. Workers
// claim addresses from a shared cursor and stop claiming once any of them
// finds a device; requests already in flight are left to finish.
func (d *Discovery) Sweep(ctx context.Context, prefix string) (string, SweepStats) {
	hosts := Hosts(prefix)

	var (
		cursor  atomic.Int64
		visited atomic.Int64
		found   atomic.Bool
		winner  string
		wg      sync.WaitGroup
	)

	workers := d.cfg.Workers
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for !found.Load() && ctx.Err() == nil {
				idx := int(cursor.Add(1) - 1)
				if idx >= len(hosts) {
					return
				}
				base := "http://" + hosts[idx]
				visited.Add(1)

				if d.probe(ctx, base, d.cfg.SweepTimeout) != nil {
					if found.CompareAndSwap(false, true) {
						winner = base
						log.Debug().Int("worker", id).Str("address", base).Msg("Sweep hit")
					}
					return
				}

				if d.cfg.SweepDelay > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(d.cfg.SweepDelay):
					}
				}
			}
		}(i)
	}
	wg.Wait()

	return winner, SweepStats{Workers: workers, Visited: int(visited.Load())}
}

// ConnectTo fetches info and capability lists from base and, on success,
// records the device in the address book.
func (d *Discovery) ConnectTo(ctx context.Context, base string) Result {
	if !d.running.CompareAndSwap(false, true) {
		log.Debug().Str("address", base).Msg("Discovery running, ignoring connect request")
		return Result{Busy: true}
	}
	defer d.running.Store(false)

	base = addressbook.NormalizeAddress(base)
	if base == "" {
		base = d.book.Address()
	}
	return d.connect(ctx, base, nil, StageDirect, "")
}

func (d *Discovery) connect(ctx context.Context, base string, info *wled.Info, stage Stage, prefix string) Result {
	d.notifyStarted(base)

	res := Result{Address: base, Stage: stage, Prefix: prefix}
	fail := func(what string, err error) Result {
		log.Warn().Err(err).Str("address", base).Str("step", what).Msg("Connect failed")
		d.book.Disconnect()
		res.Reason = fmt.Sprintf("could not connect to %s: %s: %v", base, what, err)
		d.notifyFinished(res)
		return res
	}

	if base == "" {
		return fail("address", fmt.Errorf("no address configured"))
	}

	if info == nil {
		var err error
		info, err = d.prober.Info(ctx, base, d.cfg.InfoTimeout)
		if err != nil {
			return fail("info", err)
		}
	}

	effects, err := d.prober.Effects(ctx, base, d.cfg.ListTimeout)
	if err != nil {
		return fail("effects", err)
	}
	palettes, err := d.prober.Palettes(ctx, base, d.cfg.ListTimeout)
	if err != nil {
		return fail("palettes", err)
	}

	caps := capability.Snapshot{Effects: effects, Palettes: palettes}
	d.book.Connect(base, info.DisplayName(), caps)

	res.Found = true
	res.DeviceName = info.DisplayName()
	res.Capabilities = caps

	log.Info().
		Str("address", base).
		Str("name", res.DeviceName).
		Int("effects", len(effects)).
		Int("palettes", len(palettes)).
		Msg("Connected to device")

	d.notifyFinished(res)
	return res
}

func (d *Discovery) probe(ctx context.Context, base string, timeout time.Duration) *wled.Info {
	if ctx.Err() != nil {
		return nil
	}
	info, err := d.prober.Info(ctx, base, timeout)
	if err != nil {
		log.Debug().Err(err).Str("address", base).Msg("Probe negative")
		return nil
	}
	if !info.LooksLikeDevice() {
		return nil
	}
	return info
}

func (d *Discovery) notifyStarted(address string) {
	d.observerMu.RLock()
	o := d.observer
	d.observerMu.RUnlock()
	if o != nil {
		o.ConnectStarted(address)
	}
}

func (d *Discovery) notifyFinished(res Result) {
	d.observerMu.RLock()
	o := d.observer
	d.observerMu.RUnlock()
	if o != nil {
		o.ConnectFinished(res)
	}
}
