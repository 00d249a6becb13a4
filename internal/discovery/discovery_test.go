package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/padd/internal/addressbook"
	"github.com/dokzlo13/padd/internal/wled"
)

// fakeProber answers Info for addresses in live and fails everything else.
type fakeProber struct {
	mu       sync.Mutex
	live     map[string]string // base -> device name
	probes   map[string]int
	effects  []string
	palettes []string
	listErr  error
	block    chan struct{} // when set, Info waits on it
}

func newFakeProber(live map[string]string) *fakeProber {
	return &fakeProber{
		live:     live,
		probes:   make(map[string]int),
		effects:  []string{"Solid", "Fade", "Chase"},
		palettes: []string{"Default", "Party"},
	}
}

func (p *fakeProber) Info(ctx context.Context, base string, timeout time.Duration) (*wled.Info, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	p.probes[base]++
	name, ok := p.live[base]
	p.mu.Unlock()
	if !ok {
		return nil, wled.ErrProbeTimeout
	}
	return &wled.Info{Name: &name}, nil
}

func (p *fakeProber) Effects(ctx context.Context, base string, timeout time.Duration) ([]string, error) {
	return p.effects, p.listErr
}

func (p *fakeProber) Palettes(ctx context.Context, base string, timeout time.Duration) ([]string, error) {
	return p.palettes, nil
}

func (p *fakeProber) count(base string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes[base]
}

func (p *fakeProber) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.probes {
		n += c
	}
	return n
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []Result
}

func (o *recordingObserver) ConnectStarted(address string) {
	o.mu.Lock()
	o.started = append(o.started, address)
	o.mu.Unlock()
}

func (o *recordingObserver) ConnectFinished(r Result) {
	o.mu.Lock()
	o.finished = append(o.finished, r)
	o.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SweepDelay = 0
	return cfg
}

func newDiscovery(p Prober, book *addressbook.Book, localIP string) *Discovery {
	d := New(testConfig(), p, book)
	d.localIP = func() (net.IP, error) {
		if localIP == "" {
			return nil, errors.New("no network")
		}
		return net.ParseIP(localIP), nil
	}
	d.browse = func(ctx context.Context, service string, timeout time.Duration) ([]string, error) {
		return nil, nil
	}
	return d
}

func TestDiscover_AccessPointShortcut(t *testing.T) {
	p := newFakeProber(map[string]string{"http://192.168.4.1": "AP Lamp"})
	book := addressbook.New("http://10.9.9.9", nil)
	obs := &recordingObserver{}
	d := newDiscovery(p, book, "192.168.4.2")
	d.SetObserver(obs)

	res := d.Discover(context.Background())

	if !res.Found || res.Stage != StageAccessPoint || res.Address != "http://192.168.4.1" {
		t.Fatalf("Discover() = %+v", res)
	}
	if res.Sweep.Workers != 0 || res.Sweep.Visited != 0 {
		t.Errorf("sweep ran after AP hit: %+v", res.Sweep)
	}
	if p.count("http://10.9.9.9") != 0 {
		t.Error("current address probed after AP hit")
	}
	e := book.Snapshot()
	if !e.Connected || e.DeviceName != "AP Lamp" || e.Capabilities.Effect("chase") != 2 {
		t.Errorf("book = %+v", e)
	}
	if len(obs.started) != 1 || len(obs.finished) != 1 || !obs.finished[0].Found {
		t.Errorf("observer saw started=%v finished=%v", obs.started, obs.finished)
	}
}

func TestDiscover_AccessPointSkippedOnOtherSubnet(t *testing.T) {
	p := newFakeProber(map[string]string{"http://10.0.0.50": "Desk"})
	book := addressbook.New("http://10.0.0.50", nil)
	d := newDiscovery(p, book, "10.0.0.3")

	res := d.Discover(context.Background())

	if p.count("http://192.168.4.1") != 0 {
		t.Error("AP gateway probed from a non-AP subnet")
	}
	if !res.Found || res.Stage != StageCurrent {
		t.Fatalf("Discover() = %+v, want current-address hit", res)
	}
	if res.Sweep.Workers != 0 {
		t.Errorf("sweep ran: %+v", res.Sweep)
	}
}

func TestDiscover_Hostname(t *testing.T) {
	p := newFakeProber(map[string]string{"http://wled.local": "Named"})
	book := addressbook.New("http://10.0.0.99", nil)
	d := newDiscovery(p, book, "10.0.0.3")

	res := d.Discover(context.Background())
	if !res.Found || res.Stage != StageHostname || res.DeviceName != "Named" {
		t.Fatalf("Discover() = %+v", res)
	}
}

func TestDiscover_MDNS(t *testing.T) {
	p := newFakeProber(map[string]string{"http://10.0.0.77": "Bonjour"})
	book := addressbook.New("http://10.0.0.99", nil)
	d := newDiscovery(p, book, "10.0.0.3")
	d.cfg.MDNS = true
	d.browse = func(ctx context.Context, service string, timeout time.Duration) ([]string, error) {
		if service != "_wled._tcp" {
			t.Errorf("service = %q", service)
		}
		return []string{"http://10.0.0.76", "http://10.0.0.77"}, nil
	}

	res := d.Discover(context.Background())
	if !res.Found || res.Stage != StageMDNS || res.Address != "http://10.0.0.77" {
		t.Fatalf("Discover() = %+v", res)
	}
	if res.Sweep.Workers != 0 {
		t.Errorf("sweep ran after mDNS hit")
	}
}

func TestDiscover_SweepFinds(t *testing.T) {
	p := newFakeProber(map[string]string{"http://10.0.0.200": "Far"})
	book := addressbook.New("http://10.0.0.99", nil)
	d := newDiscovery(p, book, "10.0.0.3")

	res := d.Discover(context.Background())
	if !res.Found || res.Stage != StageSweep || res.Address != "http://10.0.0.200" {
		t.Fatalf("Discover() = %+v", res)
	}
	if res.Sweep.Workers != 8 {
		t.Errorf("Workers = %d, want 8", res.Sweep.Workers)
	}
	if res.Sweep.Visited < 200 || res.Sweep.Visited > 254 {
		t.Errorf("Visited = %d, want within [200, 254]", res.Sweep.Visited)
	}
	if !book.Connected() || book.Address() != "http://10.0.0.200" {
		t.Errorf("book = %+v", book.Snapshot())
	}
}

func TestSweep_Exhaustive(t *testing.T) {
	p := newFakeProber(nil)
	book := addressbook.New("", nil)
	d := newDiscovery(p, book, "10.1.2.3")

	found, stats := d.Sweep(context.Background(), "10.1.2")
	if found != "" {
		t.Fatalf("Sweep() found %q with no live devices", found)
	}
	if stats.Visited != 254 {
		t.Errorf("Visited = %d, want 254", stats.Visited)
	}
	for _, host := range Hosts("10.1.2") {
		if c := p.count("http://" + host); c != 1 {
			t.Errorf("%s probed %d times, want 1", host, c)
		}
	}
	if p.total() != 254 {
		t.Errorf("total probes = %d, want 254", p.total())
	}
}

func TestDiscover_NotFound(t *testing.T) {
	p := newFakeProber(nil)
	book := addressbook.New("http://10.5.5.5", nil)
	obs := &recordingObserver{}
	d := newDiscovery(p, book, "")
	d.SetObserver(obs)

	res := d.Discover(context.Background())
	if res.Found {
		t.Fatalf("Discover() found %+v", res)
	}
	if res.Prefix != "192.168.1" {
		t.Errorf("Prefix = %q, want fallback 192.168.1", res.Prefix)
	}
	if res.Reason == "" {
		t.Error("Reason should explain the miss")
	}
	if res.Sweep.Visited != 254 {
		t.Errorf("Visited = %d, want 254", res.Sweep.Visited)
	}
	if len(obs.started) != 0 {
		t.Errorf("observer notified without a positive probe: %v", obs.started)
	}
	if book.Address() != "http://10.5.5.5" {
		t.Errorf("miss changed the address to %q", book.Address())
	}
}

// cancellingProber cancels the discovery context once it has seen after probes.
type cancellingProber struct {
	*fakeProber
	after  int
	cancel context.CancelFunc
}

func (p *cancellingProber) Info(ctx context.Context, base string, timeout time.Duration) (*wled.Info, error) {
	info, err := p.fakeProber.Info(ctx, base, timeout)
	if p.total() >= p.after {
		p.cancel()
	}
	return info, err
}

func TestDiscover_CancelledSweepIsNotAMiss(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &cancellingProber{
		fakeProber: newFakeProber(map[string]string{"http://10.0.0.200": "Late"}),
		after:      20,
		cancel:     cancel,
	}
	book := addressbook.New("http://10.5.5.5", nil)
	d := newDiscovery(p, book, "10.0.0.5")

	res := d.Discover(ctx)
	if res.Found {
		t.Fatalf("Discover() found %+v after cancel", res)
	}
	if res.Reason != "discovery cancelled" {
		t.Errorf("Reason = %q, want discovery cancelled", res.Reason)
	}
	if res.Sweep.Visited >= 254 {
		t.Errorf("Visited = %d, sweep should stop early", res.Sweep.Visited)
	}
	if book.Address() != "http://10.5.5.5" {
		t.Errorf("cancelled discovery changed the address to %q", book.Address())
	}
}

func TestDiscover_FollowUpFailureDisconnects(t *testing.T) {
	p := newFakeProber(map[string]string{"http://10.0.0.50": "Flaky"})
	p.listErr = errors.New("connection reset")
	book := addressbook.New("http://10.0.0.50", nil)
	obs := &recordingObserver{}
	d := newDiscovery(p, book, "10.0.0.3")
	d.SetObserver(obs)

	res := d.Discover(context.Background())
	if res.Found {
		t.Fatalf("Discover() = %+v, want failure", res)
	}
	e := book.Snapshot()
	if e.Connected || !e.Capabilities.Empty() {
		t.Errorf("partial connect retained: %+v", e)
	}
	if len(obs.finished) != 1 || obs.finished[0].Found {
		t.Errorf("observer finished = %+v", obs.finished)
	}
}

func TestDiscover_RejectsReentrantCalls(t *testing.T) {
	p := newFakeProber(map[string]string{"http://10.0.0.50": "Slow"})
	p.block = make(chan struct{})
	book := addressbook.New("http://10.0.0.50", nil)
	d := newDiscovery(p, book, "10.0.0.3")

	done := make(chan Result)
	go func() { done <- d.Discover(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for !d.Running() {
		if time.Now().After(deadline) {
			t.Fatal("first discovery never started")
		}
		time.Sleep(time.Millisecond)
	}

	if res := d.Discover(context.Background()); !res.Busy {
		t.Errorf("second Discover() = %+v, want Busy", res)
	}
	if res := d.ConnectTo(context.Background(), "http://10.0.0.50"); !res.Busy {
		t.Errorf("ConnectTo() during discovery = %+v, want Busy", res)
	}

	close(p.block)
	if res := <-done; !res.Found {
		t.Errorf("first Discover() = %+v", res)
	}
	if d.Running() {
		t.Error("Running() still true after completion")
	}
}

func TestConnectTo(t *testing.T) {
	p := newFakeProber(map[string]string{"http://10.0.0.8": "Direct"})
	book := addressbook.New("http://10.0.0.8", nil)
	d := newDiscovery(p, book, "10.0.0.3")

	res := d.ConnectTo(context.Background(), "")
	if !res.Found || res.Stage != StageDirect || res.Address != "http://10.0.0.8" {
		t.Fatalf("ConnectTo() = %+v", res)
	}

	res = d.ConnectTo(context.Background(), "http://10.0.0.9/")
	if res.Found {
		t.Fatalf("ConnectTo(dead) = %+v", res)
	}
	if book.Connected() {
		t.Error("failed ConnectTo left the book connected")
	}
}

func TestPrefixFromIP(t *testing.T) {
	if got := PrefixFromIP(net.ParseIP("192.168.4.23")); got != "192.168.4" {
		t.Errorf("PrefixFromIP = %q", got)
	}
	if got := PrefixFromIP(net.ParseIP("fe80::1")); got != "" {
		t.Errorf("PrefixFromIP(v6) = %q, want empty", got)
	}
	hosts := Hosts("10.0.0")
	if len(hosts) != 254 || hosts[0] != "10.0.0.1" || hosts[253] != "10.0.0.254" {
		t.Errorf("Hosts() = %d entries, first %q last %q", len(hosts), hosts[0], hosts[len(hosts)-1])
	}
}
