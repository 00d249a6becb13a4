// Package addressbook holds the current device address, its connectivity
// flag and the capability snapshot reported by that device.
package addressbook

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/padd/internal/capability"
	"github.com/dokzlo13/padd/internal/kv"
)

// DefaultAddress is the gateway of the device's own access point.
const DefaultAddress = "http://192.168.4.1"

const lastAddressKey = "last_address"

// Entry is a consistent view of the book at one instant.
type Entry struct {
	Address      string
	Connected    bool
	DeviceName   string
	Capabilities capability.Snapshot
}

// Book is the address book. Address, connectivity and capabilities change
// together under one lock so readers never see a mix of two devices.
type Book struct {
	mu    sync.RWMutex
	entry Entry

	bucket kv.Bucket
}

// New creates a book starting at address. If bucket is non-nil the last
// stored address takes precedence and every address change is persisted.
func New(address string, bucket kv.Bucket) *Book {
	b := &Book{bucket: bucket}

	if address == "" {
		address = DefaultAddress
	}
	if bucket != nil {
		var stored string
		err := bucket.Get(lastAddressKey, &stored)
		switch {
		case err == nil && stored != "":
			address = stored
		case err != nil && !errors.Is(err, kv.ErrNotFound):
			log.Warn().Err(err).Msg("Failed to load last device address")
		}
	}

	b.entry.Address = NormalizeAddress(address)
	return b
}

// NormalizeAddress trims whitespace and a trailing slash, and adds an http://
// scheme when none is given.
func NormalizeAddress(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	return strings.TrimRight(s, "/")
}

// Snapshot returns the current entry.
func (b *Book) Snapshot() Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entry
}

// Address returns the current base address.
func (b *Book) Address() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entry.Address
}

// Connected reports whether the current address is a live device.
func (b *Book) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entry.Connected
}

// Connect records a successful connection, replacing address, name and
// capabilities in one step.
func (b *Book) Connect(address, deviceName string, caps capability.Snapshot) {
	address = NormalizeAddress(address)
	if address == "" {
		return
	}

	b.mu.Lock()
	b.entry = Entry{
		Address:      address,
		Connected:    true,
		DeviceName:   deviceName,
		Capabilities: caps,
	}
	b.mu.Unlock()

	b.persist(address)
}

// Disconnect marks the current address as not connected and drops the
// capability snapshot. The address itself is kept.
func (b *Book) Disconnect() {
	b.mu.Lock()
	b.entry = Entry{Address: b.entry.Address}
	b.mu.Unlock()
}

// Edit replaces the address. The book is always left disconnected: the
// capability list of the old device must not be used against a new one.
func (b *Book) Edit(raw string) string {
	address := NormalizeAddress(raw)

	b.mu.Lock()
	b.entry = Entry{Address: address}
	b.mu.Unlock()

	if address != "" {
		b.persist(address)
	}
	return address
}

func (b *Book) persist(address string) {
	if b.bucket == nil {
		return
	}
	if err := b.bucket.Put(lastAddressKey, address); err != nil {
		log.Warn().Err(err).Str("address", address).Msg("Failed to persist device address")
	}
}
