package addressbook

import (
	"testing"

	"github.com/dokzlo13/padd/internal/capability"
	"github.com/dokzlo13/padd/internal/kv"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"http://192.168.4.1/", "http://192.168.4.1"},
		{"http://192.168.4.1", "http://192.168.4.1"},
		{" http://wled.local// ", "http://wled.local"},
		{"10.0.0.5", "http://10.0.0.5"},
		{"10.0.0.5:8080/", "http://10.0.0.5:8080"},
		{"https://lamp.example", "https://lamp.example"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeAddress(tt.in); got != tt.expected {
				t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.in, got, tt.expected)
			}
		})
	}
}

func TestBook_ConnectAndEdit(t *testing.T) {
	b := New("", nil)
	if got := b.Address(); got != DefaultAddress {
		t.Fatalf("Address() = %q, want %q", got, DefaultAddress)
	}
	if b.Connected() {
		t.Fatal("new book should be disconnected")
	}

	caps := capability.Snapshot{Effects: []string{"Solid", "Fade"}, Palettes: []string{"Default"}}
	b.Connect("http://10.0.0.9/", "Shelf", caps)

	e := b.Snapshot()
	if !e.Connected || e.Address != "http://10.0.0.9" || e.DeviceName != "Shelf" || len(e.Capabilities.Effects) != 2 {
		t.Fatalf("Snapshot() after Connect = %+v", e)
	}

	b.Edit("10.0.0.10")
	e = b.Snapshot()
	if e.Connected {
		t.Error("Edit() must leave the book disconnected")
	}
	if !e.Capabilities.Empty() || e.DeviceName != "" {
		t.Errorf("Edit() must clear capabilities and name, got %+v", e)
	}
	if e.Address != "http://10.0.0.10" {
		t.Errorf("Address = %q", e.Address)
	}
}

func TestBook_Disconnect(t *testing.T) {
	b := New("http://10.0.0.2", nil)
	b.Connect("http://10.0.0.2", "x", capability.Snapshot{Effects: []string{"Solid"}})
	b.Disconnect()

	e := b.Snapshot()
	if e.Connected || !e.Capabilities.Empty() {
		t.Errorf("Disconnect() left %+v", e)
	}
	if e.Address != "http://10.0.0.2" {
		t.Errorf("Disconnect() should keep the address, got %q", e.Address)
	}
}

func TestBook_ConnectRejectsEmptyAddress(t *testing.T) {
	b := New("http://10.0.0.2", nil)
	b.Connect("", "ghost", capability.Snapshot{})
	if b.Connected() {
		t.Error("Connect with empty address must not mark connected")
	}
}

func TestBook_PersistsAddress(t *testing.T) {
	bucket := kv.NewMemoryBucket("session")

	b := New("", bucket)
	b.Edit("http://10.1.1.1/")

	restored := New("", bucket)
	if got := restored.Address(); got != "http://10.1.1.1" {
		t.Errorf("restored Address() = %q, want http://10.1.1.1", got)
	}

	b.Connect("http://10.1.1.2", "lamp", capability.Snapshot{})
	restored = New("http://ignored", bucket)
	if got := restored.Address(); got != "http://10.1.1.2" {
		t.Errorf("restored Address() = %q, want http://10.1.1.2", got)
	}
}
