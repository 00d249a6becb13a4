package session

import (
	"testing"

	"github.com/dokzlo13/padd/internal/preset"
	"github.com/dokzlo13/padd/internal/wled"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name     string
		from     State
		event    Event
		expected State
	}{
		// === Connection ===
		{"disconnected/connect_started", StateDisconnected, EventConnectStarted, StateConnecting},
		{"connecting/succeeded", StateConnecting, EventConnectSucceeded, StateConnectedOn},
		{"connecting/failed", StateConnecting, EventConnectFailed, StateDisconnected},
		{"off/reconnect_succeeded", StateConnectedOff, EventConnectSucceeded, StateConnectedOn},
		{"on/reconnect_failed", StateConnectedOn, EventConnectFailed, StateDisconnected},

		// === Host edit always resets ===
		{"on/host_edited", StateConnectedOn, EventHostEdited, StateDisconnected},
		{"off/host_edited", StateConnectedOff, EventHostEdited, StateDisconnected},
		{"connecting/host_edited", StateConnecting, EventHostEdited, StateDisconnected},
		{"disconnected/host_edited", StateDisconnected, EventHostEdited, StateDisconnected},

		// === Power ===
		{"on/turn_off", StateConnectedOn, EventTurnOff, StateConnectedOff},
		{"off/turn_off", StateConnectedOff, EventTurnOff, StateConnectedOff},
		{"off/turn_on", StateConnectedOff, EventTurnOn, StateConnectedOn},
		{"off/apply_pad", StateConnectedOff, EventApplyPad, StateConnectedOn},
		{"on/apply_pad", StateConnectedOn, EventApplyPad, StateConnectedOn},

		// === Ignored while not connected ===
		{"disconnected/turn_on", StateDisconnected, EventTurnOn, StateDisconnected},
		{"disconnected/apply_pad", StateDisconnected, EventApplyPad, StateDisconnected},
		{"connecting/turn_off", StateConnecting, EventTurnOff, StateConnecting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(tt.from, tt.event); got != tt.expected {
				t.Errorf("Next(%s, %s) = %s, want %s", tt.from, tt.event, got, tt.expected)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	if StateConnectedOff.String() != "connected_off" || State(99).String() != "unknown" {
		t.Error("unexpected state names")
	}
	if !StateConnectedOff.Connected() || StateConnecting.Connected() {
		t.Error("Connected() wrong")
	}
}

func TestControls(t *testing.T) {
	c := NewControls()
	v := c.Snapshot()
	if v.Bri != 160 || v.Sx != 160 || v.Ix != 160 || v.Color != wled.White {
		t.Fatalf("initial controls = %+v", v)
	}

	tests := []struct {
		name string
		set  func() int
		want int
	}{
		{"bri floor", func() int { return c.SetBri(0) }, 1},
		{"bri ceiling", func() int { return c.SetBri(999) }, 255},
		{"sx floor", func() int { return c.SetSx(-5) }, 0},
		{"ix ceiling", func() int { return c.SetIx(256) }, 255},
		{"ix in range", func() int { return c.SetIx(12) }, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.set(); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	if got := c.SetColor(wled.RGB{300, -1, 7}); got != (wled.RGB{255, 0, 7}) {
		t.Errorf("SetColor() = %v", got)
	}

	sx := 500
	v = c.ApplyDefaults(preset.Pad{Label: "p", Type: preset.TypeSolid, DefaultSx: &sx})
	if v.Sx != 255 || v.Ix != 12 {
		t.Errorf("ApplyDefaults() = %+v, want only sx changed", v)
	}
}
