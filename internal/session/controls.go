package session

import (
	"sync"

	"github.com/dokzlo13/padd/internal/preset"
	"github.com/dokzlo13/padd/internal/wled"
)

// Initial control values.
const (
	DefaultBri = 160
	DefaultSx  = 160
	DefaultIx  = 160
)

// Values is a snapshot of the continuous controls.
type Values struct {
	Bri   int      `json:"bri"`
	Sx    int      `json:"sx"`
	Ix    int      `json:"ix"`
	Color wled.RGB `json:"color"`
}

// Controls is the shared cell the session writes and the coalescer's
// producers read at fire time.
type Controls struct {
	mu sync.RWMutex
	v  Values
}

// NewControls returns controls at their initial values.
func NewControls() *Controls {
	return &Controls{v: Values{Bri: DefaultBri, Sx: DefaultSx, Ix: DefaultIx, Color: wled.White}}
}

// Snapshot returns the current values.
func (c *Controls) Snapshot() Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// SetBri sets brightness, clamped to 1-255, and returns the stored value.
func (c *Controls) SetBri(v int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Bri = clamp(v, 1, 255)
	return c.v.Bri
}

// SetSx sets effect speed, clamped to 0-255.
func (c *Controls) SetSx(v int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Sx = clamp(v, 0, 255)
	return c.v.Sx
}

// SetIx sets effect intensity, clamped to 0-255.
func (c *Controls) SetIx(v int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Ix = clamp(v, 0, 255)
	return c.v.Ix
}

// SetColor sets the colour.
func (c *Controls) SetColor(rgb wled.RGB) wled.RGB {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Color = rgb.Clamp()
	return c.v.Color
}

// ApplyDefaults copies any defaults the pad declares and returns the result.
func (c *Controls) ApplyDefaults(p preset.Pad) Values {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.DefaultBri != nil {
		c.v.Bri = clamp(*p.DefaultBri, 1, 255)
	}
	if p.DefaultSx != nil {
		c.v.Sx = clamp(*p.DefaultSx, 0, 255)
	}
	if p.DefaultIx != nil {
		c.v.Ix = clamp(*p.DefaultIx, 0, 255)
	}
	if p.DefaultColor != nil {
		c.v.Color = p.DefaultColor.Clamp()
	}
	return c.v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
