package wled

import (
	"encoding/json"
	"strings"
)

// Info is the /json/info response. Every field is optional: firmware builds
// differ in what they report, so identification is a predicate over whatever
// came back rather than a strict schema.
type Info struct {
	Ver     *string         `json:"ver,omitempty"`
	Name    *string         `json:"name,omitempty"`
	Info    json.RawMessage `json:"info,omitempty"`
	Brand   string          `json:"brand,omitempty"`
	Product string          `json:"product,omitempty"`
	Mac     string          `json:"mac,omitempty"`
	Leds    *struct {
		Count int `json:"count"`
	} `json:"leds,omitempty"`
}

// LooksLikeDevice reports whether the response carries at least one of the
// identifying fields (ver, name or info).
func (i *Info) LooksLikeDevice() bool {
	if i == nil {
		return false
	}
	if i.Ver != nil && *i.Ver != "" {
		return true
	}
	if i.Name != nil && *i.Name != "" {
		return true
	}
	return truthy(i.Info)
}

// truthy treats null, false, 0 and "" as absent.
func truthy(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false", `""`:
		return false
	}
	var n float64
	if json.Unmarshal(raw, &n) == nil {
		return n != 0
	}
	return true
}

// DisplayName returns the declared device name, or "WLED" when none was given.
func (i *Info) DisplayName() string {
	if i != nil && i.Name != nil && *i.Name != "" {
		return *i.Name
	}
	return "WLED"
}

// State is the body of a POST to /json/state. Nil fields are omitted so a
// State always describes a partial update.
type State struct {
	On  *bool     `json:"on,omitempty"`
	Bri *int      `json:"bri,omitempty"`
	Seg []Segment `json:"seg,omitempty"`
}

// Segment addresses one LED range on the device.
type Segment struct {
	ID  int   `json:"id"`
	Fx  *int  `json:"fx,omitempty"`
	Pal *int  `json:"pal,omitempty"`
	Sx  *int  `json:"sx,omitempty"`
	Ix  *int  `json:"ix,omitempty"`
	Col []RGB `json:"col,omitempty"`
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}
