package wled

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// RGB is a colour triple, each channel 0-255. It marshals as a JSON array,
// which is what the device expects inside a segment's col list.
type RGB [3]int

// White is the colour used whenever a hex string cannot be parsed.
var White = RGB{255, 255, 255}

// ParseHex parses "#rrggbb" or "#rgb" (leading # optional). Malformed input
// yields White rather than an error.
func ParseHex(hex string) RGB {
	h := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return White
	}
	c, err := colorful.Hex("#" + h)
	if err != nil {
		return White
	}
	r, g, b := c.RGB255()
	return RGB{int(r), int(g), int(b)}
}

// Hex formats the colour as "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", clampByte(c[0]), clampByte(c[1]), clampByte(c[2]))
}

// Clamp returns the colour with every channel forced into 0-255.
func (c RGB) Clamp() RGB {
	return RGB{clampByte(c[0]), clampByte(c[1]), clampByte(c[2])}
}

// UnmarshalJSON accepts either a [r,g,b] array or a hex string.
func (c *RGB) UnmarshalJSON(data []byte) error {
	var hex string
	if err := json.Unmarshal(data, &hex); err == nil {
		*c = ParseHex(hex)
		return nil
	}
	var arr [3]int
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("color must be a hex string or [r,g,b]: %w", err)
	}
	*c = RGB(arr).Clamp()
	return nil
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
