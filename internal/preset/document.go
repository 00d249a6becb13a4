package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DocumentVersion is the document schema version written by this package.
const DocumentVersion = 1

// ErrMalformed is returned when a stored document does not have the expected shape.
var ErrMalformed = errors.New("preset document malformed")

// Document is the remote preset document, replaced wholesale on every change.
type Document struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	Pads      []Pad     `json:"pads"`
}

// NewDocument wraps pads in a current-version document.
func NewDocument(pads []Pad, now time.Time) Document {
	if pads == nil {
		pads = []Pad{}
	}
	return Document{Version: DocumentVersion, UpdatedAt: now.UTC(), Pads: pads}
}

// Marshal encodes the document.
func (d Document) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// ParseDocument decodes and validates a stored document. Any pad failing
// validation makes the whole document malformed.
func ParseDocument(data []byte) (Document, error) {
	var raw struct {
		Version   int       `json:"version"`
		UpdatedAt time.Time `json:"updatedAt"`
		Pads      *[]Pad    `json:"pads"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Pads == nil {
		return Document{}, fmt.Errorf("%w: missing pads", ErrMalformed)
	}
	for i, p := range *raw.Pads {
		if err := p.Validate(); err != nil {
			return Document{}, fmt.Errorf("%w: pad %d: %v", ErrMalformed, i, err)
		}
	}
	return Document{Version: raw.Version, UpdatedAt: raw.UpdatedAt, Pads: *raw.Pads}, nil
}
