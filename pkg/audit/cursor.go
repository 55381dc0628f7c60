package audit

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Direction is the paging direction a cursor continues in.
type Direction string

const (
	DirectionNext Direction = "next"
	DirectionPrev Direction = "prev"
)

// Cursor is an opaque pagination position.
type Cursor struct {
	Timestamp time.Time `json:"ts"`
	EventID   string    `json:"id"`
	Direction Direction `json:"dir"`
}

// NewCursor returns a cursor positioned at e.
func NewCursor(e *Event, dir Direction) Cursor {
	return Cursor{Timestamp: e.Timestamp, EventID: e.EventID, Direction: dir}
}

// Keyset returns the cursor position.
func (c Cursor) Keyset() *Keyset {
	return &Keyset{Timestamp: c.Timestamp, EventID: c.EventID}
}

// Encode returns the URL-safe base64 form of the cursor.
func (c Cursor) Encode() string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a cursor produced by Encode.
func DecodeCursor(s string) (Cursor, error) {
	var c Cursor
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.EventID == "" {
		return c, fmt.Errorf("%w: missing event id", ErrInvalidCursor)
	}
	switch c.Direction {
	case DirectionNext, DirectionPrev:
	case "":
		c.Direction = DirectionNext
	default:
		return c, fmt.Errorf("%w: unknown direction %q", ErrInvalidCursor, c.Direction)
	}
	return c, nil
}
