package query

import (
	"context"
	"slices"

	"mercator-hq/agentgov/pkg/audit"
)

// Page is one page of a cursor-paginated query.
type Page struct {
	Events []*audit.Event `json:"events"`

	// HasMore reports whether more events exist in the direction of travel.
	HasMore bool `json:"has_more"`

	// NextCursor continues after the last event. Empty when there is nothing
	// further.
	NextCursor string `json:"next_cursor,omitempty"`

	// PrevCursor continues before the first event. Empty on the first page.
	PrevCursor string `json:"prev_cursor,omitempty"`
}

// ExecutePaginated returns one page. It fetches one extra row to detect
// whether more events follow without a separate count. Offset is ignored once
// a cursor is set.
func (b *Builder) ExecutePaginated(ctx context.Context) (*Page, error) {
	f, err := b.prepared()
	if err != nil {
		return nil, err
	}
	limit := f.Limit

	backward := false
	if b.cursor != nil {
		f.After = b.cursor.Keyset()
		f.Offset = 0
		if b.cursor.Direction == audit.DirectionPrev {
			backward = true
			f.Order = reverse(f.Order)
		}
	}
	f.Limit = limit + 1

	events, err := b.src.Query(ctx, f)
	if err != nil {
		return nil, audit.NewQueryError(f, err)
	}

	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}
	if backward {
		slices.Reverse(events)
	}

	page := &Page{Events: events, HasMore: hasMore}
	if len(events) == 0 {
		return page, nil
	}

	first, last := events[0], events[len(events)-1]
	switch {
	case backward:
		page.NextCursor = audit.NewCursor(last, audit.DirectionNext).Encode()
		if hasMore {
			page.PrevCursor = audit.NewCursor(first, audit.DirectionPrev).Encode()
		}
	default:
		if hasMore {
			page.NextCursor = audit.NewCursor(last, audit.DirectionNext).Encode()
		}
		if b.cursor != nil || f.Offset > 0 {
			page.PrevCursor = audit.NewCursor(first, audit.DirectionPrev).Encode()
		}
	}
	return page, nil
}

func reverse(o audit.Order) audit.Order {
	if o == audit.OrderAsc {
		return audit.OrderDesc
	}
	return audit.OrderAsc
}
