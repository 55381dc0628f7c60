package audit

import (
	"slices"
	"sort"
	"strings"

	"mercator-hq/agentgov/pkg/payload"
)

// EncodeMap serialises a payload map the way stores persist it. Keys are
// sorted and a nil map encodes as {}.
func EncodeMap(m payload.Map) string {
	data, err := m.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}

// DecodeMap parses a persisted payload map. Empty objects decode to nil so
// events round-trip through a store unchanged.
func DecodeMap(s string) (payload.Map, error) {
	if s == "" {
		return nil, nil
	}
	var m payload.Map
	if err := m.UnmarshalJSON([]byte(s)); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

// Matches reports whether the event satisfies every predicate of the filter.
// Pagination fields (After, Limit, Offset) are not considered.
func (f *Filter) Matches(e *Event) bool {
	if f == nil {
		return true
	}
	if !matchAny(f.EventTypes, e.EventType) ||
		!matchAny(f.AgentIDs, e.AgentID) ||
		!matchAny(f.SessionIDs, e.SessionID) ||
		!matchAny(f.UserIDs, e.UserID) ||
		!matchAny(f.RiskLevels, e.RiskLevel) {
		return false
	}
	if len(f.Outcomes) > 0 && !slices.Contains(f.Outcomes, e.Outcome) {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if f.ActionContains != "" && !strings.Contains(e.Action, f.ActionContains) {
		return false
	}
	if f.MetadataContains != "" && !strings.Contains(EncodeMap(e.Metadata), f.MetadataContains) {
		return false
	}
	if f.DetailsContains != "" && !strings.Contains(EncodeMap(e.Details), f.DetailsContains) {
		return false
	}
	return true
}

func matchAny(values []string, v string) bool {
	return len(values) == 0 || slices.Contains(values, v)
}

// Descending reports whether the filter sorts newest first. Desc is the
// default.
func (f *Filter) Descending() bool {
	return f == nil || f.Order != OrderAsc
}

// Less orders events by (timestamp, event_id) ascending.
func Less(a, b *Event) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.EventID < b.EventID
}

// after reports whether e sorts strictly after k in the filter's order.
func (f *Filter) after(e *Event, k *Keyset) bool {
	pos := &Event{Timestamp: k.Timestamp, EventID: k.EventID}
	if f.Descending() {
		return Less(e, pos)
	}
	return Less(pos, e)
}

// Apply filters, sorts and paginates events in memory. It is the reference
// semantics every Store must reproduce. The input slice is not modified and
// the returned events are copies.
func (f *Filter) Apply(events []*Event) []*Event {
	matched := make([]*Event, 0)
	for _, e := range events {
		if !f.Matches(e) {
			continue
		}
		if f != nil && f.After != nil && !f.after(e, f.After) {
			continue
		}
		matched = append(matched, e)
	}

	desc := f.Descending()
	sort.SliceStable(matched, func(i, j int) bool {
		if desc {
			return Less(matched[j], matched[i])
		}
		return Less(matched[i], matched[j])
	})

	if f != nil && f.Offset > 0 {
		if f.Offset >= len(matched) {
			matched = matched[:0]
		} else {
			matched = matched[f.Offset:]
		}
	}
	if f != nil && f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]*Event, len(matched))
	for i, e := range matched {
		out[i] = e.Clone()
	}
	return out
}
