package payload

import (
	"strconv"
	"strings"
)

// MaxPathDepth bounds the number of segments Lookup will follow.
const MaxPathDepth = 32

// Lookup resolves a dot-separated path against root. Map segments select keys,
// numeric segments index into lists. Any path that cannot be followed,
// including one deeper than MaxPathDepth, reports false.
func Lookup(root Value, path string) (Value, bool) {
	if path == "" {
		return Value{}, false
	}

	segments := strings.Split(path, ".")
	if len(segments) > MaxPathDepth {
		return Value{}, false
	}

	current := root
	for _, seg := range segments {
		if seg == "" {
			return Value{}, false
		}

		switch current.kind {
		case KindMap:
			next, ok := current.m[seg]
			if !ok {
				return Value{}, false
			}
			current = next

		case KindList:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(current.list) {
				return Value{}, false
			}
			current = current.list[idx]

		default:
			return Value{}, false
		}
	}

	return current, true
}

// Lookup resolves path against the map.
func (m Map) Lookup(path string) (Value, bool) {
	return Lookup(MapValue(m), path)
}
