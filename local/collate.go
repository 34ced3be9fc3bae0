package local

import (
	"encoding/json"
	"strings"
)

// collate orders view keys the way the index does: null < booleans <
// numbers < strings < arrays < objects, with member-wise comparison
// inside arrays. Objects of equal rank fall back to their serialized
// form, which keeps the order total.
func collate(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0: // null
		return 0
	case 1: // bool, false < true
		return boolInt(a.(bool)) - boolInt(b.(bool))
	case 2:
		fa, fb := a.(float64), b.(float64)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case 3:
		return strings.Compare(a.(string), b.(string))
	case 4:
		aa, ba := a.([]any), b.([]any)
		for i := 0; i < len(aa) && i < len(ba); i++ {
			if c := collate(aa[i], ba[i]); c != 0 {
				return c
			}
		}
		return len(aa) - len(ba)
	default:
		return strings.Compare(collationKey(a), collationKey(b))
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	case []any:
		return 4
	default:
		return 5
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// collationKey is a stable string form used for grouping and object
// tie-breaks.
func collationKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(b)
}
