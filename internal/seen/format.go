package seen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timestamp layouts accepted for persisted entries, most specific first
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

// decode parses persisted seen state. Two shapes are accepted:
//
//	{"1790000000000000000": "2025-01-02T15:04:05Z", "17900...": 1735830245}
//	["1790000000000000000", "1790000000000000001"]
//
// The second is the legacy bare list; every id in it is stamped with now.
// Entries whose timestamp cannot be parsed are also stamped with now so they
// keep blocking a reply rather than silently expiring.
func decode(data []byte, now time.Time) (entries map[string]time.Time, legacy bool, err error) {
	trimmed := bytes.TrimSpace(data)
	entries = make(map[string]time.Time)
	if len(trimmed) == 0 {
		return entries, false, nil
	}

	switch trimmed[0] {
	case '[':
		var ids []json.RawMessage
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		for _, raw := range ids {
			id := rawID(raw)
			if id == "" {
				continue
			}
			entries[id] = now
		}
		return entries, true, nil

	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		for id, raw := range m {
			if id == "" {
				continue
			}
			ts, ok := parseTimestamp(raw)
			if !ok {
				ts = now
			}
			entries[id] = ts
		}
		return entries, false, nil

	default:
		return nil, false, fmt.Errorf("%w: unexpected leading byte %q", ErrCorrupt, trimmed[0])
	}
}

// rawID reads a legacy id that may be a JSON string or number.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		// epoch encoded as a string
		raw = json.RawMessage(s)
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || f <= 0 {
		return time.Time{}, false
	}
	// Millisecond epochs are 13 digits; seconds are 10.
	if f > 1e12 {
		return time.UnixMilli(int64(f)), true
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)), true
}

// encode writes entries in the current object format.
func encode(entries map[string]time.Time) ([]byte, error) {
	out := make(map[string]string, len(entries))
	for id, ts := range entries {
		out[id] = ts.UTC().Format(time.RFC3339Nano)
	}
	return json.MarshalIndent(out, "", "  ")
}
