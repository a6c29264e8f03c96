package output

import (
	"encoding/json"
	"time"
)

// Event is one record from a Spark event log: newline-delimited JSON with a
// millisecond timestamp under either "Timestamp" or "time".
type Event map[string]any

// Name returns the event's name ("Event" field), or "" when absent.
func (e Event) Name() string {
	if v, ok := e["Event"].(string); ok {
		return v
	}
	return ""
}

// Time returns the event's timestamp. The second return is false when the
// record carries no usable timestamp field.
func (e Event) Time() (time.Time, bool) {
	for _, key := range []string{"Timestamp", "time"} {
		if v, ok := e[key]; ok {
			if ms, ok := v.(float64); ok {
				return time.UnixMilli(int64(ms)).UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// ParseEvents parses each non-blank line as an independent JSON record and
// keeps the ones carrying a Timestamp or time field. A malformed line
// returns a ParseError.
func ParseEvents(lines []string) ([]Event, error) {
	var events []Event
	for i, line := range lines {
		if line == "" {
			continue
		}
		var rec Event
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, &ParseError{Line: i + 1, Err: err}
		}
		if _, hasTS := rec["Timestamp"]; !hasTS {
			if _, hasTime := rec["time"]; !hasTime {
				continue
			}
		}
		events = append(events, rec)
	}
	return events, nil
}
