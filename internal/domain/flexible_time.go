package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlexibleTime handles the timestamp formats the authority emits
type FlexibleTime struct {
	time.Time
}

var flexibleTimeFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999Z",
	"2006-01-02T15:04:05",
	time.DateTime,
	time.DateOnly,
}

// UnmarshalJSON accepts ISO8601 strings, date-only strings and unix seconds or milliseconds
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" || string(b) == `""` {
		ft.Time = time.Time{}
		return nil
	}

	if b[0] != '"' {
		n, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("unable to parse timestamp: %s", string(b))
		}
		ft.Time = fromUnix(n)
		return nil
	}

	s := strings.Trim(string(b), "\"")
	for _, format := range flexibleTimeFormats {
		if t, err := time.Parse(format, s); err == nil {
			ft.Time = t
			return nil
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		ft.Time = fromUnix(n)
		return nil
	}

	return fmt.Errorf("unable to parse timestamp: %s", s)
}

// MarshalJSON writes RFC3339, or null for the zero time
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	if ft.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ft.UTC().Format(time.RFC3339))
}

// values above 1e12 are treated as milliseconds
func fromUnix(n float64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}
