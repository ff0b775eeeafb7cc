package purge

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeFrameAll is the literal disabling the time filter.
const TimeFrameAll = "all"

// msEpoch2001 is 2001-01-01T00:00:00Z in epoch milliseconds. Unix
// timestamps below it are read as seconds, at or above it as
// milliseconds. No second-resolution timestamp before 2001 is
// representable, which is acceptable for records this service creates.
const msEpoch2001 = 978307200000

// ParseTimeFrame parses the relative window grammar <integer><unit> with
// unit in h, d, w, m (30-day months), or the literal "all". The second
// return is true for "all".
func ParseTimeFrame(s string) (time.Duration, bool, error) {
	s = strings.TrimSpace(s)
	if s == TimeFrameAll {
		return 0, true, nil
	}
	if len(s) < 2 {
		return 0, false, fmt.Errorf("invalid time frame %q", s)
	}

	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, false, fmt.Errorf("invalid time frame %q", s)
	}

	switch unit {
	case 'h':
		return time.Duration(n) * time.Hour, false, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, false, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, false, nil
	case 'm':
		return time.Duration(n) * 30 * 24 * time.Hour, false, nil
	default:
		return 0, false, fmt.Errorf("invalid time frame unit %q", string(unit))
	}
}

// ParseSpecificDate parses an absolute cutoff: an ISO-8601 date or
// datetime, or a Unix timestamp in seconds or milliseconds.
func ParseSpecificDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return time.Time{}, fmt.Errorf("negative timestamp %q", s)
		}
		if n < msEpoch2001 {
			return time.Unix(n, 0).UTC(), nil
		}
		return time.UnixMilli(n).UTC(), nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
