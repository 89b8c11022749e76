package domain

import (
	"fmt"
	"time"
)

// localDateTimeLayout accepts peers that emit zone-less ISO-8601 date-times.
const localDateTimeLayout = "2006-01-02T15:04:05.999999999"

func formatTimestamp(ts time.Time) string {
	return ts.Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(localDateTimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return ts, nil
}
