package snapshot

import (
	"fmt"
	"time"
)

// Layout is the on-disk snapshot name: local time, seconds precision, with
// a numeric offset so the name carries its own instant.
const Layout = "2006-01-02T15:04:05-07:00"

// accepted layouts, tried in order when reading names back.
var parseLayouts = []string{
	Layout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15-04-05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp formats t as a snapshot name.
func Timestamp(t time.Time) string {
	return t.Truncate(time.Second).Format(Layout)
}

// NewTimestamp returns the name for a run started at now in the local zone.
func NewTimestamp(now time.Time) string {
	return Timestamp(now.In(time.Local))
}

// ParseTimestamp parses a snapshot name. Names without an offset are read
// in the local zone.
func ParseTimestamp(name string) (time.Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, name, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a snapshot timestamp: %q", name)
}
