package summary

import (
	"strings"
	"time"
)

var (
	zonedLayouts = []string{
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04-07:00",
	}
	localLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02",
	}
)

// NormalizeTimestamp rewrites an ISO-8601 timestamp string into canonical
// form, reading a trailing "Z" as +00:00. Values that are not strings or do
// not parse are returned unchanged.
func NormalizeTimestamp(raw any) any {
	s, ok := raw.(string)
	if !ok {
		return raw
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), "Z", "+00:00")

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return format(t, true)
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return format(t, false)
		}
	}
	return raw
}

// format renders seconds always, microseconds only when non-zero and the
// offset only for zoned inputs.
func format(t time.Time, zoned bool) string {
	layout := "2006-01-02T15:04:05"
	if t.Nanosecond()/int(time.Microsecond) != 0 {
		layout += ".000000"
	}
	if zoned {
		layout += "-07:00"
	}
	return t.Truncate(time.Microsecond).Format(layout)
}
