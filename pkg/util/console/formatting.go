package console

import (
	"time"

	"github.com/xeonx/timeago"
)

// FormatTime renders t relative to now, e.g. "3 hours ago".
func FormatTime(t time.Time) string {
	return timeago.English.Format(t)
}

// FormatDuration renders a stage or run duration rounded for humans.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
