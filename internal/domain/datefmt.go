package domain

import (
	"fmt"
	"strconv"
	"time"
)

// FormatUTCDate renders t as D-M-YYYY in UTC without zero padding, e.g.
// "7-3-2015". Used for chart axis labels.
func FormatUTCDate(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d-%d-%s", t.Day(), int(t.Month()), lastDigits(t.Year(), 4))
}

// FormatUTCTime renders t as "YYYY-MM-DD HH:MM:SS" in UTC. Used for chart
// value labels.
func FormatUTCTime(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d-%02d-%02d %02d:%02d:%02d",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// FormatMillis is FormatUTCTime for an epoch-millisecond timestamp.
func FormatMillis(ms int64) string {
	return FormatUTCTime(time.UnixMilli(ms))
}

// lastDigits keeps at most n trailing characters of the decimal form of v.
func lastDigits(v, n int) string {
	s := strconv.Itoa(v)
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
