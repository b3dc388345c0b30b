// Package clock renders timestamps the way the lead desk reads them: Moscow
// time, 24-hour clock.
package clock

import (
	"time"
)

// Layout matches the ru-RU locale date-time rendering.
const Layout = "02.01.2006, 15:04:05"

var moscow = loadMoscow()

func loadMoscow() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		// Moscow has had no DST since 2014.
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// Location returns the Moscow time zone.
func Location() *time.Location {
	return moscow
}

// Format renders t in Moscow time.
func Format(t time.Time) string {
	return t.In(moscow).Format(Layout)
}

// NowLocal returns the current Moscow time for log lines.
func NowLocal() string {
	return Format(time.Now())
}
