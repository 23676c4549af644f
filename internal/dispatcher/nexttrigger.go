package dispatcher

import (
	"time"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// NextTrigger returns the first trigger time of s strictly after now.
//
// Normally the schedule fires at TimeHour:TimeMinute every Interval days,
// counted from the day of TimePlaced (today when unset). Times that were
// missed while the server was down are skipped, never returned.
//
// fakeMinutes is a debug cadence:
//
//	1   fire every Interval hours at minute TimeHour, second TimeMinute
//	>1  fire every fakeMinutes minutes on the minute grid
//
// The result only depends on its arguments, so computing it twice for the
// same instant yields the same time.
func NextTrigger(s *domain.Schedule, now time.Time, fakeMinutes int) time.Time {
	interval := max(s.Interval, 1)
	loc := now.Location()

	switch {
	case fakeMinutes > 1:
		step := time.Duration(fakeMinutes) * time.Minute
		minute := (now.Minute()/fakeMinutes + 1) * fakeMinutes % 60
		c := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), minute, 0, 0, loc)
		for !c.After(now) {
			c = c.Add(step)
		}
		return c

	case fakeMinutes == 1:
		step := time.Duration(interval) * time.Hour
		c := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), s.TimeHour, s.TimeMinute, 0, loc)
		for !c.After(now) {
			c = c.Add(step)
		}
		return c
	}

	anchor := now
	if !s.TimePlaced.IsZero() && s.TimePlaced.Before(now) {
		anchor = s.TimePlaced.In(loc)
	}
	c := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), s.TimeHour, s.TimeMinute, 0, 0, loc)
	if c.After(now) {
		return c
	}

	// Jump close to now in whole intervals, then step. Calendar arithmetic
	// keeps the wall clock time across DST changes.
	days := int(now.Sub(c).Hours() / 24)
	skip := days / interval * interval
	c = time.Date(c.Year(), c.Month(), c.Day()+skip, s.TimeHour, s.TimeMinute, 0, 0, loc)
	for !c.After(now) {
		c = time.Date(c.Year(), c.Month(), c.Day()+interval, s.TimeHour, s.TimeMinute, 0, 0, loc)
	}
	return c
}
