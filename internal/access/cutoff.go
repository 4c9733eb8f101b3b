// Package access implements the QR pass lifecycle: expiry computation,
// pass issuance and the scan validation state machine.  It owns no
// persistence of its own; storage is reached through the narrow Store
// interfaces so the decision logic can be exercised against an in-memory
// double in tests.
package access

import "time"

// Calculator computes pass expiries capped at the institution's recurring
// weekly cutoff.  The cutoff is a fixed day-of-week and hour in a fixed
// reference timezone; the external weekly reset job clears all location
// state at that instant, so no pass may remain valid beyond it.
//
// The zero value is not usable; construct with the configured weekday,
// hour and location.
type Calculator struct {
	Weekday time.Weekday   // day of week of the cutoff instant
	Hour    int            // hour of day (0-23) of the cutoff instant
	Loc     *time.Location // reference timezone the cutoff is defined in
}

// NextCutoff returns the next upcoming weekly cutoff strictly after now.
// When this week's cutoff instant has already passed (or is exactly now),
// next week's is returned.
func (c Calculator) NextCutoff(now time.Time) time.Time {
	local := now.In(c.Loc)
	days := (int(c.Weekday) - int(local.Weekday()) + 7) % 7
	cut := time.Date(local.Year(), local.Month(), local.Day()+days, c.Hour, 0, 0, 0, c.Loc)
	if !cut.After(now) {
		cut = cut.AddDate(0, 0, 7)
	}
	return cut
}

// ComputeExpiry returns now+ttl, capped at the next weekly cutoff.  The
// function is pure: same inputs, same output, no side effects.
func (c Calculator) ComputeExpiry(now time.Time, ttlMinutes int) time.Time {
	candidate := now.Add(time.Duration(ttlMinutes) * time.Minute)
	if cap := c.NextCutoff(now); candidate.After(cap) {
		return cap
	}
	return candidate
}
