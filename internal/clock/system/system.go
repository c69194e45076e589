// Package system provides the wall clock used to stamp jobs and credential usage.
package system

import "time"

// Clock satisfies indexing.Clock. Timestamps are always UTC so job records
// compare cleanly whichever store holds them.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
