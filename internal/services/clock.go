package services

import (
	"time"

	"bills/internal/core"
)

// Clock supplies "today" in the user's timezone.
type Clock struct {
	Location *time.Location
	Now      func() time.Time
}

// SystemClock uses the wall clock in loc (UTC when nil).
func SystemClock(loc *time.Location) Clock {
	return Clock{Location: loc, Now: time.Now}
}

func (c Clock) Today() core.Date {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return core.DateOf(now().In(loc))
}
