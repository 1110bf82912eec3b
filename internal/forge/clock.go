package forge

import (
	"strconv"
	"time"
)

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// Epoch returns the clock's current unix time in seconds as a string.
func Epoch(c Clock) string {
	return strconv.FormatInt(c.Now().Unix(), 10)
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FakeClock always returns the same instant.
type FakeClock struct {
	T time.Time
}

// DefaultFakeTime is the instant NewFakeClock returns.
var DefaultFakeTime = time.Date(2022, time.July, 29, 0, 0, 0, 0, time.UTC)

// NewFakeClock returns a FakeClock fixed at DefaultFakeTime.
func NewFakeClock() *FakeClock {
	return &FakeClock{T: DefaultFakeTime}
}

func (f *FakeClock) Now() time.Time {
	return f.T
}
