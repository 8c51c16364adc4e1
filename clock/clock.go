// Package clock isolates the millisecond wall clock DoubleCache and
// CircularCache use for staleness comparisons, so tests can drive aging
// deterministically instead of sleeping real seconds.
package clock

import "time"

// Clock returns the current time as milliseconds, in whatever epoch the
// implementation chooses — callers only ever compare two readings from the
// same Clock, never interpret the value itself.
type Clock interface {
	NowMillis() int64
}

// Real is the default Clock, backed by time.Now().
type Real struct{}

var _ Clock = Real{}

func (Real) NowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// Fake is a Clock a test can advance manually.
type Fake struct {
	millis int64
}

var _ Clock = (*Fake)(nil)

// NewFake returns a Fake clock starting at the given millisecond reading.
func NewFake(start int64) *Fake {
	return &Fake{millis: start}
}

func (f *Fake) NowMillis() int64 {
	return f.millis
}

// Advance moves the fake clock forward by millis.
func (f *Fake) Advance(millis int64) {
	f.millis += millis
}

// Set pins the fake clock to an absolute reading.
func (f *Fake) Set(millis int64) {
	f.millis = millis
}
