package clock

import "time"

// Clock abstracts time.Now so deadline and expiry arithmetic can be tested
// deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns a Clock backed by the wall clock, normalised to UTC.
func System() Clock { return systemClock{} }

// Fixed returns a Clock frozen at the provided instant.
func Fixed(t time.Time) Clock { return fixedClock{t: t.UTC()} }

type fixedClock struct {
	t time.Time
}

func (f fixedClock) Now() time.Time { return f.t }
