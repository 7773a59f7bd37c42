package core

import "fmt"

// TimeInt is a value on a timeline. The unit is whatever the producer logged
// (nanoseconds, frame numbers, log ticks); the engine only compares values.
type TimeInt int64

const (
	// TimeMin is the smallest representable timeline value.
	TimeMin TimeInt = -1 << 63
	// TimeMax is the largest representable timeline value.
	TimeMax TimeInt = 1<<63 - 1
)

// Timeline names an index column. The empty Timeline selects static data
// (rows with no time association).
type Timeline string

// IsStatic reports whether the selector addresses static data.
func (t Timeline) IsStatic() bool { return t == "" }

// TimeRange is an inclusive [Min, Max] interval on one timeline.
type TimeRange struct {
	Min TimeInt `json:"min"`
	Max TimeInt `json:"max"`
}

// Contains reports whether t lies within the range.
func (r TimeRange) Contains(t TimeInt) bool {
	return t >= r.Min && t <= r.Max
}

// Intersects reports whether the two inclusive ranges overlap.
func (r TimeRange) Intersects(o TimeRange) bool {
	return r.Min <= o.Max && o.Min <= r.Max
}

// Union returns the smallest range covering both r and o.
func (r TimeRange) Union(o TimeRange) TimeRange {
	u := r
	if o.Min < u.Min {
		u.Min = o.Min
	}
	if o.Max > u.Max {
		u.Max = o.Max
	}
	return u
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}
