package model

import (
	"fmt"
	"time"
)

// TimeWindow is the half-open interval [Start, End) during which a unit is held.
type TimeWindow struct {
	Start time.Time `json:"start" bson:"start_time"`
	End   time.Time `json:"end" bson:"end_time"`
}

func NewTimeWindow(start, end time.Time) TimeWindow {
	return TimeWindow{Start: start.UTC(), End: end.UTC()}
}

func (w TimeWindow) Valid() bool {
	return w.End.After(w.Start)
}

// Overlaps reports whether w and o intersect. A window ending exactly when
// the other starts does not overlap it.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}
