package reconcile

import (
	"fmt"
	"time"
)

// Window is a daily admission window. Start is inclusive and End exclusive at
// minute granularity. Start == End is always open; Start > End wraps midnight.
type Window struct {
	Start ClockTime
	End   ClockTime
}

// AlwaysOpen admits every tick.
var AlwaysOpen = Window{End: EndOfDay}

// Allows reports whether now, read in loc, falls inside the window.
func (w Window) Allows(now time.Time, loc *time.Location) bool {
	m := minuteOfDay(now, loc)
	start, end := w.Start.Minutes(), w.End.Minutes()
	switch {
	case start == end || (start == 0 && end == EndOfDay.Minutes()):
		return true
	case start < end:
		return m >= start && m < end
	default:
		return m >= start || m < end
	}
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start, w.End)
}
