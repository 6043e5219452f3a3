package game

import "time"

// TimerSchedule controls how long the player has for each word. The
// allowance shrinks linearly with the word index down to Min.
type TimerSchedule struct {
	Base time.Duration
	Step time.Duration
	Min  time.Duration
}

var (
	// DefaultSchedule is used for the concurrent falling rounds.
	DefaultSchedule = TimerSchedule{Base: 7500 * time.Millisecond, Step: 500 * time.Millisecond, Min: 2500 * time.Millisecond}
	// FastSchedule is the single-round practice pace.
	FastSchedule = TimerSchedule{Base: 2500 * time.Millisecond, Step: 100 * time.Millisecond, Min: time.Second}
)

// Duration returns the countdown for the word at index.
func (s TimerSchedule) Duration(index int) time.Duration {
	d := s.Base - time.Duration(index)*s.Step
	if d < s.Min {
		d = s.Min
	}
	if d <= 0 {
		// a zero schedule would never time out
		d = time.Millisecond
	}
	return d
}
