package models

import "time"

// TimerStatus defines the countdown lifecycle.
type TimerStatus string

const (
	TimerStatusReset TimerStatus = "RESET"
	TimerStatusStart TimerStatus = "START"
	TimerStatusStop  TimerStatus = "STOP"
	TimerStatusEnd   TimerStatus = "END"
)

// Timer is the per-game synchronized countdown. Timestamp is the server time
// of the last status change; every client renders remaining time from it
// after applying its own clock offset. Only ManagedBy may end or reset the
// countdown; Authorized gates player actions regardless of status.
type Timer struct {
	GameID       string      `json:"game_id"`
	Status       TimerStatus `json:"status"`
	DurationSec  int         `json:"duration_sec"`
	RemainingSec int         `json:"remaining_sec"` // frozen on STOP
	Forward      bool        `json:"forward"`       // count up instead of down
	Authorized   bool        `json:"authorized"`
	ManagedBy    string      `json:"managed_by,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Deadline returns the instant the running countdown expires. The second
// return is false unless the timer is running a countdown.
func (t *Timer) Deadline() (time.Time, bool) {
	if t.Status != TimerStatusStart || t.Forward {
		return time.Time{}, false
	}
	return t.Timestamp.Add(time.Duration(t.RemainingSec) * time.Second), true
}
