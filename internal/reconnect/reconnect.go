package reconnect

import "time"

// Schedule defines the backoff durations for successive stream reconnect
// attempts. The bridge sits next to a desktop host, so the schedule stays
// short; a relay that is down for longer than this is treated as lost.
var Schedule = []time.Duration{
	500 * time.Millisecond, time.Second, 2 * time.Second,
	5 * time.Second, 10 * time.Second,
}

// Delay returns the backoff duration for the given attempt.
// Attempts beyond the length of the schedule default to 15 seconds.
func Delay(attempt int) time.Duration {
	if attempt < len(Schedule) {
		return Schedule[attempt]
	}
	return 15 * time.Second
}
