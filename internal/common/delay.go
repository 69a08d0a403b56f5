package common

import "time"

// WaitWithCancellation sleeps for d unless done is closed first.
// It reports whether the whole delay elapsed.
func WaitWithCancellation(done <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return false
	case <-timer.C:
		return true
	}
}
