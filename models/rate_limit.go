package models

import "time"

// RateLimit caps how many tweets one account may consume within Window.
type RateLimit struct {
	Ceiling int
	Window  time.Duration
}
