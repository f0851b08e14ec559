// Package utils provides utility functions for the application.
package utils

import (
	"time"
)

// UTCNow returns the current time in UTC. Every persisted timestamp goes through it.
func UTCNow() time.Time {
	return time.Now().UTC()
}
