package main

import "time"

// sinceTimestamp converts a --last-days value into the epoch-second boundary
// handed to the timeline feeds. Zero or negative means no boundary.
func sinceTimestamp(lastDays int) int64 {
	if lastDays <= 0 {
		return 0
	}
	return time.Now().AddDate(0, 0, -lastDays).Unix()
}
