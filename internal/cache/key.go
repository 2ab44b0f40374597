package cache

import (
	"fmt"
	"time"
)

// LiveKey builds the deterministic cache key for a live channel fetch.
// Two requests for the same channel and result count share one entry.
func LiveKey(channelID string, results int) string {
	return fmt.Sprintf("live|%s|%d", channelID, results)
}

// HistoricalKey builds the deterministic cache key for a date-range fetch.
// Times are normalized to UTC so the same logical range always maps to
// the same entry regardless of the caller's zone.
func HistoricalKey(channelID string, start, end time.Time) string {
	const layout = "2006-01-02 15:04:05"
	return fmt.Sprintf("hist|%s|%s|%s", channelID, start.UTC().Format(layout), end.UTC().Format(layout))
}
