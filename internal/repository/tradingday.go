package repository

import "time"

// DayCutoff is the UTC time of day at which a new trading day starts
// (12:00 EST).
const DayCutoff = 17 * time.Hour

// TradingDay labels ts with the trading day it falls in, as YYYY-MM-DD.
// Timestamps before the cutoff belong to the previous calendar day.
func TradingDay(ts time.Time) string {
	return ts.UTC().Add(-DayCutoff).Format(time.DateOnly)
}
