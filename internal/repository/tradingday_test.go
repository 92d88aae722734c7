package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTradingDay(t *testing.T) {
	cases := []struct {
		ts   time.Time
		want string
	}{
		{time.Date(2026, 3, 10, 16, 59, 0, 0, time.UTC), "2026-03-09"},
		{time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC), "2026-03-10"},
		{time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC), "2026-02-28"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, TradingDay(c.ts), c.ts.String())
	}
}
