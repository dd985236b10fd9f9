package compensation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var testRates = RateConfig{
	WeekdayBase:  100000,
	WeekendBase:  150000,
	FullDayHours: decimal.NewFromInt(8),
}

func hours(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDailyRate_Table(t *testing.T) {
	tests := []struct {
		name    string
		hours   string
		weekend bool
		want    int64
	}{
		// Full-day cap
		{"full weekday", "8", false, 100000},
		{"full weekend", "8", true, 150000},
		{"over full day caps at base", "10", false, 100000},
		{"over full day weekend caps at base", "12", true, 150000},

		// Pro-rata
		{"seven weekday hours", "7", false, 87500},
		{"six weekend hours", "6", true, 112500},
		{"half day weekday", "4", false, 50000},
		{"single hour weekday", "1", false, 12500},

		// Rounding: 100000 * 3.5 / 8 = 43750 exactly;
		// 100000 * 0.25 / 8 = 3125; 100000 * 2.7 / 8 = 33750
		{"fractional hours", "3.5", false, 43750},
		{"quarter hour", "0.25", false, 3125},

		// Floor
		{"zero hours", "0", false, 0},
		{"negative hours", "-1", true, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DailyRate(hours(tc.hours), tc.weekend, testRates)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDailyRate_RoundsHalfUp(t *testing.T) {
	// 8h day at base 1001: one hour is 1001/8 = 125.125 -> 125;
	// three hours are 3003/8 = 375.375 -> 375; 4h is 500.5 -> 501.
	cfg := RateConfig{WeekdayBase: 1001, WeekendBase: 1001, FullDayHours: decimal.NewFromInt(8)}

	assert.Equal(t, int64(125), DailyRate(hours("1"), false, cfg))
	assert.Equal(t, int64(375), DailyRate(hours("3"), false, cfg))
	assert.Equal(t, int64(501), DailyRate(hours("4"), false, cfg))
}

func TestRate_Tagging(t *testing.T) {
	assert.False(t, Computed(87500).IsOverridden())
	assert.True(t, Overridden(90000).IsOverridden())
	assert.Equal(t, SourceComputed, Computed(0).Source)
	assert.Equal(t, SourceOverridden, Overridden(0).Source)
}
