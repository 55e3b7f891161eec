package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateDTEFrom(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC) // a Monday afternoon

	tests := []struct {
		expiration string
		want       int
	}{
		{"2026-03-02", 0},
		{"2026-03-03", 1},
		{"2026-03-20", 18},
		{"2026-02-27", -3},
		{"not-a-date", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CalculateDTEFrom(tt.expiration, now), "expiration %s", tt.expiration)
	}
}

func TestCalculateDTEIgnoresTimeOfDay(t *testing.T) {
	morning := time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, CalculateDTEFrom("2026-03-06", morning), CalculateDTEFrom("2026-03-06", evening))
}

func TestNextWeeklyExpirationsFrom(t *testing.T) {
	monday := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"20260306", "20260313", "20260320"}, NextWeeklyExpirationsFrom(3, monday))
}

func TestNextWeeklyExpirationsSkipsCurrentFriday(t *testing.T) {
	friday := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"20260313", "20260320"}, NextWeeklyExpirationsFrom(2, friday))
}

func TestNextWeeklyExpirationsCrossMonth(t *testing.T) {
	// Last Monday of March; the second Friday lands in April.
	monday := time.Date(2026, 3, 30, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"20260403", "20260410"}, NextWeeklyExpirationsFrom(2, monday))
}

func TestBrokerDateToISO(t *testing.T) {
	assert.Equal(t, "2026-09-18", BrokerDateToISO("20260918"))
	assert.Equal(t, "garbage", BrokerDateToISO("garbage"))
}
