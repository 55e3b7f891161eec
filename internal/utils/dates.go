package utils

import "time"

// CalculateDTE returns days to expiration for a YYYY-MM-DD date string.
// Unparseable dates count as expired.
func CalculateDTE(expiration string) int {
	return CalculateDTEFrom(expiration, time.Now())
}

// CalculateDTEFrom is CalculateDTE with an injectable clock for tests.
func CalculateDTEFrom(expiration string, now time.Time) int {
	exp, err := time.Parse("2006-01-02", expiration)
	if err != nil {
		return 0
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(exp.Sub(today).Hours() / 24)
}

// NextWeeklyExpirations returns the next count weekly (Friday) expiration
// dates in YYYYMMDD broker format. If today is a Friday the series starts
// with next week's Friday, matching contract availability after the close.
func NextWeeklyExpirations(count int) []string {
	return NextWeeklyExpirationsFrom(count, time.Now())
}

func NextWeeklyExpirationsFrom(count int, now time.Time) []string {
	daysUntilFriday := (int(time.Friday) - int(now.Weekday()) + 7) % 7
	if daysUntilFriday == 0 {
		daysUntilFriday = 7
	}
	nextFriday := now.AddDate(0, 0, daysUntilFriday)

	expirations := make([]string, 0, count)
	for i := 0; i < count; i++ {
		expirations = append(expirations, nextFriday.AddDate(0, 0, 7*i).Format("20060102"))
	}
	return expirations
}

// BrokerDateToISO converts a YYYYMMDD expiration to YYYY-MM-DD.
func BrokerDateToISO(expiration string) string {
	t, err := time.Parse("20060102", expiration)
	if err != nil {
		return expiration
	}
	return t.Format("2006-01-02")
}
