package scheduler

import "time"

// TradingCalendar answers whether NSE cash-market trading is open on a
// given date. Hours themselves are driven entirely by the cron
// schedule (§4.10); this only filters out weekends and the exchange's
// published holiday list.
type TradingCalendar struct {
	Timezone *time.Location
	Holidays []time.Time
}

// NewNSECalendar builds the calendar for the exchange's 2026 holiday
// list (Asia/Kolkata).
func NewNSECalendar() *TradingCalendar {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+30*60)
	}
	return &TradingCalendar{
		Timezone: loc,
		Holidays: []time.Time{
			time.Date(2026, 1, 26, 0, 0, 0, 0, loc),  // Republic Day
			time.Date(2026, 3, 14, 0, 0, 0, 0, loc),  // Holi
			time.Date(2026, 3, 30, 0, 0, 0, 0, loc),  // Ram Navami
			time.Date(2026, 4, 2, 0, 0, 0, 0, loc),   // Mahavir Jayanti
			time.Date(2026, 4, 10, 0, 0, 0, 0, loc),  // Good Friday
			time.Date(2026, 4, 14, 0, 0, 0, 0, loc),  // Ambedkar Jayanti
			time.Date(2026, 5, 1, 0, 0, 0, 0, loc),   // Maharashtra Day
			time.Date(2026, 7, 7, 0, 0, 0, 0, loc),   // Bakri Id
			time.Date(2026, 8, 15, 0, 0, 0, 0, loc),  // Independence Day
			time.Date(2026, 10, 2, 0, 0, 0, 0, loc),  // Gandhi Jayanti
			time.Date(2026, 10, 23, 0, 0, 0, 0, loc), // Dussehra
			time.Date(2026, 11, 11, 0, 0, 0, 0, loc), // Diwali
			time.Date(2026, 11, 12, 0, 0, 0, 0, loc), // Diwali (Balipratipada)
			time.Date(2026, 11, 25, 0, 0, 0, 0, loc), // Gurunanak Jayanti
			time.Date(2026, 12, 25, 0, 0, 0, 0, loc), // Christmas
		},
	}
}

// IsTradingDay reports whether t (evaluated in the calendar's
// timezone) is a Monday-Friday session that isn't a published
// holiday.
func (c *TradingCalendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.Timezone)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Timezone)
	for _, h := range c.Holidays {
		if h.Equal(today) {
			return false
		}
	}
	return true
}
