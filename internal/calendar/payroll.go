package calendar

import "time"

// PayrollTime is the release time of the employment situation report in New York.
var PayrollTime = TimeOfDay{Hour: 8, Minute: 30}

// FirstFriday returns the first Friday of the given month.
func FirstFriday(year int, month time.Month) Date {
	first := time.Date(year, month, 1, 12, 0, 0, 0, time.UTC)
	offset := (int(time.Friday) - int(first.Weekday()) + 7) % 7
	return DateOf(first.AddDate(0, 0, offset))
}

// NextNonfarmPayroll returns the first payroll release strictly after now,
// using the first-Friday 08:30 New York rule.
func NextNonfarmPayroll(now time.Time) (time.Time, error) {
	loc, err := LoadZone(DefaultZone)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	year, month := local.Year(), local.Month()
	for range 3 {
		at, err := Combine(FirstFriday(year, month), PayrollTime, loc)
		if err != nil {
			return time.Time{}, err
		}
		if at.After(now) {
			return at, nil
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return time.Time{}, nil
}
