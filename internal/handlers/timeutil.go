package handlers

import "time"

// Africa/Abidjan for all display formatting
var tzAbidjan *time.Location

func init() {
	loc, err := time.LoadLocation("Africa/Abidjan")
	if err != nil {
		// Abidjan is UTC+0 all year
		tzAbidjan = time.UTC
		return
	}
	tzAbidjan = loc
}

// e.g. "02/01/2006 15:04"
func fmtDateTime(d time.Time) string {
	return d.In(tzAbidjan).Format("02/01/2006 15:04")
}

// e.g. "2006-01-02"
func fmtISODate(d time.Time) string {
	return d.In(tzAbidjan).Format("2006-01-02")
}
