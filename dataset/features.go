package dataset

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

const (
	ColDate      = "Date"
	ColCustomers = "Customers"
	ColYear      = "Year"
	ColMonth     = "Month"
	ColDay       = "Day"
	ColDayOfWeek = "DayOfWeek"
	ColIsWeekend = "IsWeekend"
)

// LeakyColumns are dropped before training: the raw date is replaced by its
// calendar features and customer counts are unknown at prediction time.
var LeakyColumns = []string{ColDate, ColCustomers}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
}

func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// Weekday returns the day of week with Monday as 0 and Sunday as 6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// EngineerFeatures derives Year, Month, Day, DayOfWeek and IsWeekend from
// Date, then drops Date and Customers. Rows are never dropped.
func EngineerFeatures(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if !HasColumn(df, ColDate) {
		return df, fmt.Errorf("feature engineering: %w %q", ErrMissingColumn, ColDate)
	}

	raw := df.Col(ColDate).Records()
	n := len(raw)
	years := make([]int, n)
	months := make([]int, n)
	days := make([]int, n)
	weekdays := make([]int, n)
	weekends := make([]int, n)
	for i, r := range raw {
		t, err := ParseDate(r)
		if err != nil {
			return df, fmt.Errorf("row %d: %w", i, err)
		}
		years[i] = t.Year()
		months[i] = int(t.Month())
		days[i] = t.Day()
		weekdays[i] = Weekday(t)
		if weekdays[i] >= 5 {
			weekends[i] = 1
		}
	}

	df = df.Mutate(series.New(years, series.Int, ColYear)).
		Mutate(series.New(months, series.Int, ColMonth)).
		Mutate(series.New(days, series.Int, ColDay)).
		Mutate(series.New(weekdays, series.Int, ColDayOfWeek)).
		Mutate(series.New(weekends, series.Int, ColIsWeekend))

	var drop []string
	for _, c := range LeakyColumns {
		if HasColumn(df, c) {
			drop = append(drop, c)
		}
	}
	if len(drop) > 0 {
		df = df.Drop(drop)
	}
	if df.Err != nil {
		return df, fmt.Errorf("feature engineering: %w", df.Err)
	}
	return df, nil
}
