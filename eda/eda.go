// Package eda produces the exploratory summary of the joined sales data:
// sales grouped by the factors the model uses, and how strongly customers
// and competition track sales.
package eda

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/stat"

	"github.com/mulsewm/rossmann-sales-forecasting/dataset"
)

const SummaryFile = "eda_summary.json"

// GroupedBy lists the columns sales are broken down by.
var GroupedBy = []string{"Promo", dataset.ColStateHoliday, dataset.ColDayOfWeek, dataset.ColAssortment}

type GroupStat struct {
	Key    string  `json:"key"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

type Correlation struct {
	X       string   `json:"x"`
	Y       string   `json:"y"`
	Pearson *float64 `json:"pearson"`
}

type Summary struct {
	Rows         int                    `json:"rows"`
	Columns      []string               `json:"columns"`
	Missing      map[string]int         `json:"missing"`
	SalesBy      map[string][]GroupStat `json:"sales_by"`
	SalesByWeek  []GroupStat            `json:"sales_by_week"`
	Correlations []Correlation          `json:"correlations"`
}

// Summarize works on a copy of the joined table. Missing competition
// distances take the column median and every other missing value reads as
// zero; DayOfWeek is recomputed from Date (0=Monday).
func Summarize(df dataframe.DataFrame) (*Summary, error) {
	df = dataset.TrimNames(df)
	for _, name := range []string{dataset.ColSales, dataset.ColDate} {
		if !dataset.HasColumn(df, name) {
			return nil, fmt.Errorf("%w: %s", dataset.ErrMissingColumn, name)
		}
	}

	s := &Summary{
		Rows:    df.Nrow(),
		Columns: df.Names(),
		Missing: missingCounts(df),
		SalesBy: make(map[string][]GroupStat),
	}

	sales := zeroFilled(df.Col(dataset.ColSales).Float())

	dates := df.Col(dataset.ColDate).Records()
	weekday := make([]string, len(dates))
	week := make([]string, len(dates))
	for i, raw := range dates {
		t, err := dataset.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		weekday[i] = strconv.Itoa(dataset.Weekday(t))
		_, w := t.ISOWeek()
		week[i] = strconv.Itoa(w)
	}

	for _, name := range GroupedBy {
		var keys []string
		switch {
		case name == dataset.ColDayOfWeek:
			keys = weekday
		case dataset.HasColumn(df, name):
			keys = categoryKeys(df, name)
		default:
			continue
		}
		s.SalesBy[name] = group(keys, sales)
	}
	s.SalesByWeek = group(week, sales)

	for _, x := range []string{dataset.ColCustomers, dataset.ColCompetitionDistance} {
		if !dataset.HasColumn(df, x) {
			continue
		}
		values := df.Col(x).Float()
		if x == dataset.ColCompetitionDistance {
			values = medianFilled(values)
		} else {
			values = zeroFilled(values)
		}
		s.Correlations = append(s.Correlations, Correlation{
			X:       x,
			Y:       dataset.ColSales,
			Pearson: pearson(values, sales),
		})
	}
	return s, nil
}

// Write stores the summary as indented JSON in dir and returns the path.
func Write(dir string, s *Summary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	path := filepath.Join(dir, SummaryFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}

func missingCounts(df dataframe.DataFrame) map[string]int {
	out := make(map[string]int)
	for _, name := range df.Names() {
		col := df.Col(name)
		n := 0
		for i := 0; i < col.Len(); i++ {
			if dataset.IsMissing(col.Elem(i)) {
				n++
			}
		}
		if n > 0 {
			out[name] = n
		}
	}
	return out
}

func categoryKeys(df dataframe.DataFrame, name string) []string {
	col := df.Col(name)
	keys := make([]string, col.Len())
	for i := range keys {
		e := col.Elem(i)
		if dataset.IsMissing(e) {
			keys[i] = "0"
			continue
		}
		keys[i] = e.String()
		// "0" and "0.0" are the same holiday code.
		if f, err := strconv.ParseFloat(keys[i], 64); err == nil {
			keys[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return keys
}

// group sorts numeric keys numerically, ahead of any non-numeric ones.
func group(keys []string, values []float64) []GroupStat {
	buckets := make(map[string][]float64)
	for i, k := range keys {
		buckets[k] = append(buckets[k], values[i])
	}
	out := make([]GroupStat, 0, len(buckets))
	for k, v := range buckets {
		out = append(out, GroupStat{
			Key:    k,
			Count:  len(v),
			Mean:   stat.Mean(v, nil),
			Median: dataset.Median(v),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, errA := strconv.ParseFloat(out[i].Key, 64)
		b, errB := strconv.ParseFloat(out[j].Key, 64)
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil || errB == nil:
			return errA == nil
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func zeroFilled(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			out[i] = v
		}
	}
	return out
}

func medianFilled(values []float64) []float64 {
	m := dataset.Median(values)
	if math.IsNaN(m) {
		m = 0
	}
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			v = m
		}
		out[i] = v
	}
	return out
}

// pearson is nil when either side is constant and the coefficient is
// undefined.
func pearson(x, y []float64) *float64 {
	if len(x) < 2 {
		return nil
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return nil
	}
	return &r
}
