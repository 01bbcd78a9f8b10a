package dataset

import (
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

const (
	ColCompetitionDistance = "CompetitionDistance"
	ColPromo2              = "Promo2"
	ColStoreType           = "StoreType"
	ColAssortment          = "Assortment"
	ColPromoInterval       = "PromoInterval"
	ColStateHoliday        = "StateHoliday"
	ColSales               = "Sales"

	DefaultStoreType     = "a"
	DefaultAssortment    = "a"
	DefaultPromoInterval = "None"
	NoHoliday            = "0"
)

// Preprocess repairs the joined table so the columns the model needs are
// always present. Absent columns are inserted with defaults and logged;
// they are never reported as errors.
//
// The table is treated as owned by the caller for the duration of the call.
func Preprocess(df dataframe.DataFrame, logger *slog.Logger) dataframe.DataFrame {
	if logger == nil {
		logger = slog.Default()
	}
	df = TrimNames(df)
	n := df.Nrow()

	if !HasColumn(df, ColCompetitionDistance) {
		logger.Info("column missing, adding default", "column", ColCompetitionDistance, "default", "median")
		df = df.Mutate(series.New(repeatFloat(math.NaN(), n), series.Float, ColCompetitionDistance))
	}
	if !HasColumn(df, ColPromo2) {
		logger.Info("column missing, adding default", "column", ColPromo2, "default", 0)
		df = df.Mutate(series.New(make([]int, n), series.Int, ColPromo2))
	}
	for _, c := range []struct{ name, def string }{
		{ColStoreType, DefaultStoreType},
		{ColAssortment, DefaultAssortment},
		{ColPromoInterval, DefaultPromoInterval},
	} {
		if !HasColumn(df, c.name) {
			logger.Info("column missing, adding default", "column", c.name, "default", c.def)
			df = df.Mutate(series.New(repeatString(c.def, n), series.String, c.name))
			continue
		}
		df = df.Mutate(fillString(df.Col(c.name), c.def))
	}

	distances := df.Col(ColCompetitionDistance).Float()
	median := Median(distances)
	if math.IsNaN(median) {
		logger.Warn("no competition distance observed, filling with zero")
		median = 0
	}
	df = df.Mutate(series.New(fillFloat(distances, median), series.Float, ColCompetitionDistance))
	df = df.Mutate(series.New(fillInt(df.Col(ColPromo2).Float(), 0), series.Int, ColPromo2))

	if !HasColumn(df, ColStateHoliday) {
		logger.Info("column missing, adding default", "column", ColStateHoliday, "default", NoHoliday)
		df = df.Mutate(series.New(repeatString(NoHoliday, n), series.String, ColStateHoliday))
	} else {
		df = df.Mutate(NormalizeHoliday(df.Col(ColStateHoliday)))
	}
	return df
}

// Median of the non-missing values, averaging the two middle values for an
// even count. NaN when nothing was observed.
func Median(values []float64) float64 {
	observed := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			observed = append(observed, v)
		}
	}
	if len(observed) == 0 {
		return math.NaN()
	}
	sort.Float64s(observed)
	mid := len(observed) / 2
	if len(observed)%2 == 1 {
		return observed[mid]
	}
	return (observed[mid-1] + observed[mid]) / 2
}

// NormalizeHoliday maps every spelling of "no holiday" (numeric 0, "0",
// "0.0") to the string "0". Missing values stay missing.
func NormalizeHoliday(s series.Series) series.Series {
	out := make([]string, s.Len())
	for i := range out {
		e := s.Elem(i)
		if IsMissing(e) {
			out[i] = "NaN"
			continue
		}
		v := strings.TrimSpace(e.String())
		if f, err := strconv.ParseFloat(v, 64); err == nil && f == 0 {
			v = NoHoliday
		}
		out[i] = v
	}
	return series.New(out, series.String, s.Name)
}

// IsMissing reports whether e holds no value. gota's LeftJoin fills the
// string cells of unmatched or empty store fields with the text "NaN"
// without marking them NA, so that text counts as missing too.
func IsMissing(e series.Element) bool {
	if e.IsNA() {
		return true
	}
	switch e.Type() {
	case series.Float:
		return math.IsNaN(e.Float())
	case series.String:
		return e.String() == "NaN"
	}
	return false
}

func fillString(s series.Series, def string) series.Series {
	out := make([]string, s.Len())
	for i := range out {
		e := s.Elem(i)
		if IsMissing(e) || strings.TrimSpace(e.String()) == "" {
			out[i] = def
			continue
		}
		out[i] = e.String()
	}
	return series.New(out, series.String, s.Name)
}

func fillFloat(values []float64, def float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			v = def
		}
		out[i] = v
	}
	return out
}

func fillInt(values []float64, def int) []int {
	out := make([]int, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = def
			continue
		}
		out[i] = int(v)
	}
	return out
}

func repeatFloat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func repeatString(v string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = v
	}
	return out
}
