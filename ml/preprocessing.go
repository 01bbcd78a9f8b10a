package ml

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each column on its training mean and scales it to
// unit population variance. Constant columns keep a scale of 1.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

func (s *StandardScaler) Fit(columns [][]float64) error {
	s.Mean = make([]float64, len(columns))
	s.Scale = make([]float64, len(columns))
	for j, col := range columns {
		if len(col) == 0 {
			return fmt.Errorf("scaler: column %d is empty", j)
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		s.Scale[j] = std
		if std == 0 {
			s.Scale[j] = 1
		}
	}
	return nil
}

func (s *StandardScaler) Apply(j int, v float64) float64 {
	return (v - s.Mean[j]) / s.Scale[j]
}

// OneHotEncoder keeps the sorted distinct categories seen per column.
// A category that was never seen encodes to an all-zero block.
type OneHotEncoder struct {
	Categories [][]string
}

func (e *OneHotEncoder) Fit(columns [][]string) {
	e.Categories = make([][]string, len(columns))
	for j, col := range columns {
		seen := make(map[string]struct{}, 8)
		for _, v := range col {
			seen[v] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		e.Categories[j] = cats
	}
}

// Width is the total number of output columns across all blocks.
func (e *OneHotEncoder) Width() int {
	w := 0
	for _, cats := range e.Categories {
		w += len(cats)
	}
	return w
}

// Encode writes the block for column j into dst, which must be
// len(Categories[j]) long. It reports whether v was a known category.
func (e *OneHotEncoder) Encode(j int, v string, dst []float64) bool {
	for k := range dst {
		dst[k] = 0
	}
	cats := e.Categories[j]
	k := sort.SearchStrings(cats, v)
	if k < len(cats) && cats[k] == v {
		dst[k] = 1
		return true
	}
	return false
}
