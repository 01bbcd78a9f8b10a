// Package dataset turns the raw Rossmann CSV exports into the fixed-schema
// feature table the training pipeline consumes.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

const StoreKey = "Store"

var ErrMissingColumn = errors.New("missing column")

// Columns that hold codes or raw text. Type detection would turn an all-"0"
// StateHoliday column into integers, so these are pinned to strings.
var stringColumns = map[string]series.Type{
	"StateHoliday":  series.String,
	"StoreType":     series.String,
	"Assortment":    series.String,
	"PromoInterval": series.String,
	"Date":          series.String,
}

var missingMarkers = []string{"", "NA", "NaN", "nan"}

func LoadCSV(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.WithTypes(stringColumns),
		dataframe.NaNValues(missingMarkers),
	)
	if df.Err != nil {
		return df, fmt.Errorf("read %s: %w", path, df.Err)
	}
	return TrimNames(df), nil
}

// Load reads the transaction and store files and left-joins them on Store.
func Load(trainPath, storePath string) (dataframe.DataFrame, error) {
	train, err := LoadCSV(trainPath)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	store, err := LoadCSV(storePath)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	return Merge(train, store)
}

// Merge keeps every transaction row; store attributes of unmatched stores
// come back as missing values.
func Merge(train, store dataframe.DataFrame) (dataframe.DataFrame, error) {
	if !HasColumn(train, StoreKey) {
		return dataframe.DataFrame{}, fmt.Errorf("transactions: %w %q", ErrMissingColumn, StoreKey)
	}
	if !HasColumn(store, StoreKey) {
		return dataframe.DataFrame{}, fmt.Errorf("stores: %w %q", ErrMissingColumn, StoreKey)
	}
	joined := train.LeftJoin(store, StoreKey)
	if joined.Err != nil {
		return joined, fmt.Errorf("join on %s: %w", StoreKey, joined.Err)
	}
	return joined, nil
}

func HasColumn(df dataframe.DataFrame, name string) bool {
	return slices.Contains(df.Names(), name)
}

// TrimNames strips surrounding whitespace from every column name.
func TrimNames(df dataframe.DataFrame) dataframe.DataFrame {
	for _, name := range df.Names() {
		if trimmed := strings.TrimSpace(name); trimmed != name {
			df = df.Rename(trimmed, name)
		}
	}
	return df
}
