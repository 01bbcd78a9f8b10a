package ml

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrNotFitted     = errors.New("model is not fitted")
	ErrMissingColumn = errors.New("missing feature column")
	ErrEmptyInput    = errors.New("no rows to transform")
)

// ColumnTransformer selects named columns from a raw feature table and turns
// them into one numeric design matrix: scaled numeric columns first, then
// one one-hot block per categorical column. Other columns are ignored.
type ColumnTransformer struct {
	Numeric     []string
	Categorical []string
	Scaler      StandardScaler
	Encoder     OneHotEncoder
	Fitted      bool
}

func NewColumnTransformer(numeric, categorical []string) *ColumnTransformer {
	return &ColumnTransformer{
		Numeric:     slices.Clone(numeric),
		Categorical: slices.Clone(categorical),
	}
}

func (ct *ColumnTransformer) Fit(df dataframe.DataFrame) error {
	num, cat, err := ct.extract(df)
	if err != nil {
		return err
	}
	if df.Nrow() == 0 {
		return ErrEmptyInput
	}
	if err := ct.Scaler.Fit(num); err != nil {
		return err
	}
	ct.Encoder.Fit(cat)
	ct.Fitted = true
	return nil
}

func (ct *ColumnTransformer) Transform(df dataframe.DataFrame) (*mat.Dense, error) {
	if !ct.Fitted {
		return nil, ErrNotFitted
	}
	num, cat, err := ct.extract(df)
	if err != nil {
		return nil, err
	}
	rows := df.Nrow()
	if rows == 0 {
		return nil, ErrEmptyInput
	}

	width := len(ct.Numeric) + ct.Encoder.Width()
	if width == 0 {
		return nil, fmt.Errorf("transformer has no feature columns")
	}
	out := mat.NewDense(rows, width, nil)
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		for j := range ct.Numeric {
			row[j] = ct.Scaler.Apply(j, num[j][i])
		}
		offset := len(ct.Numeric)
		for j, cats := range ct.Encoder.Categories {
			ct.Encoder.Encode(j, cat[j][i], row[offset:offset+len(cats)])
			offset += len(cats)
		}
	}
	return out, nil
}

// FeatureNames lists the output columns in matrix order, e.g. "StoreType=a".
func (ct *ColumnTransformer) FeatureNames() []string {
	names := slices.Clone(ct.Numeric)
	for j, cats := range ct.Encoder.Categories {
		for _, c := range cats {
			names = append(names, ct.Categorical[j]+"="+c)
		}
	}
	return names
}

func (ct *ColumnTransformer) extract(df dataframe.DataFrame) ([][]float64, [][]string, error) {
	if df.Err != nil {
		return nil, nil, df.Err
	}
	names := df.Names()
	num := make([][]float64, len(ct.Numeric))
	for j, name := range ct.Numeric {
		if !slices.Contains(names, name) {
			return nil, nil, fmt.Errorf("%w %q", ErrMissingColumn, name)
		}
		num[j] = df.Col(name).Float()
	}
	cat := make([][]string, len(ct.Categorical))
	for j, name := range ct.Categorical {
		if !slices.Contains(names, name) {
			return nil, nil, fmt.Errorf("%w %q", ErrMissingColumn, name)
		}
		cat[j] = df.Col(name).Records()
	}
	return num, cat, nil
}
