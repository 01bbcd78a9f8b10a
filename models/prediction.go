package models

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/mulsewm/rossmann-sales-forecasting/dataset"
)

// DefaultPromoInterval is used when a request omits PromoInterval, matching
// how training fills stores without a recurring promotion.
const DefaultPromoInterval = "None"

// HolidayCode is the StateHoliday value of a request. Clients send it either
// as a string ("0", "a") or as a number (0).
type HolidayCode string

func (h *HolidayCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*h = HolidayCode(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("StateHoliday must be a string or a number, got %s", data)
	}
	*h = HolidayCode(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// PredictionRequest is the body of POST /predict/. Pointer fields let a
// legitimate zero pass validation while an absent field is rejected.
type PredictionRequest struct {
	Store               *int         `json:"Store" binding:"required"`
	DayOfWeek           *int         `json:"DayOfWeek" binding:"required"`
	Promo               *int         `json:"Promo" binding:"required"`
	StateHoliday        *HolidayCode `json:"StateHoliday" binding:"required"`
	SchoolHoliday       *int         `json:"SchoolHoliday" binding:"required"`
	CompetitionDistance *float64     `json:"CompetitionDistance" binding:"required"`
	StoreType           *string      `json:"StoreType" binding:"required"`
	Assortment          *string      `json:"Assortment" binding:"required"`
	Year                *int         `json:"Year" binding:"required"`
	Month               *int         `json:"Month" binding:"required"`
	Day                 *int         `json:"Day" binding:"required"`
	IsWeekend           *int         `json:"IsWeekend" binding:"required"`
	PromoInterval       *string      `json:"PromoInterval,omitempty"`
}

// Frame renders the request as a one-row feature table in the same column
// layout the pipeline was trained on.
func (r PredictionRequest) Frame() dataframe.DataFrame {
	interval := DefaultPromoInterval
	if r.PromoInterval != nil && *r.PromoInterval != "" {
		interval = *r.PromoInterval
	}
	var code string
	if r.StateHoliday != nil {
		code = string(*r.StateHoliday)
	}
	holiday := dataset.NormalizeHoliday(series.New([]string{code}, series.String, dataset.ColStateHoliday))

	return dataframe.New(
		intCol(r.Store, dataset.StoreKey),
		intCol(r.DayOfWeek, dataset.ColDayOfWeek),
		intCol(r.Promo, "Promo"),
		holiday,
		intCol(r.SchoolHoliday, "SchoolHoliday"),
		series.New([]float64{derefFloat(r.CompetitionDistance)}, series.Float, dataset.ColCompetitionDistance),
		series.New([]string{deref(r.StoreType)}, series.String, dataset.ColStoreType),
		series.New([]string{deref(r.Assortment)}, series.String, dataset.ColAssortment),
		intCol(r.Year, dataset.ColYear),
		intCol(r.Month, dataset.ColMonth),
		intCol(r.Day, dataset.ColDay),
		intCol(r.IsWeekend, dataset.ColIsWeekend),
		series.New([]string{interval}, series.String, dataset.ColPromoInterval),
	)
}

type PredictionResponse struct {
	Store          int     `json:"Store"`
	PredictedSales float64 `json:"Predicted_Sales"`
}

func intCol(v *int, name string) series.Series {
	var x int
	if v != nil {
		x = *v
	}
	return series.New([]int{x}, series.Int, name)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
