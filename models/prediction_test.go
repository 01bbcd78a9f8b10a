package models

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mulsewm/rossmann-sales-forecasting/dataset"
)

const requestTemplate = `{"Store":1,"DayOfWeek":4,"Promo":1,"StateHoliday":%s,"SchoolHoliday":0,
"CompetitionDistance":1270,"StoreType":"c","Assortment":"a","Year":2015,"Month":7,"Day":31,"IsWeekend":0}`

func TestStateHolidayAcceptsStringsAndNumbers(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"0"`, "0"},
		{`0`, "0"},
		{`0.0`, "0"},
		{`"a"`, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var req PredictionRequest
			require.NoError(t, json.Unmarshal([]byte(fmt.Sprintf(requestTemplate, tt.raw)), &req))
			require.NotNil(t, req.StateHoliday)

			df := req.Frame()
			assert.Equal(t, tt.want, df.Col(dataset.ColStateHoliday).Records()[0])
		})
	}
}

func TestStateHolidayRejectsOtherTypes(t *testing.T) {
	var req PredictionRequest
	err := json.Unmarshal([]byte(fmt.Sprintf(requestTemplate, `true`)), &req)
	assert.ErrorContains(t, err, "StateHoliday")
}

func TestFrameDefaultsPromoInterval(t *testing.T) {
	var req PredictionRequest
	require.NoError(t, json.Unmarshal([]byte(fmt.Sprintf(requestTemplate, `"0"`)), &req))

	df := req.Frame()
	assert.Equal(t, 1, df.Nrow())
	assert.Equal(t, DefaultPromoInterval, df.Col(dataset.ColPromoInterval).Records()[0])
}
