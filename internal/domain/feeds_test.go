package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fetchedAt = time.Date(2020, time.April, 2, 9, 30, 15, 0, time.UTC)

const primaryHeader = "Country;Province;Confirmed;Deaths;Recovered;LastUpdated\n"

func TestParsePrimaryFeed(t *testing.T) {
	t.Run("country total row", func(t *testing.T) {
		rows, err := ParsePrimaryFeed(strings.NewReader(primaryHeader+"Elbonia;;120;3;50;1600000000000\n"), fetchedAt)
		require.NoError(t, err)
		require.Len(t, rows, 1)

		row := rows[0]
		assert.Equal(t, "Elbonia", row.Country)
		assert.Empty(t, row.Area)
		assert.True(t, row.IsTotal(row.Country))
		assert.Equal(t, int64(120), row.Metrics.Cases)
		require.NotNil(t, row.Metrics.Deaths)
		assert.Equal(t, int64(3), *row.Metrics.Deaths)
		require.NotNil(t, row.Metrics.Recoveries)
		assert.Equal(t, int64(50), *row.Metrics.Recoveries)
		assert.Equal(t, time.Unix(1600000000, 0).UTC(), row.Metrics.LastUpdate)
	})

	t.Run("blank counts are zero", func(t *testing.T) {
		rows, err := ParsePrimaryFeed(strings.NewReader(primaryHeader+"Elbonia;North;10;;;1600000000000\n"), fetchedAt)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(10), rows[0].Metrics.Cases)
		assert.Equal(t, int64(0), *rows[0].Metrics.Deaths)
		assert.Equal(t, int64(0), *rows[0].Metrics.Recoveries)
		assert.Equal(t, "North", rows[0].Area)
	})

	t.Run("blank timestamp is fetch time", func(t *testing.T) {
		rows, err := ParsePrimaryFeed(strings.NewReader(primaryHeader+"Elbonia;;1;0;0;\n"), fetchedAt)
		require.NoError(t, err)
		assert.Equal(t, fetchedAt, rows[0].Metrics.LastUpdate)
	})

	t.Run("province equal to country is a total", func(t *testing.T) {
		rows, err := ParsePrimaryFeed(strings.NewReader(primaryHeader+"France;FRANCE;5;0;0;\n"), fetchedAt)
		require.NoError(t, err)
		assert.True(t, rows[0].IsTotal("France"))
	})

	t.Run("invalid count", func(t *testing.T) {
		_, err := ParsePrimaryFeed(strings.NewReader(primaryHeader+"Elbonia;;lots;0;0;\n"), fetchedAt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
		assert.Contains(t, err.Error(), "Confirmed")
	})

	t.Run("missing columns", func(t *testing.T) {
		_, err := ParsePrimaryFeed(strings.NewReader("Country;Confirmed\nElbonia;1\n"), fetchedAt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing columns")
	})

	t.Run("header only", func(t *testing.T) {
		_, err := ParsePrimaryFeed(strings.NewReader(primaryHeader), fetchedAt)
		require.ErrorIs(t, err, ErrEmptyFeed)
	})
}

func TestParseRegionalFeed(t *testing.T) {
	payload := "\ufeffGSS_CD,NHSRNm,TotalCases\n" +
		"E40000003,London,\"1,234\"\n" +
		"E40000005,South East,567\n" +
		"E40000006,,9\n"

	rows, err := ParseRegionalFeed(strings.NewReader(payload), NHSRegionColumn, fetchedAt)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "London", rows[0].Area)
	assert.Equal(t, int64(1234), rows[0].Metrics.Cases)
	assert.Nil(t, rows[0].Metrics.Deaths)
	assert.Nil(t, rows[0].Metrics.Recoveries)
	assert.Equal(t, fetchedAt, rows[0].Metrics.LastUpdate)
	assert.Equal(t, "South East", rows[1].Area)
	assert.Equal(t, int64(567), rows[1].Metrics.Cases)
}

func TestParseRegionalFeed_WrongColumn(t *testing.T) {
	_, err := ParseRegionalFeed(strings.NewReader("GSS_CD,GSS_NM,TotalCases\nx,Leeds,1\n"), NHSRegionColumn, fetchedAt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), NHSRegionColumn)
}

func TestParseConstituentFeed(t *testing.T) {
	payload := "Date,Country,Indicator,Value\n" +
		"2020-03-30,Scotland,ConfirmedCases,1563\n" +
		"2020-03-30,Scotland,Deaths,47\n" +
		"2020-03-31,Scotland,ConfirmedCases,1993\n" +
		"2020-03-31,Scotland,Deaths,60\n" +
		"2020-03-31,Scotland,Tests,19000\n" +
		"2020-03-31,Wales,ConfirmedCases,1563\n" +
		"2020-03-29,Wales,ConfirmedCases,1241\n" +
		"2020-03-31,UK,ConfirmedCases,25150\n"

	rows, err := ParseConstituentFeed(strings.NewReader(payload), DefaultConstituentRegions)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	scotland := rows[0]
	assert.Equal(t, "Scotland", scotland.Area)
	assert.Equal(t, int64(1993), scotland.Metrics.Cases)
	require.NotNil(t, scotland.Metrics.Deaths)
	assert.Equal(t, int64(60), *scotland.Metrics.Deaths)
	assert.Nil(t, scotland.Metrics.Recoveries)
	assert.Equal(t, time.Date(2020, 3, 31, 14, 0, 0, 0, time.UTC), scotland.Metrics.LastUpdate)

	wales := rows[1]
	assert.Equal(t, "Wales", wales.Area)
	assert.Equal(t, int64(1563), wales.Metrics.Cases)
	assert.Nil(t, wales.Metrics.Deaths)
	assert.Equal(t, time.Date(2020, 3, 31, 12, 0, 0, 0, time.UTC), wales.Metrics.LastUpdate)
}

func TestParseConstituentFeed_NoRegions(t *testing.T) {
	_, err := ParseConstituentFeed(strings.NewReader("Date,Country,Indicator,Value\n2020-03-31,UK,ConfirmedCases,1\n"), DefaultConstituentRegions)
	require.ErrorIs(t, err, ErrEmptyFeed)
}

func TestParseSubnationalFeed(t *testing.T) {
	payload := "Date,Country,AreaCode,Area,TotalCases\n" +
		"2020-03-19,Scotland,S08000015,Ayrshire and Arran,20\n" +
		"2020-03-20,Scotland,S08000015,Ayrshire and Arran,25\n" +
		"2020-03-20,Scotland,S08000026,Shetland,\n" +
		"2020-03-20,Scotland,S08000028,Western Isles,\n" +
		"2020-03-21,Wales,W11000028,Aneurin Bevan,100\n"

	res, err := ParseSubnationalFeed(strings.NewReader(payload), "Scotland", DefaultKnownGaps)
	require.NoError(t, err)

	assert.Equal(t, "2020-03-20", res.Date)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "Ayrshire and Arran", res.Rows[0].Area)
	assert.Equal(t, int64(25), res.Rows[0].Metrics.Cases)
	assert.Equal(t, time.Date(2020, 3, 20, 0, 0, 0, 0, time.UTC), res.Rows[0].Metrics.LastUpdate)
	assert.Equal(t, "Shetland", res.Rows[1].Area)
	assert.Equal(t, int64(0), res.Rows[1].Metrics.Cases)
	assert.Equal(t, []string{"Western Isles"}, res.UnexpectedBlanks)
}

func TestParseSubnationalFeed_UnknownRegion(t *testing.T) {
	_, err := ParseSubnationalFeed(strings.NewReader("Date,Country,AreaCode,Area,TotalCases\n2020-03-20,Wales,W1,Cardiff,1\n"), "Scotland", nil)
	require.ErrorIs(t, err, ErrEmptyFeed)
}

func TestParseDistrictFeed(t *testing.T) {
	payload := `{"raw_data":[
		{"detecteddistrict":"Pune","detectedstate":"Maharashtra"},
		{"detecteddistrict":"Mumbai"},
		{"detecteddistrict":"Pune"},
		{"detecteddistrict":""},
		{"detecteddistrict":"  "},
		{"detectedstate":"Kerala"}
	]}`

	rows, err := ParseDistrictFeed(strings.NewReader(payload), fetchedAt)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{Area: "Pune", Metrics: Metrics{Cases: 2, LastUpdate: fetchedAt}}, rows[0])
	assert.Equal(t, Row{Area: "Mumbai", Metrics: Metrics{Cases: 1, LastUpdate: fetchedAt}}, rows[1])
}

func TestParseDistrictFeed_Invalid(t *testing.T) {
	_, err := ParseDistrictFeed(strings.NewReader("{not json"), fetchedAt)
	require.Error(t, err)

	_, err = ParseDistrictFeed(strings.NewReader(`{"raw_data":[{"detecteddistrict":""}]}`), fetchedAt)
	require.ErrorIs(t, err, ErrEmptyFeed)
}

func TestParseCount(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "  ", want: 0},
		{in: "10", want: 10},
		{in: "12,345", want: 12345},
		{in: "-1", wantErr: true},
		{in: "1 to 4", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseCount(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
