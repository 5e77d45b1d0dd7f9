package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
)

func techRegion() types.TableData {
	return types.TableData{
		HasHeader: true,
		Header:    []string{ColYear, ColCategory, ColTotal, ColStudent, ColTeacher, ColStudentPct, ColTeacherPct},
		Rows: [][]string{
			{"2022", "서울특별시", "1,000", "600", "300", "60", "30"},
			{"2022", "부산광역시", "500", "200", "250", "40", "50"},
			{"2023", "서울특별시", "1200", "700", "400", "58", "33"},
			{"2023", "서울특별시", "100", "50", "40", "", ""},
			{"2023", "부산광역시", "600", "300", "200", "50", "33"},
		},
	}
}

func TestYearlyTrend(t *testing.T) {
	s, err := FromTable(techRegion())
	require.NoError(t, err)
	assert.Equal(t, 5, s.Rows())

	points, err := s.YearlyTrend()
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "2022", points[0].Year)
	assert.InDelta(t, 1500, points[0].TotalComputers, 1e-9)
	assert.InDelta(t, 50, points[0].StudentPct, 1e-9)
	assert.InDelta(t, 40, points[0].TeacherPct, 1e-9)

	assert.Equal(t, "2023", points[1].Year)
	assert.InDelta(t, 1900, points[1].TotalComputers, 1e-9)
	assert.InDelta(t, 54, points[1].StudentPct, 1e-9, "blank cells are skipped")
}

func TestRegionalDistribution(t *testing.T) {
	s, err := FromTable(techRegion())
	require.NoError(t, err)

	counts, err := s.RegionalDistribution("2023")
	require.NoError(t, err)
	assert.Equal(t, []RegionCounts{
		{Region: "부산광역시", Total: 600, Student: 300, Teacher: 200},
		{Region: "서울특별시", Total: 1300, Student: 750, Teacher: 440},
	}, counts)

	none, err := s.RegionalDistribution("1999")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMissingColumns(t *testing.T) {
	s, err := FromTable(types.TableData{HasHeader: true, Header: []string{ColYear}, Rows: [][]string{{"2023"}}})
	require.NoError(t, err)

	_, err = s.YearlyTrend()
	assert.ErrorContains(t, err, ColTotal)
	_, err = s.RegionSummary(nil)
	assert.Error(t, err)
}

func TestRegionSummary(t *testing.T) {
	tbl := types.TableData{
		HasHeader: true,
		Header:    append([]string{"extra"}, SummaryColumns...),
		Rows: [][]string{
			{"x", "서울특별시", "10", "6", "60", "3", "30", "1", "10"},
			{"x", "초등학교", "5", "3", "60", "1", "20", "1", "20"},
			{"x", "제주특별자치도", "4", "2", "50", "1", "25", "1", "25"},
		},
	}
	s, err := FromTable(tbl)
	require.NoError(t, err)

	out, err := s.RegionSummary(nil)
	require.NoError(t, err)
	assert.Equal(t, SummaryColumns, out.Header)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "서울특별시", out.Rows[0][0])
	assert.Equal(t, "제주특별자치도", out.Rows[1][0])
}

func TestDropCategories(t *testing.T) {
	tbl := types.TableData{
		HasHeader: true,
		Header:    []string{ColCategory, ColTotal},
		Rows:      [][]string{{"전체", "9"}, {"서울특별시", "5"}, {"중학교", "2"}, {"계", "9"}},
	}
	out, summary, err := DropCategories(tbl, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"서울특별시", "5"}}, out.Rows)
	assert.Equal(t, 3, summary.Missing)
}

func TestTables(t *testing.T) {
	trend := TrendTable([]YearPoint{{Year: "2023", TotalComputers: 1900, StudentPct: 47, TeacherPct: math.NaN()}})
	assert.Equal(t, []string{"2023", "1900", "47", ""}, trend.Rows[0])

	dist := DistributionTable([]RegionCounts{{Region: "서울특별시", Total: 1.5}})
	assert.Equal(t, []string{"서울특별시", "1.50", "0", "0"}, dist.Rows[0])
}
