// Package analysis summarises the regional digital-resources statistics
// (computers per region and year, student/teacher shares).
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/JustUsingaWebsite/eduops/backend/internal/csvio"
	"github.com/JustUsingaWebsite/eduops/backend/internal/csvops"
	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
)

// Column names of the statistics tables.
const (
	ColYear       = "연도"
	ColCategory   = "구분"
	ColTotal      = "전체_대"
	ColStudent    = "학생용_대"
	ColTeacher    = "교사용_대"
	ColStudentPct = "학생용_퍼센트"
	ColTeacherPct = "교사용_퍼센트"
)

// Regions are the 17 province-level regions.
var Regions = []string{
	"서울특별시", "부산광역시", "대구광역시", "인천광역시", "광주광역시",
	"대전광역시", "울산광역시", "세종특별자치시", "경기도", "강원도",
	"충청북도", "충청남도", "전라북도", "전라남도", "경상북도", "경상남도",
	"제주특별자치도",
}

// NonRegionCategories are the school-type and total rows mixed into the
// regional tables.
var NonRegionCategories = []string{
	"초등학교", "중학교", "일반고", "특성화고", "자율고", "특수목적고", "특수학교",
	"전체", "계",
}

// SummaryColumns are the columns kept in the regional laptop summary.
var SummaryColumns = []string{
	ColCategory, "노트북_전체", ColStudent, ColStudentPct,
	ColTeacher, ColTeacherPct, "직원용_대", "직원용_퍼센트",
}

// Stats wraps one statistics table. All columns are kept as text; numbers
// are parsed on use so thousands separators survive.
type Stats struct {
	df dataframe.DataFrame
}

// Load reads a statistics CSV.
func Load(path string) (*Stats, error) {
	tbl, err := csvio.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromTable(tbl)
}

// FromTable builds Stats from an in-memory table.
func FromTable(tbl types.TableData) (*Stats, error) {
	records := make([][]string, 0, len(tbl.Rows)+1)
	records = append(records, tbl.Header)
	records = append(records, tbl.Rows...)

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("load statistics: %w", df.Err)
	}
	return &Stats{df: df}, nil
}

// Rows returns the number of data rows.
func (s *Stats) Rows() int { return s.df.Nrow() }

func (s *Stats) require(cols ...string) error {
	have := make(map[string]struct{}, s.df.Ncol())
	for _, n := range s.df.Names() {
		have[n] = struct{}{}
	}
	for _, c := range cols {
		if _, ok := have[c]; !ok {
			return fmt.Errorf("column '%s' not found", c)
		}
	}
	return nil
}

// YearPoint is one year of the trend.
type YearPoint struct {
	Year           string  `json:"year"`
	TotalComputers float64 `json:"total_computers"`
	StudentPct     float64 `json:"student_pct"`
	TeacherPct     float64 `json:"teacher_pct"`
}

// YearlyTrend sums total computers and averages the student and teacher
// shares per year, ordered by year.
func (s *Stats) YearlyTrend() ([]YearPoint, error) {
	if err := s.require(ColYear, ColTotal, ColStudentPct, ColTeacherPct); err != nil {
		return nil, err
	}
	groups, err := groupBy(s.df, ColYear)
	if err != nil {
		return nil, err
	}

	points := make([]YearPoint, 0, len(groups))
	for _, g := range groups {
		total, _ := sum(g.df.Col(ColTotal))
		points = append(points, YearPoint{
			Year:           g.name,
			TotalComputers: total,
			StudentPct:     mean(g.df.Col(ColStudentPct)),
			TeacherPct:     mean(g.df.Col(ColTeacherPct)),
		})
	}
	sort.SliceStable(points, func(i, j int) bool { return lessYear(points[i].Year, points[j].Year) })
	return points, nil
}

// RegionCounts are the computer counts of one region in one year.
type RegionCounts struct {
	Region  string  `json:"region"`
	Total   float64 `json:"total"`
	Student float64 `json:"student"`
	Teacher float64 `json:"teacher"`
}

// RegionalDistribution sums the count columns per region for year, ordered
// by region name. A year without rows yields an empty slice.
func (s *Stats) RegionalDistribution(year string) ([]RegionCounts, error) {
	if err := s.require(ColYear, ColCategory, ColTotal, ColStudent, ColTeacher); err != nil {
		return nil, err
	}
	filtered := s.df.Filter(dataframe.F{Colname: ColYear, Comparator: series.Eq, Comparando: strings.TrimSpace(year)})
	if filtered.Err != nil {
		return nil, fmt.Errorf("filter year %s: %w", year, filtered.Err)
	}
	out := []RegionCounts{}
	if filtered.Nrow() == 0 {
		return out, nil
	}

	groups, err := groupBy(filtered, ColCategory)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		total, _ := sum(g.df.Col(ColTotal))
		student, _ := sum(g.df.Col(ColStudent))
		teacher, _ := sum(g.df.Col(ColTeacher))
		out = append(out, RegionCounts{Region: g.name, Total: total, Student: student, Teacher: teacher})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Region < out[j].Region })
	return out, nil
}

// RegionSummary keeps the rows whose category is one of regions (Regions
// when nil) and the SummaryColumns, in input order.
func (s *Stats) RegionSummary(regions []string) (types.TableData, error) {
	if regions == nil {
		regions = Regions
	}
	if err := s.require(SummaryColumns...); err != nil {
		return types.TableData{}, err
	}
	picked := s.df.
		Filter(dataframe.F{Colname: ColCategory, Comparator: series.In, Comparando: regions}).
		Select(SummaryColumns)
	if picked.Err != nil {
		return types.TableData{}, fmt.Errorf("region summary: %w", picked.Err)
	}
	return recordsTable(picked), nil
}

// DropCategories removes the school-type and total rows from a regional
// table, keyed on the category column.
func DropCategories(tbl types.TableData, categories []string) (types.TableData, types.ResultSummary, error) {
	if categories == nil {
		categories = NonRegionCategories
	}
	return csvops.Extract(tbl, csvops.ConditionGroup{
		Op:    "and",
		Conds: []csvops.Condition{{Column: ColCategory, Operator: csvops.OpNotIn, Value: categories}},
	}, csvops.AdvancedExtractOptions{TrimSpaces: true})
}

// TrendTable renders points as a table.
func TrendTable(points []YearPoint) types.TableData {
	tbl := types.TableData{HasHeader: true, Header: []string{ColYear, ColTotal, ColStudentPct, ColTeacherPct}, Rows: [][]string{}}
	for _, p := range points {
		tbl.Rows = append(tbl.Rows, []string{p.Year, formatNumber(p.TotalComputers), formatNumber(p.StudentPct), formatNumber(p.TeacherPct)})
	}
	return tbl
}

// DistributionTable renders regional counts as a table.
func DistributionTable(counts []RegionCounts) types.TableData {
	tbl := types.TableData{HasHeader: true, Header: []string{ColCategory, ColTotal, ColStudent, ColTeacher}, Rows: [][]string{}}
	for _, c := range counts {
		tbl.Rows = append(tbl.Rows, []string{c.Region, formatNumber(c.Total), formatNumber(c.Student), formatNumber(c.Teacher)})
	}
	return tbl
}

type group struct {
	name string
	df   dataframe.DataFrame
}

// groupBy splits df on col. The group name is read back from the group's own
// rows rather than from the map key.
func groupBy(df dataframe.DataFrame, col string) ([]group, error) {
	g := df.GroupBy(col)
	if g.Err != nil {
		return nil, fmt.Errorf("group by %s: %w", col, g.Err)
	}
	out := []group{}
	for _, sub := range g.GetGroups() {
		if sub.Nrow() == 0 {
			continue
		}
		out = append(out, group{name: sub.Col(col).Records()[0], df: sub})
	}
	return out, nil
}

func recordsTable(df dataframe.DataFrame) types.TableData {
	records := df.Records()
	tbl := types.TableData{HasHeader: true, Rows: [][]string{}}
	if len(records) == 0 {
		return tbl
	}
	tbl.Header = records[0]
	tbl.Rows = append(tbl.Rows, records[1:]...)
	return tbl
}

// parseNumber reads a numeric cell, accepting thousands separators.
func parseNumber(v string) (float64, bool) {
	v = strings.ReplaceAll(strings.TrimSpace(v), ",", "")
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// sum adds the parsable cells of s, skipping the rest.
func sum(s series.Series) (float64, int) {
	total, n := 0.0, 0
	for _, v := range s.Records() {
		if f, ok := parseNumber(v); ok {
			total += f
			n++
		}
	}
	return total, n
}

func mean(s series.Series) float64 {
	total, n := sum(s)
	if n == 0 {
		return math.NaN()
	}
	return total / float64(n)
}

func lessYear(a, b string) bool {
	fa, okA := parseNumber(a)
	fb, okB := parseNumber(b)
	if okA && okB {
		return fa < fb
	}
	return a < b
}

func formatNumber(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
