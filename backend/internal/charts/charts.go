// Package charts renders the analysis tables as PNG charts.
package charts

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/JustUsingaWebsite/eduops/backend/internal/analysis"
)

// File names written by WriteAll.
const (
	TrendFile        = "digital_resources_trend.png"
	DistributionFile = "region_laptop_distribution.png"
)

var (
	studentColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	teacherColor = color.RGBA{R: 230, G: 126, B: 34, A: 255}
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no data to plot")

// Trend draws total computers per year as a line with point markers.
func Trend(points []analysis.YearPoint, path string) error {
	if len(points) == 0 {
		return ErrNoData
	}
	p := plot.New()
	p.Title.Text = "Total computers by year"
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.X.Label.Text = "Year"
	p.Y.Label.Text = "Computers"

	xys := make(plotter.XYs, 0, len(points))
	labels := make([]string, 0, len(points))
	for i, pt := range points {
		if math.IsNaN(pt.TotalComputers) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(i), Y: pt.TotalComputers})
		labels = append(labels, pt.Year)
	}
	if len(xys) == 0 {
		return ErrNoData
	}

	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("trend line: %w", err)
	}
	line.Width = vg.Points(2)
	line.Color = studentColor

	marks, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("trend markers: %w", err)
	}
	marks.GlyphStyle.Radius = vg.Points(3)
	marks.GlyphStyle.Color = studentColor

	p.Add(plotter.NewGrid(), line, marks)
	p.NominalX(labels...)
	p.Y.Min = 0

	return save(p, 12*vg.Inch, 6*vg.Inch, path)
}

// RegionBars draws student and teacher computer counts per region as
// side-by-side bars.
func RegionBars(counts []analysis.RegionCounts, year, path string) error {
	if len(counts) == 0 {
		return ErrNoData
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Computers by region (%s)", year)
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.Y.Label.Text = "Computers"

	student := make(plotter.Values, len(counts))
	teacher := make(plotter.Values, len(counts))
	labels := make([]string, len(counts))
	for i, c := range counts {
		student[i] = c.Student
		teacher[i] = c.Teacher
		labels[i] = c.Region
	}

	width := vg.Points(14)
	sBars, err := plotter.NewBarChart(student, width)
	if err != nil {
		return fmt.Errorf("student bars: %w", err)
	}
	sBars.Color = studentColor
	sBars.LineStyle.Width = vg.Length(0)
	sBars.Offset = -width / 2

	tBars, err := plotter.NewBarChart(teacher, width)
	if err != nil {
		return fmt.Errorf("teacher bars: %w", err)
	}
	tBars.Color = teacherColor
	tBars.LineStyle.Width = vg.Length(0)
	tBars.Offset = width / 2

	p.Add(plotter.NewGrid(), sBars, tBars)
	p.Legend.Add("student", sBars)
	p.Legend.Add("teacher", tBars)
	p.Legend.Top = true

	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter

	return save(p, 12*vg.Inch, 6*vg.Inch, path)
}

// WriteAll renders the yearly trend and the regional bars for year into dir
// and returns the written paths.
func WriteAll(stats *analysis.Stats, year, dir string) ([]string, error) {
	points, err := stats.YearlyTrend()
	if err != nil {
		return nil, err
	}
	counts, err := stats.RegionalDistribution(year)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chart dir: %w", err)
	}

	trendPath := filepath.Join(dir, TrendFile)
	if err := Trend(points, trendPath); err != nil {
		return nil, fmt.Errorf("trend chart: %w", err)
	}
	barsPath := filepath.Join(dir, DistributionFile)
	if err := RegionBars(counts, year, barsPath); err != nil {
		return []string{trendPath}, fmt.Errorf("region chart: %w", err)
	}
	return []string{trendPath, barsPath}, nil
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
