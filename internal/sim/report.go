package sim

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/zerolag/internal/zsl"
)

// Report accumulates capture results for a run.
type Report struct {
	Outcomes map[zsl.Outcome]int
	AgesMs   []float64 // served frame ages, ZSL hits only
	Expired  int
	Rejected int
	Errors   []error
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{Outcomes: make(map[zsl.Outcome]int)}
}

// Add folds one result into the report.
func (r *Report) Add(res Result) {
	r.Outcomes[res.Decision.Outcome]++
	r.Expired += res.Decision.Expired
	r.Rejected += res.Decision.Rejected
	if res.Decision.Outcome == zsl.OutcomeZSL {
		r.AgesMs = append(r.AgesMs, float64(res.AgeNanos)/1e6)
	}
	if res.Err != nil {
		r.Errors = append(r.Errors, res.Err)
	}
}

// Requests returns the number of results added.
func (r *Report) Requests() int {
	n := 0
	for _, c := range r.Outcomes {
		n += c
	}
	return n
}

// Summary holds the headline statistics of a run.
type Summary struct {
	Requests  int     `json:"requests"`
	HitRate   float64 `json:"hit_rate"`
	MeanAgeMs float64 `json:"mean_age_ms"`
	StdAgeMs  float64 `json:"std_age_ms"`
	P50AgeMs  float64 `json:"p50_age_ms"`
	P90AgeMs  float64 `json:"p90_age_ms"`
	MaxAgeMs  float64 `json:"max_age_ms"`
}

// Summarize computes the run statistics.
func (r *Report) Summarize() Summary {
	s := Summary{Requests: r.Requests()}
	if s.Requests > 0 {
		s.HitRate = float64(r.Outcomes[zsl.OutcomeZSL]) / float64(s.Requests)
	}
	if len(r.AgesMs) == 0 {
		return s
	}

	ages := append([]float64(nil), r.AgesMs...)
	sort.Float64s(ages)
	s.MeanAgeMs = stat.Mean(ages, nil)
	if len(ages) > 1 {
		s.StdAgeMs = stat.StdDev(ages, nil)
	}
	s.P50AgeMs = stat.Quantile(0.5, stat.Empirical, ages, nil)
	s.P90AgeMs = stat.Quantile(0.9, stat.Empirical, ages, nil)
	s.MaxAgeMs = ages[len(ages)-1]
	return s
}

// WriteText prints a human-readable summary.
func (r *Report) WriteText(w io.Writer) {
	s := r.Summarize()
	fmt.Fprintf(w, "requests: %d  hit rate: %.1f%%\n", s.Requests, s.HitRate*100)
	for _, o := range outcomeOrder {
		if n := r.Outcomes[o]; n > 0 {
			fmt.Fprintf(w, "  %-9s %d\n", o, n)
		}
	}
	fmt.Fprintf(w, "frames expired: %d  rejected: %d\n", r.Expired, r.Rejected)
	if len(r.AgesMs) > 0 {
		fmt.Fprintf(w, "served age ms: mean %.2f  std %.2f  p50 %.2f  p90 %.2f  max %.2f\n",
			s.MeanAgeMs, s.StdAgeMs, s.P50AgeMs, s.P90AgeMs, s.MaxAgeMs)
	}
	for _, err := range r.Errors {
		fmt.Fprintf(w, "error: %v\n", err)
	}
}

var outcomeOrder = []zsl.Outcome{zsl.OutcomeZSL, zsl.OutcomeFallback, zsl.OutcomeClosed, zsl.OutcomeError}

// SaveAgeHistogram writes a PNG histogram of served frame ages.
func (r *Report) SaveAgeHistogram(path string) error {
	if len(r.AgesMs) == 0 {
		return fmt.Errorf("no ZSL hits to plot")
	}

	p := plot.New()
	p.Title.Text = "Served frame age"
	p.X.Label.Text = "age at request (ms)"
	p.Y.Label.Text = "captures"
	p.Add(plotter.NewGrid())

	bins := len(r.AgesMs)
	if bins > 20 {
		bins = 20
	}
	hist, err := plotter.NewHist(plotter.Values(r.AgesMs), bins)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	hist.LineStyle.Width = vg.Points(1)
	p.Add(hist)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save histogram: %w", err)
	}
	return nil
}

// RenderOutcomeChart writes an HTML bar chart of outcomes to w.
func (r *Report) RenderOutcomeChart(w io.Writer) error {
	x := make([]string, 0, len(outcomeOrder))
	y := make([]opts.BarData, 0, len(outcomeOrder))
	for _, o := range outcomeOrder {
		x = append(x, string(o))
		y = append(y, opts.BarData{Value: r.Outcomes[o]})
	}

	s := r.Summarize()
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "ZSL capture outcomes", Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Capture outcomes", Subtitle: fmt.Sprintf("requests=%d hit rate=%.1f%%", s.Requests, s.HitRate*100)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("requests", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar.Render(w)
}

// SaveOutcomeChart writes the outcome chart to an HTML file.
func (r *Report) SaveOutcomeChart(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.RenderOutcomeChart(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return f.Close()
}
