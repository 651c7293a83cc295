package viz

import (
	"fmt"
	"io"
	"strings"

	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/solution"
)

const (
	DefaultHeight = 10
	DefaultWidth  = 80
)

type PlotOptions struct {
	Height  int
	Width   int
	Caption string
}

var phaseColors = []asciigraph.AnsiColor{
	asciigraph.Cyan, asciigraph.Magenta, asciigraph.Yellow, asciigraph.Green, asciigraph.Blue,
}

// Plot draws one line per series. Empty series are skipped.
func Plot(series [][]float64, o PlotOptions) (string, error) {
	var data [][]float64
	for _, s := range series {
		if len(s) > 0 {
			data = append(data, s)
		}
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: nothing to plot", dynamo.ErrInvalidArgument)
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}

	colors := make([]asciigraph.AnsiColor, len(data))
	for i := range colors {
		colors[i] = phaseColors[i%len(phaseColors)]
	}
	return asciigraph.PlotMany(data,
		asciigraph.Height(o.Height),
		asciigraph.Width(o.Width),
		asciigraph.Caption(o.Caption),
		asciigraph.SeriesColors(colors...),
	), nil
}

// StateSeries returns row of the named state, one series per phase.
func StateSeries(sol *solution.Solution, name string, row int) ([][]float64, error) {
	var out [][]float64
	for p, tr := range sol.States() {
		m, ok := tr.Get(name)
		if !ok {
			return nil, dynamo.InPhase(p, "plot", fmt.Errorf("%w: no state %q", dynamo.ErrInvalidArgument, name))
		}
		if r, _ := m.Dims(); row < 0 || row >= r {
			return nil, dynamo.InPhase(p, "plot", fmt.Errorf("%w: state %q has %d rows", dynamo.ErrInvalidArgument, name, r))
		}
		out = append(out, mat.Row(nil, row, m))
	}
	return out, nil
}

// Summary prints the flags, phases and states of sol.
func Summary(w io.Writer, sol *solution.Solution, cost float64) error {
	var b strings.Builder
	b.WriteString(Title.Render("solution") + "  ")
	b.WriteString(strings.Join([]string{
		Flag("integrated", sol.IsIntegrated()),
		Flag("interpolated", sol.IsInterpolated()),
		Flag("merged", sol.IsMerged()),
	}, " ") + "\n")

	times := sol.Time()
	for p, tr := range sol.States() {
		ts := times[p]
		fmt.Fprintf(&b, "%s %s %s\n",
			Label.Render(fmt.Sprintf("phase %d", p)),
			Value.Render(fmt.Sprintf("[%.4g, %.4g]", ts[0], ts[len(ts)-1])),
			Subtle.Render(fmt.Sprintf("%d samples", len(ts))))
		for _, name := range tr.Names() {
			m, _ := tr.Get(name)
			fmt.Fprintf(&b, "  %-10s %s\n", name, Sparkline(mat.Row(nil, 0, m), 40))
		}
	}
	fmt.Fprintf(&b, "%s %s\n", Label.Render("cost"), Value.Render(fmt.Sprintf("%.6g", cost)))

	_, err := io.WriteString(w, b.String())
	return err
}
