package analysis

import (
	"fmt"
	"strings"

	"github.com/san-kum/dynopt/internal/dynamo"
)

type Point struct {
	X, Y float64
}

// PhasePortrait2D holds one state against another across every phase of a
// solution, in sample order.
type PhasePortrait2D struct {
	XName, YName string
	Points       []Point
}

// NewPhasePortrait pairs two equally long sample series.
func NewPhasePortrait(xName, yName string, xs, ys []float64) (*PhasePortrait2D, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %d %s samples, %d %s samples",
			dynamo.ErrDimensionMismatch, len(xs), xName, len(ys), yName)
	}
	portrait := &PhasePortrait2D{
		XName:  xName,
		YName:  yName,
		Points: make([]Point, len(xs)),
	}
	for i := range xs {
		portrait.Points[i] = Point{X: xs[i], Y: ys[i]}
	}
	return portrait, nil
}

// PhasePortraitFromTrajectories reads the first row of two states in every
// phase.
func PhasePortraitFromTrajectories(trs []*dynamo.Trajectory, xName, yName string) (*PhasePortrait2D, error) {
	var xs, ys []float64
	for p, tr := range trs {
		x, okX := tr.Get(xName)
		y, okY := tr.Get(yName)
		if !okX || !okY {
			return nil, dynamo.InPhase(p, "phase portrait", fmt.Errorf("%w: missing %s or %s",
				dynamo.ErrInvalidArgument, xName, yName))
		}
		xs = append(xs, x.RawRowView(0)...)
		ys = append(ys, y.RawRowView(0)...)
	}
	return NewPhasePortrait(xName, yName, xs, ys)
}

// PhasePortraitToASCII converts phase portrait to ASCII art
func PhasePortraitToASCII(portrait *PhasePortrait2D, width, height int) string {
	if portrait == nil || len(portrait.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := portrait.Points[0].X, portrait.Points[0].X
	minY, maxY := portrait.Points[0].Y, portrait.Points[0].Y
	for _, p := range portrait.Points {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	// 10% padding
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	for _, p := range portrait.Points {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}
	// first and last samples
	mark := func(p Point, r rune) {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))
		canvas[row][col] = r
	}
	mark(portrait.Points[0], 'o')
	mark(portrait.Points[len(portrait.Points)-1], 'x')

	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	fmt.Fprintf(&sb, "%s vs %s  (o start, x end)\n", portrait.YName, portrait.XName)
	return sb.String()
}
