package export

import (
	"fmt"
	"os"
	"strings"

	"github.com/san-kum/dynopt/internal/analysis"
	"github.com/san-kum/dynopt/internal/dynamo"
)

const (
	DefaultSVGWidth  = 800
	DefaultSVGHeight = 600
	DefaultStroke    = "#00ff00"
)

// PhasePortraitToSVG draws the portrait as one polyline on a dark
// background, with a circle on the first sample and a square on the last.
func PhasePortraitToSVG(portrait *analysis.PhasePortrait2D, width, height int, stroke string) (string, error) {
	if portrait == nil || len(portrait.Points) < 2 {
		return "", fmt.Errorf("%w: portrait needs at least two points", dynamo.ErrInvalidArgument)
	}
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("%w: svg size %dx%d", dynamo.ErrInvalidArgument, width, height)
	}
	if stroke == "" {
		stroke = DefaultStroke
	}
	points := portrait.Points

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points {
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

	project := func(p analysis.Point) (float64, float64) {
		return (p.X - minX) / rangeX * float64(width),
			float64(height) - (p.Y-minY)/rangeY*float64(height)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<title>%s vs %s</title>
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, portrait.YName, portrait.XName, stroke)

	for i, p := range points {
		x, y := project(p)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}
	sb.WriteString("\"/>\n")

	x, y := project(points[0])
	fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"4\" fill=\"%s\"/>\n", x, y, stroke)
	x, y = project(points[len(points)-1])
	fmt.Fprintf(&sb, "<rect x=\"%.1f\" y=\"%.1f\" width=\"8\" height=\"8\" fill=\"%s\"/>\n", x-4, y-4, stroke)

	sb.WriteString("</svg>\n")
	return sb.String(), nil
}

// WritePhasePortraitSVG renders the portrait to path.
func WritePhasePortraitSVG(path string, portrait *analysis.PhasePortrait2D, width, height int, stroke string) error {
	svg, err := PhasePortraitToSVG(portrait, width, height, stroke)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(svg), 0644)
}
