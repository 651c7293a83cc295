package solution

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
)

var (
	reportHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ffff"))

	reportPhase = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899"))
)

// WriteCostReport prints the evaluated terms grouped by phase.
func (s *Solution) WriteCostReport(w io.Writer, ct CostType) error {
	terms, err := s.Terms(ct)
	if err != nil {
		return err
	}

	if ct != CostConstraints {
		if err := writeSection(w, "COST FUNCTION VALUES", terms, false); err != nil {
			return err
		}
	}
	if ct != CostObjectives {
		if err := writeSection(w, "CONSTRAINTS", terms, true); err != nil {
			return err
		}
	}
	return nil
}

func writeSection(w io.Writer, title string, terms []CostTerm, constraints bool) error {
	fmt.Fprintln(w, reportHeader.Render("---- "+title+" ----"))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	total, current := 0.0, -2
	for _, t := range terms {
		if t.Constraint != constraints {
			continue
		}
		if t.Phase != current {
			current = t.Phase
			if err := tw.Flush(); err != nil {
				return err
			}
			label := fmt.Sprintf("PHASE %d", t.Phase)
			if t.Phase < 0 {
				label = "PROGRAM"
			}
			fmt.Fprintln(w, reportPhase.Render(label))
		}
		if constraints {
			fmt.Fprintf(tw, "  %s\t%s\t%.6g\n", t.Name, t.Kind, t.Value)
		} else {
			fmt.Fprintf(tw, "  %s\t%s\t%.6g\t(non weighted %.6g)\n", t.Name, t.Kind, t.Weighted, t.Value)
			total += t.Weighted
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !constraints {
		fmt.Fprintf(w, "Sum cost functions: %.6g\n", total)
	}
	fmt.Fprintln(w)
	return nil
}
