package ocp

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/integrate/quad"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// SchemeKind selects how a phase discretizes its dynamics.
type SchemeKind int

const (
	DirectMultipleShooting SchemeKind = iota
	DirectCollocation
	Trapezoidal
)

func (k SchemeKind) String() string {
	switch k {
	case DirectMultipleShooting:
		return "direct_multiple_shooting"
	case DirectCollocation:
		return "direct_collocation"
	case Trapezoidal:
		return "trapezoidal"
	default:
		return fmt.Sprintf("scheme(%d)", int(k))
	}
}

// ParseSchemeKind accepts the names produced by String.
func ParseSchemeKind(s string) (SchemeKind, error) {
	switch s {
	case "direct_multiple_shooting", "multiple_shooting", "rk4", "dms", "":
		return DirectMultipleShooting, nil
	case "direct_collocation", "collocation":
		return DirectCollocation, nil
	case "trapezoidal":
		return Trapezoidal, nil
	}
	return 0, fmt.Errorf("%w: unknown ode scheme %q", dynamo.ErrInvalidArgument, s)
}

// OdeScheme is the tagged discretization variant of a phase. Steps is only
// read for direct multiple shooting; Degree and IncludeStartPoint only for
// collocation.
type OdeScheme struct {
	Kind              SchemeKind
	Steps             int
	Degree            int
	IncludeStartPoint bool
	// Abscissas overrides the interior collocation points on (0,1).
	Abscissas []float64
}

func MultipleShooting(steps int) OdeScheme {
	return OdeScheme{Kind: DirectMultipleShooting, Steps: steps}
}

func Collocation(degree int, includeStartPoint bool) OdeScheme {
	return OdeScheme{Kind: DirectCollocation, Degree: degree, IncludeStartPoint: includeStartPoint}
}

func TrapezoidalScheme() OdeScheme {
	return OdeScheme{Kind: Trapezoidal}
}

func (s OdeScheme) IsCollocation() bool {
	return s.Kind == DirectCollocation
}

// NodeColumns is the number of state columns a single interval owns in the
// decision vector.
func (s OdeScheme) NodeColumns() int {
	if s.IsCollocation() {
		return s.Degree + 1
	}
	return 1
}

// SubSteps is the number of integration steps inside one interval.
func (s OdeScheme) SubSteps() int {
	switch s.Kind {
	case DirectCollocation:
		return s.Degree + 1
	case Trapezoidal:
		return 1
	}
	if s.Steps < 1 {
		return 1
	}
	return s.Steps
}

// CollocationPoints returns [0, τ1..τd], the normalized times of the state
// columns of one collocation interval. The interior points default to the
// Gauss-Legendre roots on (0,1).
func (s OdeScheme) CollocationPoints() []float64 {
	if !s.IsCollocation() {
		return []float64{0}
	}
	pts := make([]float64, 1, s.Degree+1)
	if len(s.Abscissas) == s.Degree {
		pts = append(pts, s.Abscissas...)
		return pts
	}
	roots := make([]float64, s.Degree)
	weights := make([]float64, s.Degree)
	quad.Legendre{}.FixedLocations(roots, weights, 0, 1)
	sort.Float64s(roots)
	return append(pts, roots...)
}

func (s OdeScheme) Validate() error {
	switch s.Kind {
	case DirectMultipleShooting:
		if s.Steps < 1 {
			return fmt.Errorf("%w: multiple shooting needs at least one step, got %d", dynamo.ErrInvalidArgument, s.Steps)
		}
	case DirectCollocation:
		if s.Degree < 1 {
			return fmt.Errorf("%w: collocation degree must be positive, got %d", dynamo.ErrInvalidArgument, s.Degree)
		}
		if len(s.Abscissas) != 0 {
			if len(s.Abscissas) != s.Degree {
				return fmt.Errorf("%w: %d abscissas for degree %d", dynamo.ErrInvalidArgument, len(s.Abscissas), s.Degree)
			}
			prev := 0.0
			for _, a := range s.Abscissas {
				if a <= prev || a >= 1 {
					return fmt.Errorf("%w: abscissas must be strictly increasing in (0,1)", dynamo.ErrInvalidArgument)
				}
				prev = a
			}
		}
	case Trapezoidal:
	default:
		return fmt.Errorf("%w: unknown scheme kind %d", dynamo.ErrInvalidArgument, int(s.Kind))
	}
	return nil
}

func (s OdeScheme) String() string {
	switch s.Kind {
	case DirectMultipleShooting:
		return fmt.Sprintf("%s(steps=%d)", s.Kind, s.Steps)
	case DirectCollocation:
		return fmt.Sprintf("%s(degree=%d, include_start=%t)", s.Kind, s.Degree, s.IncludeStartPoint)
	}
	return s.Kind.String()
}

// ControlType sets how many control columns a phase owns and how the control
// evolves inside an interval.
type ControlType int

const (
	Constant ControlType = iota
	ConstantWithLastNode
	LinearContinuous
	None
)

func (c ControlType) String() string {
	switch c {
	case Constant:
		return "constant"
	case ConstantWithLastNode:
		return "constant_with_last_node"
	case LinearContinuous:
		return "linear_continuous"
	case None:
		return "none"
	default:
		return fmt.Sprintf("control(%d)", int(c))
	}
}

func ParseControlType(s string) (ControlType, error) {
	switch s {
	case "constant", "":
		return Constant, nil
	case "constant_with_last_node":
		return ConstantWithLastNode, nil
	case "linear_continuous", "linear":
		return LinearContinuous, nil
	case "none":
		return None, nil
	}
	return 0, fmt.Errorf("%w: unknown control type %q", dynamo.ErrInvalidArgument, s)
}

// HasLastNode reports whether the control defines a value at the final node.
func (c ControlType) HasLastNode() bool {
	return c == ConstantWithLastNode || c == LinearContinuous
}
