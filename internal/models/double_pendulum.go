package models

import (
	"math"

	"github.com/san-kum/dynopt/internal/dynamo"
)

const (
	DefaultMass    = 1.0
	DefaultLength  = 1.0
	DefaultGravity = 9.81
)

// DoublePendulum is actuated at its first joint. Angles are absolute, measured
// from the downward vertical.
type DoublePendulum struct {
	M1, M2  float64
	L1, L2  float64
	Gravity float64
	Damping float64
}

func NewDoublePendulum() *DoublePendulum {
	return &DoublePendulum{
		M1: DefaultMass, M2: DefaultMass,
		L1: DefaultLength, L2: DefaultLength,
		Gravity: DefaultGravity,
	}
}

func (d *DoublePendulum) StateDim() int   { return 4 }
func (d *DoublePendulum) ControlDim() int { return 1 }

func (d *DoublePendulum) StateNames() []string {
	return []string{"theta1", "theta2", "omega1", "omega2"}
}
func (d *DoublePendulum) ControlNames() []string { return []string{"tau"} }

// Derive solves the 2x2 mass matrix of the Lagrangian for the joint
// accelerations. params[0], when positive, replaces the first link mass and
// s[0] adds to the shoulder torque.
func (d *DoublePendulum) Derive(t float64, x dynamo.State, u dynamo.Control, params, s []float64) dynamo.State {
	theta1, theta2, omega1, omega2 := x[0], x[1], x[2], x[3]
	m1, m2, l1, l2, g := d.M1, d.M2, d.L1, d.L2, d.Gravity
	if len(params) > 0 && params[0] > 0 {
		m1 = params[0]
	}

	tau := 0.0
	if len(u) > 0 {
		tau = u[0]
	}
	if len(s) > 0 {
		tau += s[0]
	}

	sinD, cosD := math.Sincos(theta1 - theta2)
	m11 := (m1 + m2) * l1 * l1
	m12 := m2 * l1 * l2 * cosD
	m22 := m2 * l2 * l2

	f1 := tau - d.Damping*omega1 - m2*l1*l2*omega2*omega2*sinD - (m1+m2)*g*l1*math.Sin(theta1)
	f2 := -d.Damping*omega2 + m2*l1*l2*omega1*omega1*sinD - m2*g*l2*math.Sin(theta2)

	det := m11*m22 - m12*m12
	alpha1 := (m22*f1 - m12*f2) / det
	alpha2 := (m11*f2 - m12*f1) / det

	return dynamo.State{omega1, omega2, alpha1, alpha2}
}

func (d *DoublePendulum) Energy(x dynamo.State) float64 {
	theta1, theta2, omega1, omega2 := x[0], x[1], x[2], x[3]
	m1, m2, l1, l2, g := d.M1, d.M2, d.L1, d.L2, d.Gravity

	v1sq := l1 * l1 * omega1 * omega1
	v2sq := v1sq + l2*l2*omega2*omega2 + 2*l1*l2*omega1*omega2*math.Cos(theta1-theta2)
	ke := 0.5*m1*v1sq + 0.5*m2*v2sq

	y1 := -l1 * math.Cos(theta1)
	y2 := y1 - l2*math.Cos(theta2)
	return ke + m1*g*y1 + m2*g*y2
}
