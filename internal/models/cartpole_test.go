package models

import (
	"math"
	"testing"

	"github.com/san-kum/dynopt/internal/dynamo"
)

func TestCartPoleUprightEquilibrium(t *testing.T) {
	c := NewCartPole()
	dx := c.Derive(0, dynamo.State{0, 0, 0, 0}, dynamo.Control{0}, nil, nil)

	for i, v := range dx {
		if math.Abs(v) > 1e-12 {
			t.Errorf("derivative[%d] at the upright equilibrium should be 0, got %f", i, v)
		}
	}
}

func TestCartPolePushAccelerates(t *testing.T) {
	c := NewCartPole()
	dx := c.Derive(0, dynamo.State{0, 0, 0, 0}, dynamo.Control{1}, nil, nil)

	if dx[1] <= 0 {
		t.Errorf("pushing right should accelerate the cart right, got %f", dx[1])
	}
	if dx[3] >= 0 {
		t.Errorf("pushing right should tip the pole back, got %f", dx[3])
	}
}
