package solution

import "time"

// SolverResult is the raw bundle an NLP solver hands back.
type SolverResult struct {
	X           []float64
	Cost        float64
	Constraints []float64
	LamG        []float64
	LamP        []float64
	LamX        []float64
	InfPr       float64
	InfDu       float64
	SolverTime  time.Duration
	RealTime    time.Duration
	Iterations  int
	Status      int
	Message     string
}

// Metadata is the solver information carried through every transition.
type Metadata struct {
	HasCost     bool      `json:"has_cost"`
	Cost        float64   `json:"cost"`
	Constraints []float64 `json:"constraints,omitempty"`
	LamG        []float64 `json:"lam_g,omitempty"`
	LamP        []float64 `json:"lam_p,omitempty"`
	LamX        []float64 `json:"lam_x,omitempty"`
	InfPr       float64   `json:"inf_pr"`
	InfDu       float64   `json:"inf_du"`
	SolverTime  float64   `json:"solver_time_s"`
	RealTime    float64   `json:"real_time_s"`
	Iterations  int       `json:"iterations"`
	Status      int       `json:"status"`
	Message     string    `json:"message,omitempty"`
}

func (r SolverResult) metadata() Metadata {
	return Metadata{
		HasCost:     true,
		Cost:        r.Cost,
		Constraints: append([]float64(nil), r.Constraints...),
		LamG:        append([]float64(nil), r.LamG...),
		LamP:        append([]float64(nil), r.LamP...),
		LamX:        append([]float64(nil), r.LamX...),
		InfPr:       r.InfPr,
		InfDu:       r.InfDu,
		SolverTime:  r.SolverTime.Seconds(),
		RealTime:    r.RealTime.Seconds(),
		Iterations:  r.Iterations,
		Status:      r.Status,
		Message:     r.Message,
	}
}
