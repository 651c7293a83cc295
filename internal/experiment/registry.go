package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/dynopt/internal/config"
	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/integrators"
	"github.com/san-kum/dynopt/internal/models"
	"github.com/san-kum/dynopt/internal/ocp"
	"github.com/san-kum/dynopt/internal/penalties"
	"github.com/san-kum/dynopt/internal/solution"
)

// PenaltyBuilder turns a penalty entry of a problem file into a term. phases
// are the phases built so far, already holding their layouts.
type PenaltyBuilder func(phases []*ocp.Phase, model models.Model, pc config.PenaltyConfig) (ocp.Penalty, error)

type Registry struct {
	models    map[string]func() models.Model
	penalties map[string]PenaltyBuilder
}

func NewRegistry() *Registry {
	r := &Registry{
		models:    make(map[string]func() models.Model),
		penalties: make(map[string]PenaltyBuilder),
	}

	r.models["pendulum"] = func() models.Model { return models.NewPendulum() }
	r.models["double_pendulum"] = func() models.Model { return models.NewDoublePendulum() }
	r.models["cartpole"] = func() models.Model { return models.NewCartPole() }
	r.models["spring_mass"] = func() models.Model { return models.NewSpringMass() }
	r.models["spring_chain"] = func() models.Model { return models.NewSpringMassChain(3) }

	r.penalties["minimize_controls"] = func(phases []*ocp.Phase, _ models.Model, pc config.PenaltyConfig) (ocp.Penalty, error) {
		return penalties.MinimizeControls(phases[pc.Phase], pc.Key, options(pc))
	}
	r.penalties["minimize_states"] = func(phases []*ocp.Phase, _ models.Model, pc config.PenaltyConfig) (ocp.Penalty, error) {
		return penalties.MinimizeStates(phases[pc.Phase], pc.Key, options(pc))
	}
	r.penalties["track_state"] = func(phases []*ocp.Phase, _ models.Model, pc config.PenaltyConfig) (ocp.Penalty, error) {
		o := options(pc)
		if o.Nodes == nil {
			o.Nodes = []int{phases[pc.Phase].Shooting}
		}
		o.Target = repeat(pc.Target, len(o.Nodes))
		return penalties.TrackState(phases[pc.Phase], pc.Key, o)
	}
	r.penalties["energy"] = func(phases []*ocp.Phase, model models.Model, pc config.PenaltyConfig) (ocp.Penalty, error) {
		h, ok := model.(dynamo.Hamiltonian)
		if !ok {
			return ocp.Penalty{}, fmt.Errorf("%w: model has no energy", dynamo.ErrInvalidArgument)
		}
		return penalties.Energy(phases[pc.Phase], h, options(pc)), nil
	}
	r.penalties["state_bounds"] = func(phases []*ocp.Phase, _ models.Model, pc config.PenaltyConfig) (ocp.Penalty, error) {
		return penalties.StateBounds(phases[pc.Phase], pc.Key, pc.Limit, options(pc))
	}
	r.penalties["continuity"] = func(phases []*ocp.Phase, _ models.Model, pc config.PenaltyConfig) (ocp.Penalty, error) {
		return penalties.Continuity(pc.Phase), nil
	}
	r.penalties["periodic"] = func(phases []*ocp.Phase, _ models.Model, pc config.PenaltyConfig) (ocp.Penalty, error) {
		return penalties.Periodic(phases), nil
	}

	return r
}

func options(pc config.PenaltyConfig) penalties.Options {
	o := penalties.Options{
		Name:   pc.Name,
		Phase:  pc.Phase,
		Nodes:  pc.Nodes,
		Weight: pc.Weight,
	}
	switch pc.Rule {
	case "trapezoidal":
		o.Rule = ocp.RuleTrapezoidal
	case "approximate_trapezoidal":
		o.Rule = ocp.RuleApproximateTrapezoidal
	}
	return o
}

func repeat(col []float64, n int) [][]float64 {
	if len(col) == 0 {
		return nil
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = col
	}
	return out
}

func (r *Registry) GetModel(name string) (models.Model, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetPenalty(name string) (PenaltyBuilder, error) {
	fn, ok := r.penalties[name]
	if !ok {
		return nil, fmt.Errorf("unknown penalty: %s", name)
	}
	return fn, nil
}

// RegisterModel adds or replaces a model.
func (r *Registry) RegisterModel(name string, fn func() models.Model) {
	r.models[name] = fn
}

func (r *Registry) RegisterPenalty(name string, fn PenaltyBuilder) {
	r.penalties[name] = fn
}

func (r *Registry) ListModels() []string {
	return sortedKeys(r.models)
}

func (r *Registry) ListPenalties() []string {
	return sortedKeys(r.penalties)
}

// ListIntegrators names every integrator a problem file may select.
func (r *Registry) ListIntegrators() []string {
	names := []string{solution.IntegratorOCP.String()}
	for _, n := range integrators.Names() {
		if _, err := solution.ParseIntegratorKind(n); err == nil {
			names = append(names, n)
		}
	}
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
