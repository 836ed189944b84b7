package telemetry

// AnomalyInjectionRate is the per-tick probability that an agent's heart rate
// is forced into the injected range.
const AnomalyInjectionRate = 0.05

// Rand is the subset of *math/rand.Rand used by the generator.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Generator applies the stochastic update rule to agents. All randomness of a
// run flows through its Rand, so a seeded source makes runs reproducible.
type Generator struct {
	rand Rand
}

// NewGenerator creates a generator drawing from r.
func NewGenerator(r Rand) *Generator {
	return &Generator{rand: r}
}

// NewAgent creates an agent with a jittered resting heart rate and full stamina.
func (g *Generator) NewAgent(id int64) *AgentState {
	return &AgentState{
		ID:        id,
		HeartRate: BaseHeartRate + float64(g.uniformInt(-5, 5)),
		Stamina:   InitialStamina,
	}
}

// Step advances the agent by one tick at virtual time now and returns the
// resulting event stamped with ts. injected reports whether this tick forced
// an anomalous heart rate. Stamina is not touched by the rule.
func (g *Generator) Step(a *AgentState, now int64, ts float64) (ev Event, injected bool) {
	if g.rand.Float64() < AnomalyInjectionRate {
		a.HeartRate = InjectedBaseRate + float64(g.uniformInt(0, 20))
		injected = true
	} else {
		a.HeartRate = clamp(a.HeartRate+float64(g.uniformInt(-2, 2)), MinHeartRate, MaxHeartRate)
	}
	a.LastTick = now
	return a.Snapshot(ts), injected
}

// uniformInt returns an integer in [lo, hi], both inclusive.
func (g *Generator) uniformInt(lo, hi int) int {
	return lo + g.rand.Intn(hi-lo+1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
