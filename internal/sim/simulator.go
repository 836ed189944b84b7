// Simulator driving soldier agents on the virtual clock
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"watchtower-sim/internal/config"
	"watchtower-sim/internal/logging"
	"watchtower-sim/internal/publish"
	"watchtower-sim/internal/telemetry"
)

// agentDelay is the fixed suspension of every agent between two ticks.
const agentDelay = 1

// progressEvery is the virtual-time period of the per-agent progress line.
const progressEvery = 10

// EventPublisher hands telemetry events to a transport.
type EventPublisher interface {
	Publish(ctx context.Context, ev telemetry.Event) publish.Result
}

// Summary describes a finished or interrupted run.
type Summary struct {
	RunID       string `json:"run_id"`
	Agents      int    `json:"agents"`
	VirtualTime int64  `json:"virtual_time"`
	Instants    uint64 `json:"instants"`
	Events      uint64 `json:"events"`
	Injected    uint64 `json:"injected"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Failed      uint64 `json:"failed"`
}

// Simulator owns the agents of one run, their random source and the
// scheduler driving them.
type Simulator struct {
	runID           string
	cfg             *config.SimulationConfig
	gen             *telemetry.Generator
	publisher       EventPublisher
	sched           *Scheduler
	agents          []*telemetry.AgentState
	timestampSource string
	now             func() time.Time
	summary         Summary
}

// NewSimulator creates cfg.AgentCount agents, ids 0..n-1, with a random source
// seeded from cfg.Seed. A zero seed uses the wall clock.
func NewSimulator(runID string, cfg *config.SimulationConfig, pub EventPublisher) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return newSimulator(runID, cfg, pub, rand.New(rand.NewSource(seed)))
}

func newSimulator(runID string, cfg *config.SimulationConfig, pub EventPublisher, r telemetry.Rand) *Simulator {
	s := &Simulator{
		runID:           runID,
		cfg:             cfg,
		gen:             telemetry.NewGenerator(r),
		publisher:       pub,
		sched:           NewScheduler(cfg.TickInterval),
		timestampSource: cfg.TimestampSource,
		now:             time.Now,
		summary:         Summary{RunID: runID, Agents: cfg.AgentCount},
	}
	for i := 0; i < cfg.AgentCount; i++ {
		a := s.gen.NewAgent(int64(i))
		s.agents = append(s.agents, a)
		// delay is never negative here
		_ = s.sched.Schedule(&agentProcess{sim: s, state: a}, agentDelay)
	}
	return s
}

// Agents returns the agent states in creation order.
func (s *Simulator) Agents() []*telemetry.AgentState { return s.agents }

// Run drives the agents until cfg.HorizonSeconds or until ctx is done. Events
// published before a cancellation stay published. Publish failures never stop
// the run; only scheduler faults do.
func (s *Simulator) Run(ctx context.Context) (Summary, error) {
	log := logging.FromContext(ctx).With("run_id", s.runID)
	ctx = logging.NewContext(ctx, log)
	log.Info("starting simulation",
		"agents", len(s.agents),
		"horizon", s.cfg.HorizonSeconds,
		"tick_interval", s.cfg.TickInterval,
		"timestamp_source", s.timestampSource)

	err := s.sched.Run(ctx, s.cfg.HorizonSeconds)
	s.summary.VirtualTime = s.sched.Now()
	s.summary.Instants = s.sched.Instants()

	sum := s.summary
	attrs := []any{
		"virtual_time", sum.VirtualTime,
		"instants", sum.Instants,
		"events", sum.Events,
		"injected", sum.Injected,
		"published", sum.Published,
		"dropped", sum.Dropped,
		"failed", sum.Failed,
	}
	switch {
	case err == nil:
		log.Info("simulation complete", attrs...)
	case ctx.Err() != nil && err == ctx.Err():
		log.Info("simulation stopped", append(attrs, "reason", err)...)
	default:
		log.Error("simulation aborted", append(attrs, "err", err)...)
		return sum, fmt.Errorf("run %s: %w", s.runID, err)
	}
	return sum, err
}

func (s *Simulator) timestamp(now int64) float64 {
	if s.timestampSource == config.TimestampVirtual {
		return float64(now)
	}
	return float64(s.now().UnixNano()) / 1e9
}

// tick advances one agent and publishes its event.
func (s *Simulator) tick(ctx context.Context, a *telemetry.AgentState, now int64) {
	log := logging.FromContext(ctx)
	ev, injected := s.gen.Step(a, now, s.timestamp(now))
	s.summary.Events++
	if injected {
		s.summary.Injected++
		log.Debug("anomaly injected", "soldier_id", a.ID, "heart_rate", a.HeartRate)
	}
	if now%progressEvery == 0 {
		log.Debug("agent progress", "t", now, "soldier_id", a.ID, "heart_rate", a.HeartRate, "stamina", a.Stamina)
	}

	res := s.publisher.Publish(ctx, ev)
	switch res.Outcome {
	case publish.Published:
		s.summary.Published++
		return
	case publish.Dropped:
		s.summary.Dropped++
	default:
		s.summary.Failed++
	}
	log.Warn("telemetry not published", "soldier_id", ev.SoldierID, "t", now, "outcome", res.Outcome, "err", res.Err)
}

type agentProcess struct {
	sim   *Simulator
	state *telemetry.AgentState
}

func (p *agentProcess) Resume(ctx context.Context, now int64) (int64, error) {
	p.sim.tick(ctx, p.state, now)
	return agentDelay, nil
}
