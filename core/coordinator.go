package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/encodeous/routesim/perf"
	"github.com/encodeous/routesim/state"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// MaxRounds bounds distance-vector rounds, zero means state.DefaultMaxRounds
	MaxRounds int
	// Shuffle randomises the order distance vectors are delivered in each round
	Shuffle bool
	Seed    uint64
	// MaxDelay, when positive, delays every message by a random duration up to it
	MaxDelay time.Duration
	// LSPMaxAge is how long a foreign LSP lives without being refreshed, zero disables aging
	LSPMaxAge time.Duration
	// MetricCeiling, when positive, treats distance-vector metrics above it as unreachable
	MetricCeiling uint64

	Log      *slog.Logger
	Registry *perf.Registry
	Trace    *Trace
}

// OptionsFromConfig maps the simulation section of a topology file. A zero
// LSPMaxAge in the file selects state.DefaultLSPMaxAge.
func OptionsFromConfig(cfg state.SimulationCfg) Options {
	opts := Options{
		MaxRounds:     cfg.MaxRounds,
		Shuffle:       cfg.Shuffle,
		Seed:          cfg.Seed,
		MaxDelay:      cfg.MaxDelay,
		LSPMaxAge:     cfg.LSPMaxAge,
		MetricCeiling: cfg.MetricCeiling,
	}
	if opts.LSPMaxAge == 0 {
		opts.LSPMaxAge = state.DefaultLSPMaxAge
	}
	return opts
}

func (o Options) logger() *slog.Logger {
	if o.Log == nil {
		return slog.Default()
	}
	return o.Log
}

func (o Options) maxRounds() int {
	if o.MaxRounds <= 0 {
		return state.DefaultMaxRounds
	}
	return o.MaxRounds
}

// Result describes one distance-vector convergence.
type Result struct {
	Rounds int
	// Changes is the number of table-changing vectors across all rounds
	Changes  uint64
	Duration time.Duration
}

type RoutingTables struct {
	DistanceVector map[state.NodeId][]state.RoutingEntry
	LinkState      map[state.NodeId][]state.RoutingEntry
}

type Stats struct {
	RunId          uuid.UUID
	DistanceVector map[state.NodeId]state.RouterStats
	LinkState      map[state.NodeId]state.RouterStats
	DVTotal        state.RouterStats
	LSTotal        state.RouterStats
}

// Simulation runs a distance-vector and a link-state router for every router
// of the topology and drives them to convergence.
type Simulation struct {
	RunId uuid.UUID
	topo  *Topology
	opts  Options
	log   *slog.Logger
	ids   []state.NodeId

	mu      sync.Mutex // guards topo and the lifecycle fields below
	dvNet   *Network[state.DistanceVector]
	lsNet   *Network[state.LSP]
	dv      map[state.NodeId]*DVRouter
	ls      map[state.NodeId]*LSRouter
	rng     *rand.Rand
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelCauseFunc
	started bool
	stopped bool
}

func NewSimulation(topo *Topology, opts Options) *Simulation {
	runId := uuid.New()
	return &Simulation{
		RunId: runId,
		topo:  topo,
		opts:  opts,
		log:   opts.logger().With("run", runId.String()),
		ids:   topo.Routers(),
		rng:   rand.New(rand.NewPCG(opts.Seed, opts.Seed+1)),
	}
}

// Start creates and wires every router, then runs them until Stop is called
// or one of them fails.
func (s *Simulation) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("simulation already started")
	}
	s.started = true

	ctx, cancel := context.WithCancelCause(ctx)
	group, gctx := errgroup.WithContext(ctx)
	s.ctx, s.cancel, s.group = gctx, cancel, group

	s.dvNet = NewNetwork[state.DistanceVector](s.opts.MaxDelay, s.opts.Seed)
	s.lsNet = NewNetwork[state.LSP](s.opts.MaxDelay, s.opts.Seed+1)
	s.dv = make(map[state.NodeId]*DVRouter, len(s.ids))
	s.ls = make(map[state.NodeId]*LSRouter, len(s.ids))

	for _, id := range s.ids {
		links := s.topo.Neighbours(id)
		dv := NewDVRouter(gctx, id, s.opts, s.dvNet)
		if err := dv.seed(links); err != nil {
			cancel(err)
			return err
		}
		ls := NewLSRouter(gctx, id, s.opts, s.lsNet)
		if err := ls.seed(links); err != nil {
			cancel(err)
			return err
		}
		s.dv[id] = dv
		s.ls[id] = ls
	}
	for _, id := range s.ids {
		group.Go(s.dv[id].Run)
		group.Go(s.ls[id].Run)
	}
	if s.opts.Registry != nil {
		s.opts.Registry.Routers.Set(float64(len(s.ids)))
	}
	s.log.Info("simulation started", "routers", len(s.ids), "links", len(s.topo.Links()))
	return nil
}

// Stop cancels every router and waits for them to exit. It returns the first
// router failure, if any.
func (s *Simulation) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel(context.Canceled)
	err := s.group.Wait()
	s.log.Info("simulation stopped")
	return err
}

// Context is done once the simulation stops or a router fails.
func (s *Simulation) Context() context.Context {
	return s.ctx
}

// running merges the caller's context with the simulation's.
func (s *Simulation) running(ctx context.Context) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	started, stopped := s.started, s.stopped
	s.mu.Unlock()
	if !started || stopped {
		return nil, nil, errors.New("simulation is not running")
	}
	merged, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(s.ctx, func() {
		cancel(context.Cause(s.ctx))
	})
	return merged, func() {
		stop()
		cancel(context.Canceled)
	}, nil
}

type dvMessage struct {
	from, to state.NodeId
	vec      state.DistanceVector
}

// dvRound snapshots the advertisements of every router, delivers all of them
// and waits until they have been processed. It returns the number of
// deliveries that changed a table.
func (s *Simulation) dvRound(ctx context.Context) (uint64, error) {
	msgs := make([]dvMessage, 0)
	for _, id := range s.ids {
		ads, err := s.dv[id].advertisements()
		if err != nil {
			return 0, err
		}
		for _, to := range slices.Sorted(maps.Keys(ads)) {
			msgs = append(msgs, dvMessage{from: id, to: to, vec: ads[to]})
		}
	}
	if s.opts.Shuffle {
		s.rng.Shuffle(len(msgs), func(i, j int) {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		})
	}
	for _, m := range msgs {
		s.dvNet.Send(m.from, m.to, m.vec)
	}
	if err := s.dvNet.Wait(ctx); err != nil {
		return 0, err
	}
	changes := uint64(0)
	for _, id := range s.ids {
		changes += s.dv[id].takeChanges()
	}
	return changes, nil
}

// ConvergeDistanceVector runs exchange rounds until a full round changes no
// table. It fails with ErrNotConverged once MaxRounds rounds have all changed something.
func (s *Simulation) ConvergeDistanceVector(ctx context.Context) (Result, error) {
	ctx, cancel, err := s.running(ctx)
	if err != nil {
		return Result{}, err
	}
	defer cancel()

	for _, id := range s.ids {
		s.dv[id].takeChanges()
	}
	res := Result{}
	start := time.Now()
	limit := s.opts.maxRounds()
	for res.Rounds < limit {
		roundStart := time.Now()
		changes, err := s.dvRound(ctx)
		if err != nil {
			s.recordConvergence(ProtocolDV, "error", time.Since(start))
			return res, err
		}
		res.Rounds++
		res.Changes += changes
		perf.RoundLatency.Add(float64(time.Since(roundStart).Microseconds()))
		s.log.Debug("distance-vector round complete", "round", res.Rounds, "changes", changes)
		if changes == 0 {
			res.Duration = time.Since(start)
			s.recordConvergence(ProtocolDV, "converged", res.Duration)
			if s.opts.Registry != nil {
				s.opts.Registry.ConvergenceRounds.Observe(float64(res.Rounds))
			}
			s.log.Info("distance-vector converged", "rounds", res.Rounds, "changes", res.Changes, "elapsed", res.Duration)
			return res, nil
		}
	}
	res.Duration = time.Since(start)
	s.recordConvergence(ProtocolDV, "not_converged", res.Duration)
	s.log.Warn("distance-vector did not converge", "rounds", res.Rounds, "changes", res.Changes)
	return res, fmt.Errorf("%w after %d rounds", ErrNotConverged, res.Rounds)
}

// ConvergeLinkState originates a fresh LSP on every router and waits for
// flooding to settle.
func (s *Simulation) ConvergeLinkState(ctx context.Context) error {
	ctx, cancel, err := s.running(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	start := time.Now()
	for _, id := range s.ids {
		if err := s.ls[id].GenerateLSP(); err != nil {
			s.recordConvergence(ProtocolLS, "error", time.Since(start))
			return fmt.Errorf("router %s: %w", id, err)
		}
	}
	if err := s.lsNet.Wait(ctx); err != nil {
		s.recordConvergence(ProtocolLS, "error", time.Since(start))
		return err
	}
	elapsed := time.Since(start)
	perf.FloodDuration.Add(float64(elapsed.Microseconds()))
	s.recordConvergence(ProtocolLS, "converged", elapsed)
	s.log.Info("link-state converged", "elapsed", elapsed)
	return nil
}

// Converge converges both protocols.
func (s *Simulation) Converge(ctx context.Context) (Result, error) {
	res, err := s.ConvergeDistanceVector(ctx)
	if err != nil {
		return res, err
	}
	return res, s.ConvergeLinkState(ctx)
}

func (s *Simulation) recordConvergence(protocol, result string, d time.Duration) {
	if s.opts.Registry != nil {
		s.opts.Registry.RecordConvergence(protocol, result, d)
	}
}

// SetLinkStatus brings the link between a and b up or down in the topology
// and on both endpoints of each protocol. Routes only settle after the next
// Converge.
func (s *Simulation) SetLinkStatus(ctx context.Context, a, b state.NodeId, status state.LinkStatus) error {
	ctx, cancel, err := s.running(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	s.mu.Lock()
	err = s.topo.SetLinkStatus(a, b, status)
	link, _ := s.topo.Link(a, b)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.log.Info("link status changed", "a", a, "b", b, "status", status)
	if s.opts.Registry != nil {
		s.opts.Registry.RecordLinkEvent(status.String())
	}

	for _, p := range []state.Pair[state.NodeId, state.NodeId]{{V1: a, V2: b}, {V1: b, V2: a}} {
		if status == state.LinkUp {
			err = s.dv[p.V1].AddNeighbor(p.V2, int(link.Cost))
		} else {
			_, err = s.dv[p.V1].RemoveNeighbor(p.V2)
		}
		if err != nil {
			return err
		}
		if err := s.ls[p.V1].SetLinkStatus(p.V2, status); err != nil {
			return err
		}
	}
	return s.lsNet.Wait(ctx)
}

func (s *Simulation) DistanceVectorRouter(id state.NodeId) (*DVRouter, error) {
	r, ok := s.dv[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRouter, id)
	}
	return r, nil
}

func (s *Simulation) LinkStateRouter(id state.NodeId) (*LSRouter, error) {
	r, ok := s.ls[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRouter, id)
	}
	return r, nil
}

func (s *Simulation) Topology() []state.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topo.Links()
}

func (s *Simulation) RoutingTables(ctx context.Context) (RoutingTables, error) {
	_, cancel, err := s.running(ctx)
	if err != nil {
		return RoutingTables{}, err
	}
	defer cancel()
	out := RoutingTables{
		DistanceVector: make(map[state.NodeId][]state.RoutingEntry, len(s.ids)),
		LinkState:      make(map[state.NodeId][]state.RoutingEntry, len(s.ids)),
	}
	for _, id := range s.ids {
		dv, err := s.dv[id].RoutingTable()
		if err != nil {
			return out, err
		}
		ls, err := s.ls[id].RoutingTable()
		if err != nil {
			return out, err
		}
		out.DistanceVector[id] = dv
		out.LinkState[id] = ls
	}
	return out, nil
}

func (s *Simulation) Stats(ctx context.Context) (Stats, error) {
	_, cancel, err := s.running(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer cancel()
	out := Stats{
		RunId:          s.RunId,
		DistanceVector: make(map[state.NodeId]state.RouterStats, len(s.ids)),
		LinkState:      make(map[state.NodeId]state.RouterStats, len(s.ids)),
	}
	for _, id := range s.ids {
		dv, err := s.dv[id].Stats()
		if err != nil {
			return out, err
		}
		ls, err := s.ls[id].Stats()
		if err != nil {
			return out, err
		}
		out.DistanceVector[id] = dv
		out.LinkState[id] = ls
		out.DVTotal = out.DVTotal.Plus(dv)
		out.LSTotal = out.LSTotal.Plus(ls)
	}
	return out, nil
}
