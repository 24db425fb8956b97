package state

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// LinkCfg is one undirected weighted link.
type LinkCfg struct {
	From NodeId `yaml:"from" validate:"required"`
	To   NodeId `yaml:"to" validate:"required"`
	Cost int    `yaml:"cost" validate:"gt=0"`
}

// EventCfg changes the status of a link once the network has converged.
type EventCfg struct {
	From   NodeId     `yaml:"from" validate:"required"`
	To     NodeId     `yaml:"to" validate:"required"`
	Status LinkStatus `yaml:"status"`
}

type SimulationCfg struct {
	MaxRounds     int           `yaml:"max_rounds,omitempty" validate:"gte=0"`
	Shuffle       bool          `yaml:"shuffle,omitempty"`
	Seed          uint64        `yaml:"seed,omitempty"`
	MaxDelay      time.Duration `yaml:"max_delay,omitempty" validate:"gte=0"`
	LSPMaxAge     time.Duration `yaml:"lsp_max_age,omitempty" validate:"gte=0"`
	MetricCeiling uint64        `yaml:"metric_ceiling,omitempty"`
}

// TopologyCfg is the on-disk description of a simulated network
type TopologyCfg struct {
	Routers []NodeId  `yaml:"routers" validate:"required,min=1,dive,required"`
	Links   []LinkCfg `yaml:"links,omitempty" validate:"dive"`
	// Graph uses the group syntax of ParseGraph, every pair gets DefaultCost
	Graph       []string      `yaml:"graph,omitempty"`
	DefaultCost int           `yaml:"default_cost,omitempty" validate:"gte=0"`
	Simulation  SimulationCfg `yaml:"simulation,omitempty"`
	Events      []EventCfg    `yaml:"events,omitempty" validate:"dive"`
}

// DefaultTopologyCfg is the five router network used by `routesim new`.
func DefaultTopologyCfg() TopologyCfg {
	return TopologyCfg{
		Routers: []NodeId{"a", "b", "c", "d", "e"},
		Links: []LinkCfg{
			{"a", "b", 2},
			{"a", "c", 5},
			{"b", "c", 1},
			{"b", "d", 3},
			{"c", "d", 2},
			{"c", "e", 4},
			{"d", "e", 1},
		},
		Simulation: SimulationCfg{
			MaxRounds: DefaultMaxRounds,
			LSPMaxAge: DefaultLSPMaxAge,
		},
		Events: []EventCfg{
			{From: "b", To: "c", Status: LinkDown},
			{From: "b", To: "c", Status: LinkUp},
		},
	}
}

// LoadTopologyCfg reads, parses and validates a topology file.
func LoadTopologyCfg(path string) (*TopologyCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &TopologyCfg{}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := TopologyConfigValidator(cfg); err != nil {
		return nil, fmt.Errorf("invalid topology %s: %w", path, err)
	}
	return cfg, nil
}

// Edges returns every undirected link of the topology. Explicit links come
// first, in file order. Graph pairs that are not already an explicit link
// follow, sorted, with DefaultCost (1 if unset).
func (c *TopologyCfg) Edges() ([]LinkCfg, error) {
	edges := slices.Clone(c.Links)
	if len(c.Graph) == 0 {
		return edges, nil
	}
	nodes := make([]string, 0, len(c.Routers))
	for _, r := range c.Routers {
		nodes = append(nodes, string(r))
	}
	pairs, err := ParseGraph(c.Graph, nodes)
	if err != nil {
		return nil, err
	}
	explicit := make(map[Pair[NodeId, NodeId]]bool, len(c.Links))
	for _, l := range c.Links {
		explicit[MakeSortedPair(l.From, l.To)] = true
	}
	cost := c.DefaultCost
	if cost == 0 {
		cost = 1
	}
	for _, p := range pairs {
		if explicit[p] {
			continue
		}
		edges = append(edges, LinkCfg{From: p.V1, To: p.V2, Cost: cost})
	}
	return edges, nil
}

func parseSymbolList(s string, validSymbols []string) ([]string, error) {
	line := make([]string, 0)
	for _, sym := range strings.Split(strings.TrimSpace(s), ",") {
		x := strings.TrimSpace(sym)
		if x == "" {
			continue
		}
		if !slices.Contains(validSymbols, x) {
			return nil, fmt.Errorf(`%s is not a valid node/group`, x)
		}
		line = append(line, x)
	}
	if len(line) == 0 {
		return nil, fmt.Errorf(`node/group list must not be empty`)
	}
	slices.Sort(line)
	return line, nil
}

/*
ParseGraph Graph syntax is something like this:

Group1 = node1, node2, node3

Group2 = node4, node5

Group1, Group2, OtherNode // Group1, Group2, OtherNode will all be interconnected, but not within Group1 or Group2

Group1, Group1 // every node is connected to every other node

node8, node9 // node8 and node9 will be connected

graph represents the above graph
nodes represents a set of unique terminal nodes that the graph will evaluate down to
*/
func ParseGraph(graph []string, nodes []string) ([]Pair[NodeId, NodeId], error) {
	groups := make(map[string][]string)
	symbols := slices.Clone(nodes)

	// symbols may reference groups defined further down
	for _, line := range graph {
		line = strings.ToLower(strings.TrimSpace(line))
		if !strings.Contains(line, "=") {
			continue
		}
		spl := strings.Split(line, "=")
		if len(spl) != 2 {
			return nil, fmt.Errorf("invalid graph: %s. group definition must contain one '='", line)
		}
		grp := strings.TrimSpace(spl[0])
		if slices.Contains(nodes, grp) {
			return nil, fmt.Errorf("group name must not be a node name: %s", grp)
		}
		symbols = append(symbols, grp)
	}
	slices.Sort(symbols)
	symbols = slices.Compact(symbols)

	symPairs := make([]Pair[string, string], 0)
	for _, line := range graph {
		line = strings.ToLower(strings.TrimSpace(line))
		if grp, members, ok := strings.Cut(line, "="); ok {
			grp = strings.TrimSpace(grp)
			if _, ok := groups[grp]; ok {
				return nil, fmt.Errorf("duplicate group name: %s", grp)
			}
			lst, err := parseSymbolList(members, symbols)
			if err != nil {
				return nil, err
			}
			groups[grp] = slices.Compact(lst)
			continue
		}
		names, err := parseSymbolList(line, symbols)
		if err != nil {
			return nil, err
		}
		if len(names) < 2 {
			return nil, fmt.Errorf("invalid pairing, %v", names)
		}
		for i, a := range names {
			for _, b := range names[:i] {
				symPairs = append(symPairs, MakeSortedPair(a, b))
			}
		}
	}
	SortPairs(symPairs)
	symPairs = slices.Compact(symPairs)

	expansion, err := expandGroups(groups, nodes)
	if err != nil {
		return nil, err
	}
	resolve := func(sym string) []NodeId {
		if slices.Contains(nodes, sym) {
			return []NodeId{NodeId(sym)}
		}
		return expansion[sym]
	}

	pairings := make([]Pair[NodeId, NodeId], 0)
	for _, pair := range symPairs {
		for _, x := range resolve(pair.V1) {
			for _, y := range resolve(pair.V2) {
				if x != y {
					pairings = append(pairings, MakeSortedPair(x, y))
				}
			}
		}
	}
	SortPairs(pairings)
	return slices.Compact(pairings), nil
}

// expandGroups resolves every group down to its terminal nodes.
func expandGroups(groups map[string][]string, nodes []string) (map[string][]NodeId, error) {
	expanded := make(map[string][]NodeId, len(groups))
	var stack []string

	var visit func(grp string) error
	visit = func(grp string) error {
		if _, ok := expanded[grp]; ok {
			return nil
		}
		if idx := slices.Index(stack, grp); idx != -1 {
			cycle := slices.Clone(stack[idx:])
			slices.Sort(cycle)
			return fmt.Errorf("cycle detected in graph: %v", cycle)
		}
		stack = append(stack, grp)
		members := make([]NodeId, 0)
		for _, sym := range groups[grp] {
			if slices.Contains(nodes, sym) {
				members = append(members, NodeId(sym))
				continue
			}
			if err := visit(sym); err != nil {
				return err
			}
			members = append(members, expanded[sym]...)
		}
		slices.Sort(members)
		expanded[grp] = slices.Compact(members)
		stack = stack[:len(stack)-1]
		return nil
	}

	for _, grp := range slices.Sorted(maps.Keys(groups)) {
		if err := visit(grp); err != nil {
			return nil, err
		}
	}
	return expanded, nil
}
