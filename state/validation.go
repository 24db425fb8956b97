package state

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/go-playground/validator/v10"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")

var validate = validator.New(validator.WithRequiredStructEnabled())

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > MaxNameLength {
		return fmt.Errorf("len(\"%s\") = %d > %d is too long", s, len(s), MaxNameLength)
	}
	return nil
}

// TopologyConfigValidator checks field constraints, router names and that
// every link and event refers to a defined router pair.
func TopologyConfigValidator(cfg *TopologyCfg) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed on %q (value: %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	seen := make(map[NodeId]bool, len(cfg.Routers))
	for _, r := range cfg.Routers {
		if err := NameValidator(string(r)); err != nil {
			return err
		}
		if seen[r] {
			return fmt.Errorf("duplicate router: %s", r)
		}
		seen[r] = true
	}
	checkPair := func(a, b NodeId) error {
		if !seen[a] {
			return fmt.Errorf("router %s not defined", a)
		}
		if !seen[b] {
			return fmt.Errorf("router %s not defined", b)
		}
		if a == b {
			return fmt.Errorf("link %s, %s is a self loop", a, b)
		}
		return nil
	}
	nodeRel := make([]Pair[NodeId, NodeId], 0)
	for _, link := range cfg.Links {
		if err := checkPair(link.From, link.To); err != nil {
			return err
		}
		edge := MakeSortedPair(link.From, link.To)
		if slices.Contains(nodeRel, edge) {
			return fmt.Errorf("duplicate edge found: %s, %s", edge.V1, edge.V2)
		}
		nodeRel = append(nodeRel, edge)
	}
	edges, err := cfg.Edges()
	if err != nil {
		return fmt.Errorf("invalid graph: %w", err)
	}
	for _, ev := range cfg.Events {
		if err := checkPair(ev.From, ev.To); err != nil {
			return err
		}
		edge := MakeSortedPair(ev.From, ev.To)
		if !slices.ContainsFunc(edges, func(l LinkCfg) bool {
			return MakeSortedPair(l.From, l.To) == edge
		}) {
			return fmt.Errorf("event refers to unknown link %s, %s", edge.V1, edge.V2)
		}
	}
	return nil
}
