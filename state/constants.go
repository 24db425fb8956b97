package state

import "time"

const (
	// DefaultMaxRounds bounds distance-vector exchange rounds before giving up.
	DefaultMaxRounds = 256
	// DefaultLSPMaxAge matches the OSPF MaxAge architectural constant.
	DefaultLSPMaxAge = time.Hour
)

var (
	// SlowDispatchThreshold is the dispatch duration above which a router logs a warning.
	SlowDispatchThreshold = time.Millisecond * 4
	MaxNameLength         = 100

	DefaultConfigPath = "topology.yaml"
)
