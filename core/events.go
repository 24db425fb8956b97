package core

import (
	"errors"

	"github.com/encodeous/routesim/state"
)

var (
	ErrInvalidCost    = errors.New("link cost must be a positive integer")
	ErrSelfNeighbour  = errors.New("a router cannot be its own neighbour")
	ErrUnknownRouter  = errors.New("unknown router")
	ErrUnknownLink    = errors.New("unknown link")
	ErrDuplicateLink  = errors.New("duplicate link")
	ErrNotConverged   = errors.New("distance-vector did not converge")
	ErrSeqnoExhausted = errors.New("lsp sequence number exhausted")
)

type RouterEvent int

// trace events

const (
	RouteImproved RouterEvent = iota
	RouteRetracted
	RouteAdded
	RouteChanged
	NeighbourAdded
	NeighbourRemoved
	LinkStatusChanged
	LSPOriginated
	LSPInstalled
	LSPExpired
	LSPRefreshed
	ShortestPathsComputed
)

// warn events

const (
	InconsistentState RouterEvent = iota + 1000
	UpdateDropped
	StaleLSPDropped
	SelfLSPRefreshed
)

func (e RouterEvent) String() string {
	switch e {
	case RouteImproved:
		return "ROUTE_IMPROVED"
	case RouteRetracted:
		return "ROUTE_RETRACTED"
	case RouteAdded:
		return "ROUTE_ADDED"
	case RouteChanged:
		return "ROUTE_CHANGED"
	case NeighbourAdded:
		return "NEIGHBOUR_ADDED"
	case NeighbourRemoved:
		return "NEIGHBOUR_REMOVED"
	case LinkStatusChanged:
		return "LINK_STATUS_CHANGED"
	case LSPOriginated:
		return "LSP_ORIGINATED"
	case LSPInstalled:
		return "LSP_INSTALLED"
	case LSPExpired:
		return "LSP_EXPIRED"
	case LSPRefreshed:
		return "LSP_REFRESHED"
	case ShortestPathsComputed:
		return "SPF_COMPUTED"
	case InconsistentState:
		return "INCONSISTENT_STATE"
	case UpdateDropped:
		return "UPDATE_DROPPED"
	case StaleLSPDropped:
		return "STALE_LSP_DROPPED"
	case SelfLSPRefreshed:
		return "SELF_LSP_REFRESHED"
	default:
		return "UNKNOWN_EVENT"
	}
}

// Router is an interface that defines the operations shared by both protocols
type Router interface {
	Log(event RouterEvent, desc string, args ...any)
}

// Flooder is a link-state router that can hand an LSP to a neighbour
type Flooder interface {
	Router
	SendLSP(neigh state.NodeId, lsp state.LSP)
}
