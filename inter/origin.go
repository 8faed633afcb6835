package inter

import (
	"errors"
	"fmt"
)

// OriginKind is the closed set of producers that emit receipt chains.
// Every infrastructure action is attributed to exactly one of these kinds,
// and downstream stages switch over the kind exhaustively instead of relying
// on runtime type inspection.
type OriginKind uint8

const (
	// OriginContainer is a sandboxed container runtime producing lifecycle
	// and execution events.
	OriginContainer OriginKind = iota + 1
	// OriginCluster is a cluster orchestrator producing scheduling and
	// placement decisions.
	OriginCluster
	// OriginNode is a consensus/validator node producing protocol actions.
	OriginNode
	// OriginServer is a plain server process producing host-level actions.
	OriginServer
)

var errUnknownOriginKind = errors.New("unknown origin kind")

// Valid reports whether the kind is one of the defined origin kinds.
func (k OriginKind) Valid() bool {
	switch k {
	case OriginContainer, OriginCluster, OriginNode, OriginServer:
		return true
	}
	return false
}

// String returns the canonical lower-case name of the kind.
func (k OriginKind) String() string {
	switch k {
	case OriginContainer:
		return "container"
	case OriginCluster:
		return "cluster"
	case OriginNode:
		return "node"
	case OriginServer:
		return "server"
	}
	return fmt.Sprintf("origin(%d)", uint8(k))
}

// Origin identifies one logical receipt chain: a producer kind plus the
// producer's own identifier (container id, cluster node id, etc.).
// Each origin owns exactly one append-only hash chain of receipts.
type Origin struct {
	Kind OriginKind
	ID   string
}

// Validate checks that the origin names a known kind and a non-empty id.
func (o Origin) Validate() error {
	if !o.Kind.Valid() {
		return errUnknownOriginKind
	}
	if o.ID == "" {
		return errors.New("empty origin id")
	}
	return nil
}

// String renders the origin as "kind/id", the form used in logs and as the
// per-origin chain key.
func (o Origin) String() string {
	return o.Kind.String() + "/" + o.ID
}
