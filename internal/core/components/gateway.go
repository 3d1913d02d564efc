package components

import (
	"fmt"

	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// GatewayState is the traversal state of a gateway.
type GatewayState string

const (
	GatewayOpen   GatewayState = "open"
	GatewayClosed GatewayState = "closed"
	GatewayLocked GatewayState = "locked"
)

func (s GatewayState) Valid() bool {
	switch s {
	case GatewayOpen, GatewayClosed, GatewayLocked:
		return true
	}
	return false
}

// Passable reports whether exits using the gateway can be traversed.
func (s GatewayState) Passable() bool { return s == GatewayOpen }

// Gateway sits between exits and carries shared state such as door locks.
type Gateway struct {
	models.Base

	Structure models.EntityID
	// Exits is maintained from Exit.Gateway.
	Exits EntitySet
	State GatewayState
}

func NewGateway(structure models.EntityID) *Gateway {
	return &Gateway{Structure: structure, Exits: NewEntitySet(), State: GatewayOpen}
}

func (*Gateway) Kind() models.Kind { return KindGateway }

// SetState changes the state, rejecting unknown values.
func (g *Gateway) SetState(id models.EntityID, state GatewayState) error {
	if !state.Valid() {
		return world.Violation(RuleGatewayState, id, "unknown gateway state %q", state)
	}
	if g.State != state {
		g.State = state
		g.MarkDirty()
	}
	return nil
}

func (g *Gateway) Export() models.Export {
	return models.Export{
		"structure": uint64(g.Structure),
		"exits":     g.Exits.Sorted(),
		"state":     string(g.State),
	}
}

func (g *Gateway) Import(e models.Export) error {
	var state string
	if err := importString(e, "state", &state); err != nil || state == "" {
		return err
	}
	if !GatewayState(state).Valid() {
		return fmt.Errorf("%w: gateway state %q", models.ErrMalformedExport, state)
	}
	g.State = GatewayState(state)
	return nil
}

var gatewayHooks = world.Hooks{
	Validate: func(w *world.World, id models.EntityID, c models.Component) error {
		g := c.(*Gateway)
		if !g.State.Valid() {
			return world.Violation(RuleGatewayState, id, "unknown gateway state %q", g.State)
		}
		return requireKind(w, id, g.Structure, KindStructure, "structure")
	},
	OnAttach: func(w *world.World, id models.EntityID, c models.Component) {
		g := c.(*Gateway)
		rebuildGateway(w, id, g)
		if s, ok := world.Get[*Structure](w, g.Structure); ok {
			s.Gateways.Add(id)
		}
	},
	OnDetach: func(w *world.World, id models.EntityID, c models.Component) {
		if s, ok := world.Get[*Structure](w, c.(*Gateway).Structure); ok {
			s.Gateways.Remove(id)
		}
	},
}
