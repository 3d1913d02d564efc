// Package components defines the component kinds of the world and the
// structural invariants that bind them together.
//
// Components refer to each other by entity identifier only. Index fields such
// as Room.Exits or Structure.Rooms are maintained by the world hooks installed
// by Register and should not be edited by hand.
package components

import (
	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/world"
)

const (
	KindMeta           models.Kind = "meta"
	KindObject         models.Kind = "object"
	KindStructure      models.Kind = "structure"
	KindRegion         models.Kind = "region"
	KindGateway        models.Kind = "gateway"
	KindRoom           models.Kind = "room"
	KindExit           models.Kind = "exit"
	KindRegionLocation models.Kind = "region_location"
	KindRoomLocation   models.Kind = "room_location"
	KindRealityLayer   models.Kind = "reality_layer"
	KindActionQueue    models.Kind = "action_queue"
)

// Invariant rule names reported in *world.InvariantViolation.
const (
	RuleRoomKey        = "room_key_unique"
	RuleExitDirection  = "exit_direction_unique"
	RuleGatewayState   = "gateway_state"
	RuleContainment    = "containment_acyclic"
	RuleRegionKey      = "region_key"
	RuleSingleLocation = "single_location"
	RuleReference      = "reference_kind"
)

// Register installs storage and hooks for every kind on w. Kinds are detached
// in reverse order on destroy, so exits go before rooms and rooms before structures.
func Register(w *world.World) error {
	regs := []func(*world.World) error{
		func(w *world.World) error { return world.Register[*Meta](w, world.Hooks{}) },
		func(w *world.World) error { return world.Register[*Object](w, world.Hooks{}) },
		func(w *world.World) error { return world.Register[*Structure](w, structureHooks) },
		func(w *world.World) error { return world.Register[*Region](w, regionHooks) },
		func(w *world.World) error { return world.Register[*Gateway](w, gatewayHooks) },
		func(w *world.World) error { return world.Register[*Room](w, roomHooks) },
		func(w *world.World) error { return world.Register[*Exit](w, exitHooks) },
		func(w *world.World) error { return world.Register[*RegionLocation](w, regionLocationHooks) },
		func(w *world.World) error { return world.Register[*RoomLocation](w, roomLocationHooks) },
		func(w *world.World) error { return world.Register[*RealityLayer](w, world.Hooks{}) },
		func(w *world.World) error { return world.Register[*ActionQueue](w, world.Hooks{}) },
	}
	for _, reg := range regs {
		if err := reg(w); err != nil {
			return err
		}
	}
	return nil
}

// NewWorld returns a world with every kind registered.
func NewWorld() *world.World {
	w := world.New()
	if err := Register(w); err != nil {
		panic(err)
	}
	return w
}

// requireKind rejects references to entities lacking a component of kind k.
// A None reference is always accepted.
func requireKind(w *world.World, id, ref models.EntityID, k models.Kind, field string) error {
	if ref.IsNone() || w.Has(ref, k) {
		return nil
	}
	return world.Violation(RuleReference, id, "%s %d is not a %s", field, ref, k)
}
