package launch

import (
	"encoding/hex"
	"strconv"

	"findprotocol/core/events"
	"findprotocol/core/types"
)

const (
	// EventTypeLaunched is emitted when a new OSP asset is registered.
	EventTypeLaunched = "launch.launched"
	// EventTypeOwnershipClaimed is emitted when a project's owner claim moves.
	EventTypeOwnershipClaimed = "launch.ownership.claimed"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func launchedEvent(project *Project) *types.Event {
	if project == nil {
		return nil
	}
	return &types.Event{
		Type: EventTypeLaunched,
		Attributes: map[string]string{
			"projectId":  project.ID,
			"symbol":     project.Symbol,
			"asset":      hex.EncodeToString(project.Asset[:]),
			"creator":    hex.EncodeToString(project.Creator[:]),
			"maxSupply":  project.MaxSupply.String(),
			"poolFeePpm": strconv.FormatUint(uint64(project.PoolFeePpm), 10),
		},
	}
}

func ownershipClaimedEvent(projectID string, previous, next [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeOwnershipClaimed,
		Attributes: map[string]string{
			"projectId": projectID,
			"previous":  hex.EncodeToString(previous[:]),
			"owner":     hex.EncodeToString(next[:]),
		},
	}
}
