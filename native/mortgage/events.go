package mortgage

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"findprotocol/core/events"
	"findprotocol/core/types"
)

const (
	// EventTypeMortgaged is emitted when collateral is locked and base token minted.
	EventTypeMortgaged = "mortgage.mortgaged"
	// EventTypeRedeemed is emitted when base token is repaid to release collateral.
	EventTypeRedeemed = "mortgage.redeemed"
	// EventTypeMultiplied is emitted when a leveraged deposit is composed in one call.
	EventTypeMultiplied = "mortgage.multiplied"
	// EventTypeCashed is emitted when collateral is liquidated for proceeds.
	EventTypeCashed = "mortgage.cashed"
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

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func mortgagedEvent(positionID uint64, asset [20]byte, deposit, outFind, fee *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeMortgaged,
		Attributes: map[string]string{
			"positionId": strconv.FormatUint(positionID, 10),
			"asset":      hex.EncodeToString(asset[:]),
			"deposit":    formatAmount(deposit),
			"outFind":    formatAmount(outFind),
			"fee":        formatAmount(fee),
		},
	}
}

func redeemedEvent(positionID uint64, asset [20]byte, withdraw, paid, fee *big.Int, closed bool) *types.Event {
	return &types.Event{
		Type: EventTypeRedeemed,
		Attributes: map[string]string{
			"positionId": strconv.FormatUint(positionID, 10),
			"asset":      hex.EncodeToString(asset[:]),
			"withdraw":   formatAmount(withdraw),
			"paid":       formatAmount(paid),
			"fee":        formatAmount(fee),
			"closed":     strconv.FormatBool(closed),
		},
	}
}

func multipliedEvent(positionID uint64, asset [20]byte, ospDelta, needPay, payFind, fee *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeMultiplied,
		Attributes: map[string]string{
			"positionId": strconv.FormatUint(positionID, 10),
			"asset":      hex.EncodeToString(asset[:]),
			"ospDelta":   formatAmount(ospDelta),
			"needPay":    formatAmount(needPay),
			"payFind":    formatAmount(payFind),
			"fee":        formatAmount(fee),
		},
	}
}

func cashedEvent(positionID uint64, asset [20]byte, ospAmount, outFind, amountOut, fee *big.Int, closed bool) *types.Event {
	return &types.Event{
		Type: EventTypeCashed,
		Attributes: map[string]string{
			"positionId": strconv.FormatUint(positionID, 10),
			"asset":      hex.EncodeToString(asset[:]),
			"ospAmount":  formatAmount(ospAmount),
			"outFind":    formatAmount(outFind),
			"amountOut":  formatAmount(amountOut),
			"fee":        formatAmount(fee),
			"closed":     strconv.FormatBool(closed),
		},
	}
}
