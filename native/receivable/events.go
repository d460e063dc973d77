package receivable

import (
	"strconv"

	"nexumfi/core/types"
	"nexumfi/crypto"
)

const (
	EventTypeMinted      = "receivable.minted"
	EventTypeTransferred = "receivable.transferred"
	EventTypeLocked      = "receivable.locked"
	EventTypeUnlocked    = "receivable.unlocked"
	EventTypeMatured     = "receivable.matured"
	EventTypeSettled     = "receivable.settled"
	EventTypeDefaulted   = "receivable.defaulted"
	EventTypePaused      = "receivable.paused"
	EventTypeUnpaused    = "receivable.unpaused"
	EventTypeRoleUpdated = "receivable.role_updated"
	EventTypeInitialized = "receivable.initialized"
)

func newReceivableEvent(eventType string, r *Receivable) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(r.ID, 10)
	attrs["owner"] = r.Owner.String()
	attrs["creditor"] = r.Creditor.String()
	attrs["faceValue"] = r.FaceValue.String()
	attrs["currency"] = r.Currency
	attrs["maturityDate"] = strconv.FormatInt(r.MaturityDate, 10)
	attrs["status"] = r.Status.String()
	attrs["locked"] = strconv.FormatBool(r.Locked)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newTransferEvent(r *Receivable, from, to crypto.Address) *types.Event {
	evt := newReceivableEvent(EventTypeTransferred, r)
	evt.Attributes["from"] = from.String()
	evt.Attributes["to"] = to.String()
	return evt
}

func newAdminEvent(eventType string, actor crypto.Address, extra map[string]string) *types.Event {
	attrs := map[string]string{"actor": actor.String()}
	for k, v := range extra {
		attrs[k] = v
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
