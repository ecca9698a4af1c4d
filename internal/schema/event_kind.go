package schema

import "github.com/yanun0323/errors"

var ErrUnknownEventKind = errors.New("unknown order event kind")

// Family groups order event kinds by the request they report on.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyOrder
	FamilyModify
	FamilyCancel
)

func (f Family) String() string {
	switch f {
	case FamilyOrder:
		return "order"
	case FamilyModify:
		return "modify"
	case FamilyCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// OrderEventKind is one externally delivered lifecycle event.
type OrderEventKind uint8

const (
	KindUnknown OrderEventKind = iota

	OrderReceivedFromClient
	OrderReceivedByBroker
	OrderSentToExchange
	OrderReceivedByGateway
	OrderOpen
	OrderPending
	OrderStatus
	OrderGeneric
	OrderTriggerPending
	OrderTrigger
	OrderFill
	OrderReject
	OrderNewOrdersFailed
	OrderLinkOrdersFailed
	OrderComplete

	ModifyReceivedFromClient
	ModifyReceivedByBroker
	ModifySentToExchange
	ModifyReceivedByGateway
	ModifyOpen
	ModifyPending
	ModifyStatus
	ModifyGeneric
	ModifyModify
	ModifyTrigger
	ModifyFill
	ModifyModified
	ModifyNotModified
	ModifyModificationFailed
	ModifyReject
	ModifyComplete

	CancelReceivedFromClient
	CancelReceivedByBroker
	CancelSentToExchange
	CancelReceivedByGateway
	CancelPending
	CancelGeneric
	CancelCancel
	CancelNotCancelled
	CancelCancellationFailed
	CancelReject
	CancelComplete

	kindEnd
)

// OrderEventKindCount bounds arrays indexed by OrderEventKind.
const OrderEventKindCount = int(kindEnd)

var kindNames = [...]string{
	KindUnknown: "unknown",

	OrderReceivedFromClient: "order_received_from_client",
	OrderReceivedByBroker:   "order_received_by_broker",
	OrderSentToExchange:     "order_sent_to_exchange",
	OrderReceivedByGateway:  "order_received_by_exchange_gateway",
	OrderOpen:               "order_open",
	OrderPending:            "order_pending",
	OrderStatus:             "order_status",
	OrderGeneric:            "order_generic",
	OrderTriggerPending:     "order_trigger_pending",
	OrderTrigger:            "order_trigger",
	OrderFill:               "order_fill",
	OrderReject:             "order_reject",
	OrderNewOrdersFailed:    "order_new_orders_failed",
	OrderLinkOrdersFailed:   "order_link_orders_failed",
	OrderComplete:           "order_complete",

	ModifyReceivedFromClient: "modify_received_from_client",
	ModifyReceivedByBroker:   "modify_received_by_broker",
	ModifySentToExchange:     "modify_sent_to_exchange",
	ModifyReceivedByGateway:  "modify_received_by_exchange_gateway",
	ModifyOpen:               "modify_open",
	ModifyPending:            "modify_pending",
	ModifyStatus:             "modify_status",
	ModifyGeneric:            "modify_generic",
	ModifyModify:             "modify_modify",
	ModifyTrigger:            "modify_trigger",
	ModifyFill:               "modify_fill",
	ModifyModified:           "modify_modified",
	ModifyNotModified:        "modify_not_modified",
	ModifyModificationFailed: "modify_modification_failed",
	ModifyReject:             "modify_reject",
	ModifyComplete:           "modify_complete",

	CancelReceivedFromClient: "cancel_received_from_client",
	CancelReceivedByBroker:   "cancel_received_by_broker",
	CancelSentToExchange:     "cancel_sent_to_exchange",
	CancelReceivedByGateway:  "cancel_received_by_exchange_gateway",
	CancelPending:            "cancel_pending",
	CancelGeneric:            "cancel_generic",
	CancelCancel:             "cancel_cancel",
	CancelNotCancelled:       "cancel_not_cancelled",
	CancelCancellationFailed: "cancel_cancellation_failed",
	CancelReject:             "cancel_reject",
	CancelComplete:           "cancel_complete",
}

var kindByName = func() map[string]OrderEventKind {
	m := make(map[string]OrderEventKind, len(kindNames))
	for k, name := range kindNames {
		if OrderEventKind(k) == KindUnknown {
			continue
		}
		m[name] = OrderEventKind(k)
	}
	return m
}()

// AllOrderEventKinds lists every known kind in declaration order.
func AllOrderEventKinds() []OrderEventKind {
	out := make([]OrderEventKind, 0, int(kindEnd)-1)
	for k := KindUnknown + 1; k < kindEnd; k++ {
		out = append(out, k)
	}
	return out
}

// ParseOrderEventKind resolves a wire name.
func ParseOrderEventKind(name string) (OrderEventKind, error) {
	if k, ok := kindByName[name]; ok {
		return k, nil
	}
	return KindUnknown, errors.Wrapf(ErrUnknownEventKind, "name: %q", name)
}

func (k OrderEventKind) String() string {
	if k < kindEnd {
		return kindNames[k]
	}
	return "unknown"
}

func (k OrderEventKind) Valid() bool {
	return k > KindUnknown && k < kindEnd
}

// Family reports which request family the kind belongs to.
func (k OrderEventKind) Family() Family {
	switch {
	case k >= OrderReceivedFromClient && k <= OrderComplete:
		return FamilyOrder
	case k >= ModifyReceivedFromClient && k <= ModifyComplete:
		return FamilyModify
	case k >= CancelReceivedFromClient && k <= CancelComplete:
		return FamilyCancel
	default:
		return FamilyUnknown
	}
}

func (k OrderEventKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, errors.Wrapf(ErrUnknownEventKind, "kind: %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *OrderEventKind) UnmarshalText(b []byte) error {
	parsed, err := ParseOrderEventKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
