// Package feed bridges an upstream websocket to the session: market data,
// order lifecycle events and triggers flow in; order requests and route
// subscriptions flow out.
package feed

import (
	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/yanun0323/errors"
)

type FrameType string

const (
	FrameMarket      FrameType = "market"
	FrameOrderEvent  FrameType = "order_event"
	FrameTrigger     FrameType = "trigger"
	FrameRequest     FrameType = "order_request"
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FrameAck         FrameType = "ack"
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Type     FrameType            `json:"type"`
	ID       int64                `json:"id,omitempty"`
	Exchange string               `json:"exchange,omitempty"`
	Key      string               `json:"key,omitempty"`
	Error    string               `json:"error,omitempty"`
	Market   *schema.MarketUpdate `json:"market,omitempty"`
	Order    *schema.OrderEvent   `json:"order,omitempty"`
	Trigger  *schema.Trigger      `json:"trigger,omitempty"`
	Request  *schema.OrderRequest `json:"request,omitempty"`
}

// Handlers receive decoded inbound frames. Nil handlers ignore their type.
type Handlers struct {
	Market  func(schema.MarketUpdate)
	Order   func(schema.OrderEvent)
	Trigger func(schema.Trigger)
}

func (f Frame) dispatch(h Handlers) error {
	switch f.Type {
	case FrameMarket:
		if f.Market == nil {
			return errors.Wrap(exception.ErrWebSocketProtocol, "market frame without body")
		}
		if h.Market != nil {
			h.Market(*f.Market)
		}
	case FrameOrderEvent:
		if f.Order == nil {
			return errors.Wrap(exception.ErrWebSocketProtocol, "order frame without body")
		}
		if h.Order != nil {
			h.Order(*f.Order)
		}
	case FrameTrigger:
		if f.Trigger == nil {
			return errors.Wrap(exception.ErrWebSocketProtocol, "trigger frame without body")
		}
		if h.Trigger != nil {
			h.Trigger(*f.Trigger)
		}
	case FrameAck:
	default:
		return errors.Wrapf(exception.ErrWebSocketProtocol, "unexpected frame type: %q", f.Type)
	}
	return nil
}
