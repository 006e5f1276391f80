package core

import (
	"context"
	"encoding/json"
)

// HandlerID identifies one registration made with SignalChannel.On.
type HandlerID uint64

// SignalHandler receives the raw data of one inbound event.
type SignalHandler func(data json.RawMessage)

// SignalChannel is the client side of the rendezvous connection.
// Handlers for one channel run in arrival order on a single goroutine.
type SignalChannel interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Emit(event string, payload any) error
	On(event string, h SignalHandler) HandlerID
	Off(event string, id HandlerID)
	Connected() bool
}
