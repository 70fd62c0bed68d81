package handler

import "github.com/Odillon241/Chronodil-sub001/internal/protocol"

type HeartbeatHandlerInterface interface {
	Handle() protocol.PongEvent
}

type HeartbeatHandler struct{}

func NewHeartbeatHandler() *HeartbeatHandler {
	return &HeartbeatHandler{}
}

// Handle answers PING. It needs no authentication.
func (h *HeartbeatHandler) Handle() protocol.PongEvent {
	return protocol.NewPongEvent()
}
