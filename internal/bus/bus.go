package bus

import (
	"context"

	"github.com/Odillon241/Chronodil-sub001/internal/broadcaster"
	"github.com/Odillon241/Chronodil-sub001/internal/protocol"
)

// RoomEvent is a frame addressed to every connection in a conversation room,
// on every node, except ExcludeConnectionId.
type RoomEvent struct {
	ConversationId      string         `json:"conversationId"`
	ExcludeConnectionId string         `json:"excludeConnectionId,omitempty"`
	Frame               protocol.Frame `json:"frame"`
}

type Bus interface {
	Publish(ctx context.Context, event RoomEvent) error
	// Run dispatches events to the local registry until ctx is done.
	Run(ctx context.Context) error
	Close() error
}

// LocalBus delivers room events straight to the process-local registry.
type LocalBus struct {
	registry broadcaster.Registry
}

func NewLocalBus(registry broadcaster.Registry) *LocalBus {
	return &LocalBus{registry: registry}
}

func (b *LocalBus) Publish(_ context.Context, event RoomEvent) error {
	b.registry.Broadcast(event.ConversationId, event.Frame, event.ExcludeConnectionId)

	return nil
}

func (b *LocalBus) Run(ctx context.Context) error {
	<-ctx.Done()

	return nil
}

func (b *LocalBus) Close() error {
	return nil
}
