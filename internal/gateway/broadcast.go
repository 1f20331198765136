package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/draftworks/agentsmith/internal/bus"
)

// EventStream supplies thread events. The Redis event bus satisfies this.
type EventStream interface {
	Subscribe(ctx context.Context, threadID string) <-chan *bus.ThreadEvent
}

// Broadcaster relays thread lifecycle events to the platform channel bound
// to that thread, so users following along on Slack or Discord see builder
// progress without polling.
type Broadcaster struct {
	manager *Manager
	events  EventStream
	logger  *zap.Logger
}

// NewBroadcaster creates a broadcaster.
func NewBroadcaster(manager *Manager, events EventStream, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{manager: manager, events: events, logger: logger}
}

// Follow streams a thread's events to one platform channel until ctx is
// cancelled. Run it in a goroutine per binding.
func (b *Broadcaster) Follow(ctx context.Context, threadID, platform, channelID string) {
	for ev := range b.events.Subscribe(ctx, threadID) {
		text := renderEvent(ev)
		if text == "" {
			continue
		}
		if err := b.manager.Send(ctx, &OutboundMessage{
			Platform:  platform,
			ChannelID: channelID,
			Content:   text,
		}); err != nil {
			b.logger.Warn("broadcast send failed",
				zap.String("thread", threadID),
				zap.String("platform", platform),
				zap.Error(err))
		}
	}
}

// renderEvent maps an event to user-facing text. Chat replies are delivered
// by the caller already, so turn_completed stays silent here.
func renderEvent(ev *bus.ThreadEvent) string {
	switch ev.Event {
	case bus.EventAgentBuilt:
		if name, ok := ev.Payload["name"].(string); ok {
			return fmt.Sprintf("Agent %q has been built and is ready to chat.", name)
		}
		return "The agent has been built and is ready to chat."
	case bus.EventInterrupt:
		if q, ok := ev.Payload["confirm_message"].(string); ok {
			return q
		}
		return ""
	default:
		return ""
	}
}
