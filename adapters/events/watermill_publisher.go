package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/ipforge/walletauth/core"
	"github.com/ipforge/walletauth/ports"
)

// SessionTopic carries session state transition events.
const SessionTopic = "walletauth.session"

// TransitionEvent is the payload published for every session state change.
type TransitionEvent struct {
	Address string    `json:"address"`
	State   string    `json:"state"`
	At      time.Time `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     SessionTopic,
	}
}

// PublishTransition publishes a session transition event.
func (p *WatermillPublisher) PublishTransition(ctx context.Context, address string, state core.State) error {
	event := TransitionEvent{
		Address: address,
		State:   string(state),
		At:      time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
