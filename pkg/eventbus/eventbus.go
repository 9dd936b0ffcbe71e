package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/model"
)

type Event struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// ActionStatusEvent is the live status payload published after every
// transition of a scheduled action.
type ActionStatusEvent struct {
	ActionID       string `json:"action_id"`
	OrganizationID string `json:"organization_id"`
	ActionType     string `json:"action_type"`
	Status         string `json:"status"`
	RetryCount     int    `json:"retry_count"`
	CompletedSteps int    `json:"completed_steps"`
	TotalSteps     int    `json:"total_steps"`
	ScheduledFor   string `json:"scheduled_for"`
	Message        string `json:"message,omitempty"`
}

const (
	ChannelAction = "helios:events:action"

	EventActionStatus = "action.status"
)

type Bus struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewBus(client redis.UniversalClient) *Bus {
	return &Bus{client: client, now: time.Now}
}

func (b *Bus) NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      eventType,
		Timestamp: b.now().Unix(),
		Data:      data,
	}, nil
}

func (b *Bus) Publish(ctx context.Context, channel string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *Bus) Subscribe(ctx context.Context, channels ...string) <-chan *Event {
	sub := b.client.Subscribe(ctx, channels...)
	ch := make(chan *Event, 100)

	go func() {
		defer close(ch)
		for msg := range sub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case ch <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	return ch
}

// ActionNotifier publishes action status changes on ChannelAction. Publish
// failures are logged and dropped.
type ActionNotifier struct {
	bus     *Bus
	logger  *zap.Logger
	timeout time.Duration
}

func NewActionNotifier(bus *Bus, logger *zap.Logger) *ActionNotifier {
	return &ActionNotifier{bus: bus, logger: logger, timeout: 2 * time.Second}
}

func (n *ActionNotifier) ActionChanged(ctx context.Context, action *model.ScheduledAction) {
	if action == nil {
		return
	}

	event, err := n.bus.NewEvent(EventActionStatus, ActionStatusEvent{
		ActionID:       action.ID.String(),
		OrganizationID: action.OrganizationID.String(),
		ActionType:     string(action.ActionType),
		Status:         string(action.Status),
		RetryCount:     action.RetryCount,
		CompletedSteps: action.CompletedSteps,
		TotalSteps:     action.TotalSteps,
		ScheduledFor:   action.ScheduledFor.UTC().Format(time.RFC3339),
		Message:        action.LastError,
	})
	if err != nil {
		n.logger.Warn("Failed to encode action event", zap.Error(err))
		return
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	if err := n.bus.Publish(publishCtx, ChannelAction, event); err != nil {
		n.logger.Warn("Failed to publish action event",
			zap.String("action_id", action.ID.String()),
			zap.Error(err))
	}
}
