package notification

import (
	"context"
	"encoding/json"
	"sync"

	notificationv1 "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/domain/notification/v1"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/errors"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
)

// Publisher forwards fill events to an external stream.
type Publisher interface {
	PublishFillEvent(ctx context.Context, event *notificationv1.FillEvent) error
}

// Dispatcher fans fill events out to the owning user's registered channels.
// Events are targeted: only channels registered for the event's user receive
// it. Delivery is fire-and-forget; a failed send is logged and dropped, it
// never blocks or unwinds the settlement that produced the event.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]map[notificationv1.Channel]struct{}

	publisher Publisher // optional external stream
	logger    logger.Interface
}

// NewDispatcher creates a dispatcher. publisher may be nil.
func NewDispatcher(publisher Publisher, logger logger.Interface) *Dispatcher {
	return &Dispatcher{
		channels:  make(map[string]map[notificationv1.Channel]struct{}),
		publisher: publisher,
		logger:    logger,
	}
}

// Register subscribes a channel to the user's fill events.
func (d *Dispatcher) Register(userID string, ch notificationv1.Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.channels[userID]
	if !ok {
		set = make(map[notificationv1.Channel]struct{})
		d.channels[userID] = set
	}
	set[ch] = struct{}{}
}

// Unregister removes a channel. Unknown channels are ignored.
func (d *Dispatcher) Unregister(userID string, ch notificationv1.Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.channels[userID]
	if !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(d.channels, userID)
	}
}

// Subscribers returns the number of channels registered for the user.
func (d *Dispatcher) Subscribers(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.channels[userID])
}

// PublishFill delivers the event to the user's channels and, when a
// publisher is configured, to the external stream. Always returns nil for
// channel failures; only a marshal failure is reported.
func (d *Dispatcher) PublishFill(ctx context.Context, event *notificationv1.FillEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.TracerFromError(err)
	}

	d.mu.RLock()
	targets := make([]notificationv1.Channel, 0, len(d.channels[event.UserID]))
	for ch := range d.channels[event.UserID] {
		targets = append(targets, ch)
	}
	d.mu.RUnlock()

	for _, ch := range targets {
		if err := ch.Send(payload); err != nil {
			d.logger.WarnContext(ctx, "dropping fill notification",
				logger.Field{Key: "userID", Value: event.UserID},
				logger.Field{Key: "orderID", Value: event.OrderID},
				logger.Field{Key: "error", Value: err.Error()},
			)
		}
	}

	if d.publisher != nil {
		if err := d.publisher.PublishFillEvent(ctx, event); err != nil {
			d.logger.ErrorContext(ctx, err,
				logger.Field{Key: "action", Value: "publish_fill_event"},
				logger.Field{Key: "orderID", Value: event.OrderID},
			)
		}
	}

	return nil
}
