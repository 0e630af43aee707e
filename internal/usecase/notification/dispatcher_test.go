package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	notificationv1 "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/domain/notification/v1"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/order"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/errors"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.WithLoggingLevel(logger.ErrorLevel))
	require.NoError(t, err)
	return log
}

type fakeChannel struct {
	payloads [][]byte
	sendErr  error
}

func (f *fakeChannel) Send(payload []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

type recordingPublisher struct {
	events []*notificationv1.FillEvent
}

func (r *recordingPublisher) PublishFillEvent(ctx context.Context, event *notificationv1.FillEvent) error {
	r.events = append(r.events, event)
	return nil
}

func fillEvent(userID string) *notificationv1.FillEvent {
	return &notificationv1.FillEvent{
		UserID:            userID,
		OrderID:           "ord-1",
		Market:            "KRW-BTC",
		Side:              order.SideBid,
		ExecutionPrice:    100,
		ExecutedQuantity:  1,
		RemainingQuantity: 2,
		TotalAmount:       100,
		Status:            order.StatusPartial,
		ExecutionTime:     time.Now().UTC(),
	}
}

func TestDispatcher_DeliversOnlyToOwningUser(t *testing.T) {
	d := NewDispatcher(nil, newTestLogger(t))

	owner := &fakeChannel{}
	other := &fakeChannel{}
	d.Register("user-1", owner)
	d.Register("user-2", other)

	require.NoError(t, d.PublishFill(context.Background(), fillEvent("user-1")))

	require.Len(t, owner.payloads, 1)
	assert.Empty(t, other.payloads)

	var decoded notificationv1.FillEvent
	require.NoError(t, json.Unmarshal(owner.payloads[0], &decoded))
	assert.Equal(t, "user-1", decoded.UserID)
	assert.Equal(t, "ord-1", decoded.OrderID)
}

func TestDispatcher_FansOutToAllUserChannels(t *testing.T) {
	d := NewDispatcher(nil, newTestLogger(t))

	first := &fakeChannel{}
	second := &fakeChannel{}
	d.Register("user-1", first)
	d.Register("user-1", second)

	require.NoError(t, d.PublishFill(context.Background(), fillEvent("user-1")))

	assert.Len(t, first.payloads, 1)
	assert.Len(t, second.payloads, 1)
}

func TestDispatcher_NoSubscribersIsFine(t *testing.T) {
	d := NewDispatcher(nil, newTestLogger(t))

	assert.NoError(t, d.PublishFill(context.Background(), fillEvent("user-1")))
}

func TestDispatcher_FailedSendIsDroppedNotReturned(t *testing.T) {
	d := NewDispatcher(nil, newTestLogger(t))

	broken := &fakeChannel{sendErr: errors.NewTracer("ws send buffer full")}
	healthy := &fakeChannel{}
	d.Register("user-1", broken)
	d.Register("user-1", healthy)

	// A dead channel never surfaces as a settlement error.
	require.NoError(t, d.PublishFill(context.Background(), fillEvent("user-1")))
	assert.Len(t, healthy.payloads, 1)
}

func TestDispatcher_UnregisterStopsDelivery(t *testing.T) {
	d := NewDispatcher(nil, newTestLogger(t))

	ch := &fakeChannel{}
	d.Register("user-1", ch)
	require.Equal(t, 1, d.Subscribers("user-1"))

	d.Unregister("user-1", ch)
	assert.Equal(t, 0, d.Subscribers("user-1"))

	require.NoError(t, d.PublishFill(context.Background(), fillEvent("user-1")))
	assert.Empty(t, ch.payloads)
}

func TestDispatcher_ForwardsToPublisher(t *testing.T) {
	publisher := &recordingPublisher{}
	d := NewDispatcher(publisher, newTestLogger(t))

	event := fillEvent("user-1")
	require.NoError(t, d.PublishFill(context.Background(), event))

	require.Len(t, publisher.events, 1)
	assert.Same(t, event, publisher.events[0])
}
