package notificationv1

import "context"

//go:generate mockgen -source=interface.go -destination=mock/interface_mock.go -package=mock

// Dispatcher delivers fill events to a user's registered channels.
type Dispatcher interface {
	PublishFill(ctx context.Context, event *FillEvent) error
}

// Channel is one connected client delivery target. Send must not block
// indefinitely; a slow consumer is the transport's problem, not the
// settlement path's.
type Channel interface {
	Send(payload []byte) error
}
