package analytics

import (
	"context"
	"errors"
)

var (
	// ErrSinkWrite wraps every failed batch write. The batch stays buffered for retry.
	ErrSinkWrite = errors.New("analytics sink write failed")

	ErrUnknownEventType = errors.New("unknown analytics event type")

	ErrClosed = errors.New("analytics client is shut down")
)

// Analytics buffers events in memory and forwards them to a Sink in batches.
type Analytics interface {
	// Track records one event and returns immediately.
	// Page views also trigger an out-of-band flush.
	Track(ctx context.Context, data EventData)

	TrackPageView(ctx context.Context, path, title string)
	TrackUserInteraction(ctx context.Context, action, element string, details map[string]string)
	TrackFormSubmission(ctx context.Context, formType string, success bool)
	TrackError(ctx context.Context, err error, where string)

	// Flush writes every buffered event in one batch.
	// A failed batch is put back in front of the buffer.
	Flush(ctx context.Context) error

	// Start resolves the session id and starts the periodic flush.
	Start(ctx context.Context) error

	// Shutdown stops the periodic flush and performs one final flush.
	Shutdown(ctx context.Context) error

	// Pending returns a copy of the buffered events in delivery order.
	Pending() []Event
	Len() int
	SessionID() string
}

// Sink is the remote insert-only destination of event batches.
type Sink interface {
	Name() string
	Write(ctx context.Context, events []Event) error
}
