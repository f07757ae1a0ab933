package notify

import "errors"

var (
	// ErrQueueClosed is returned by enqueue calls after Close.
	ErrQueueClosed = errors.New("notify: queue closed")

	// ErrPublishFailed wraps a publisher's delivery failure.
	ErrPublishFailed = errors.New("notify: publish failed")
)
