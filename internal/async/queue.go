package async

import (
	"context"
	"errors"
	"time"
)

// Job is one drawing waiting to be quoted.
type Job struct {
	Path        string
	Overrides   map[string]string
	SubmittedAt time.Time
	TraceID     string
}

// Handler processes one job. Its error is logged and reported, never retried.
type Handler func(ctx context.Context, job Job) error

var ErrQueueClosed = errors.New("queue is shutting down")

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
