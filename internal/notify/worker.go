package notify

import (
	"context"
	"time"
)

// Job is one delivery handed off the request path. Result receives the
// delivered verdict exactly once; callers that do not care may leave it nil.
type Job struct {
	To            string
	TokenID       string
	AppointmentAt time.Time
	Result        chan<- bool
}

// Worker consumes delivery jobs from a channel and runs the dispatcher on
// them. It keeps transport I/O off the request handlers: a slow or down mail
// relay delays only its own job's verdict, never the accept loop, and each
// job's retry sequence is independent.
type Worker struct {
	dispatcher *Dispatcher
	inbox      <-chan Job
}

func NewWorker(dispatcher *Dispatcher, inbox <-chan Job) *Worker {
	return &Worker{dispatcher: dispatcher, inbox: inbox}
}

// Run processes jobs until ctx is canceled. Each delivery runs in its own
// goroutine so one backoff sequence does not serialize the others.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-w.inbox:
			go w.handle(ctx, job)
		}
	}
}

func (w *Worker) handle(ctx context.Context, job Job) {
	delivered := w.dispatcher.Deliver(ctx, job.To, job.TokenID, job.AppointmentAt)
	if job.Result != nil {
		select {
		case job.Result <- delivered:
		case <-ctx.Done():
		}
	}
}
