package mailer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/pkg/jobs"
)

const jobTypeMail = "mail"

// Dispatcher delivers mail asynchronously through a job queue so request handlers never block on the provider.
type Dispatcher struct {
	mailer Mailer
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewDispatcher wires a mail queue around mailer.
func NewDispatcher(mailer Mailer, retries int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{mailer: mailer, logger: logger}
	d.queue = jobs.NewQueue("mail", d.handle, jobs.QueueConfig{
		Workers:    2,
		MaxRetries: retries,
		Logger:     logger,
	})
	return d
}

// Start launches the mail workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the workers.
func (d *Dispatcher) Stop() {
	d.queue.Stop()
}

// Dispatch enqueues a message for delivery.
func (d *Dispatcher) Dispatch(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return d.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobTypeMail, Payload: msg})
}

func (d *Dispatcher) handle(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(Message)
	if !ok {
		d.logger.Error("invalid mail payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("deliver %s: %w", job.ID, err)
	}
	return nil
}
