package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-sendgate/core"
)

// Worker consumes queue deliveries and dispatches them through the handler
// registry. It serves deployments that feed jobs through a broker instead of
// the relational claim loop; scheduler and worker share the registry so a
// job type behaves the same on either path.
type Worker struct {
	Dequeuer     core.JobDequeuer
	Registry     *Registry
	Logger       core.Logger
	RetryBackoff time.Duration
}

func NewWorker(dequeuer core.JobDequeuer, registry *Registry) *Worker {
	return &Worker{
		Dequeuer:     dequeuer,
		Registry:     registry,
		RetryBackoff: defaultRetryBackoff,
	}
}

// Run consumes deliveries until the context is cancelled. Dequeue errors are
// logged and never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.ready(); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.RunOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.logger().Error("worker dequeue failed", "error", err)
		}
	}
}

// RunOnce waits for one delivery and settles it.
func (w *Worker) RunOnce(ctx context.Context) error {
	if err := w.ready(); err != nil {
		return err
	}
	delivery, err := w.Dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	return w.settle(ctx, delivery)
}

// settle runs the delivered job and acks or nacks the delivery. Handler
// failures requeue with the worker backoff; deliveries no handler can serve
// go to the dead letter.
func (w *Worker) settle(ctx context.Context, delivery core.JobDelivery) error {
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, core.JobNackOptions{
			DeadLetter: true,
			Reason:     "empty delivery",
		})
	}

	jobType := core.JobType(strings.TrimSpace(msg.JobType))
	handler, ok := w.Registry.Lookup(jobType)
	if !ok {
		reason := fmt.Sprintf("no handler registered for job type %q", string(jobType))
		w.logger().Error("delivery dead-lettered", "job_id", msg.JobID, "reason", reason)
		return delivery.Nack(ctx, core.JobNackOptions{
			DeadLetter: true,
			Reason:     reason,
		})
	}

	execErr := func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("jobs: handler panic: %v", recovered)
			}
		}()
		return handler.Execute(ctx, deliveredJob(msg))
	}()
	if execErr == nil {
		return delivery.Ack(ctx)
	}

	backoff := w.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	w.logger().Warn("delivery requeued",
		"job_id", msg.JobID,
		"type", string(jobType),
		"error", execErr,
	)
	return delivery.Nack(ctx, core.JobNackOptions{
		Delay:   backoff,
		Requeue: true,
		Reason:  execErr.Error(),
	})
}

// deliveredJob rebuilds the row shape handlers expect from the wire form.
func deliveredJob(msg *core.JobExecutionMessage) core.Job {
	return core.Job{
		ID:      strings.TrimSpace(msg.JobID),
		Type:    core.JobType(strings.TrimSpace(msg.JobType)),
		Payload: msg.Parameters,
		Status:  core.JobStatusRunning,
	}
}

func (w *Worker) ready() error {
	if w == nil {
		return fmt.Errorf("jobs: worker is not configured")
	}
	if w.Dequeuer == nil {
		return fmt.Errorf("jobs: worker dequeuer is not configured")
	}
	if w.Registry == nil {
		return fmt.Errorf("jobs: handler registry is not configured")
	}
	return nil
}

func (w *Worker) logger() core.Logger {
	if w != nil && w.Logger != nil {
		return w.Logger
	}
	return glog.Nop()
}
