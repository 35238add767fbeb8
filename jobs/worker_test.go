package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-sendgate/core"
)

type stubDelivery struct {
	msg    *core.JobExecutionMessage
	acked  bool
	nacked bool
	nack   core.JobNackOptions
}

func (d *stubDelivery) Message() *core.JobExecutionMessage { return d.msg }

func (d *stubDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *stubDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	d.nacked = true
	d.nack = opts
	return nil
}

type stubDequeuer struct {
	delivery *stubDelivery
}

func (q *stubDequeuer) Dequeue(context.Context) (core.JobDelivery, error) {
	return q.delivery, nil
}

func newTestWorker(t *testing.T, delivery *stubDelivery, handlers ...Handler) *Worker {
	t.Helper()
	registry, err := NewRegistry(handlers...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return NewWorker(&stubDequeuer{delivery: delivery}, registry)
}

func TestWorkerAcksSuccessfulDelivery(t *testing.T) {
	handler := &scriptedHandler{jobType: core.JobTypeUsageSync}
	delivery := &stubDelivery{msg: &core.JobExecutionMessage{
		JobID:   "job-1",
		JobType: string(core.JobTypeUsageSync),
	}}
	worker := newTestWorker(t, delivery, handler)

	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if handler.calls != 1 {
		t.Fatalf("expected one execution, got %d", handler.calls)
	}
	if !delivery.acked {
		t.Fatalf("expected successful delivery to ack")
	}
	if delivery.nacked {
		t.Fatalf("successful delivery must not nack")
	}
}

func TestWorkerRequeuesFailedDelivery(t *testing.T) {
	handler := &scriptedHandler{jobType: core.JobTypeUsageSync, failures: 100}
	delivery := &stubDelivery{msg: &core.JobExecutionMessage{
		JobID:   "job-1",
		JobType: string(core.JobTypeUsageSync),
	}}
	worker := newTestWorker(t, delivery, handler)
	worker.RetryBackoff = 5 * time.Second

	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if delivery.acked {
		t.Fatalf("failed delivery must not ack")
	}
	if !delivery.nacked {
		t.Fatalf("expected failed delivery to nack")
	}
	if !delivery.nack.Requeue || delivery.nack.DeadLetter {
		t.Fatalf("expected requeue nack, got %+v", delivery.nack)
	}
	if delivery.nack.Delay != 5*time.Second {
		t.Fatalf("expected worker backoff delay, got %s", delivery.nack.Delay)
	}
	if delivery.nack.Reason == "" {
		t.Fatalf("expected failure reason on nack")
	}
}

func TestWorkerDeadLettersUnknownType(t *testing.T) {
	handler := &scriptedHandler{jobType: core.JobTypeUsageSync}
	delivery := &stubDelivery{msg: &core.JobExecutionMessage{
		JobID:   "job-1",
		JobType: string(core.JobTypeKeySweep),
	}}
	worker := newTestWorker(t, delivery, handler)

	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if handler.calls != 0 {
		t.Fatalf("unhandled type must not execute, got %d calls", handler.calls)
	}
	if !delivery.nacked || !delivery.nack.DeadLetter {
		t.Fatalf("expected dead-letter nack, got %+v", delivery.nack)
	}
}

func TestWorkerDeadLettersEmptyDelivery(t *testing.T) {
	delivery := &stubDelivery{}
	worker := newTestWorker(t, delivery, &scriptedHandler{jobType: core.JobTypeUsageSync})

	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !delivery.nacked || !delivery.nack.DeadLetter {
		t.Fatalf("expected dead-letter nack, got %+v", delivery.nack)
	}
}

func TestWorkerPanicBecomesRequeue(t *testing.T) {
	delivery := &stubDelivery{msg: &core.JobExecutionMessage{
		JobID:   "job-1",
		JobType: string(core.JobTypeUsageSync),
	}}
	worker := newTestWorker(t, delivery, &panicHandler{jobType: core.JobTypeUsageSync})

	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once must survive a handler panic: %v", err)
	}
	if !delivery.nacked || !delivery.nack.Requeue {
		t.Fatalf("expected panic to requeue, got %+v", delivery.nack)
	}
}
