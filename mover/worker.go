// Package mover relocates messages from a to-do queue into a completed queue.
//
// The relocation protocol is send-then-delete: a message is deleted from the
// source queue only after the destination queue acknowledged the send. This
// never loses a message. A failed delete after a successful send leaves the
// message in the source queue, so its next relocation writes a duplicate into
// the destination queue. Outcomes report this case as DeleteFailed.
package mover

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/udhos/queuemover/extract"
	"github.com/udhos/queuemover/queue"
)

// WorkerOptions define the worker. Client, Source and Destination are required.
type WorkerOptions struct {
	Client      queue.Client
	Source      string // to-do queue
	Destination string // completed queue
	Concurrency int    // parallel relocations per batch, defaults to 1
	Logger      *zap.Logger
	Tracer      trace.Tracer
	Metrics     Recorder
}

// Worker runs receive-extract-relocate cycles. It keeps no state across
// cycles, so RunCycle may be called once or repeatedly.
type Worker struct {
	options   WorkerOptions
	relocator *Relocator
}

var (
	// ErrMissingQueue is returned when source or destination is empty.
	ErrMissingQueue = errors.New("mover: missing source or destination queue")
	// ErrSameQueue is returned when source and destination are the same queue.
	ErrSameQueue = errors.New("mover: source and destination are the same queue")
)

// NewWorker creates a worker.
func NewWorker(options WorkerOptions) (*Worker, error) {
	if options.Source == "" || options.Destination == "" {
		return nil, ErrMissingQueue
	}
	if options.Source == options.Destination {
		return nil, ErrSameQueue
	}
	if options.Concurrency < 1 {
		options.Concurrency = 1
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	if options.Metrics == nil {
		options.Metrics = noopRecorder{}
	}

	relocator, err := NewRelocator(RelocatorOptions{
		Client:  options.Client,
		Logger:  options.Logger,
		Tracer:  options.Tracer,
		Metrics: options.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Worker{options: options, relocator: relocator}, nil
}

// RunCycle receives one batch from source and relocates every message.
// maxMessages is clamped to 1..10, waitSeconds to 0..20.
// Failures are reported per message and never abort the batch.
func (w *Worker) RunCycle(ctx context.Context, maxMessages, waitSeconds int) (report BatchReport) {
	const me = "Worker.RunCycle"

	begin := time.Now()

	ctx, span := startSpan(ctx, w.options.Tracer, me)
	if span != nil {
		defer span.End()
	}

	report = BatchReport{
		CycleID:     ksuid.New().String(),
		Source:      w.options.Source,
		Destination: w.options.Destination,
		MaxMessages: queue.ClampMaxMessages(maxMessages),
		WaitSeconds: queue.ClampWaitSeconds(waitSeconds),
	}

	logger := w.options.Logger.With(
		zap.String("cycle_id", report.CycleID),
		zap.String("trace_id", spanTraceID(span)),
	)

	defer func() {
		report.Elapsed = time.Since(begin)
		w.options.Metrics.RecordCycle(report.Received, report.Elapsed)
	}()

	beginRecv := time.Now()
	messages, errRecv := w.options.Client.Receive(ctx, report.Source, report.MaxMessages, report.WaitSeconds)
	w.options.Metrics.RecordQueueCall("receive", callStatus(errRecv), time.Since(beginRecv))
	if errRecv != nil {
		report.ReceiveError = errRecv
		spanFail(span, "receive failed", errRecv)
		logger.Error("receive failed",
			zap.String("source", report.Source),
			zap.String("error_code", queue.ErrorCode(errRecv)),
			zap.Error(errRecv))
		return report
	}

	report.Received = len(messages)

	if span != nil {
		span.SetAttributes(attribute.Int("received", report.Received))
	}

	if len(messages) == 0 {
		logger.Debug("no messages", zap.String("source", report.Source))
		return report
	}

	report.Outcomes = make([]Outcome, len(messages))

	var g errgroup.Group
	g.SetLimit(w.options.Concurrency)

	for i, m := range messages {
		i, m := i, m // per-iteration copies (go directive < 1.22)
		g.Go(func() error {
			report.Outcomes[i] = w.process(ctx, logger, i, len(messages), m)
			return nil // one message failure must not cancel its siblings
		})
	}

	_ = g.Wait()

	logger.Info("cycle done",
		zap.Int("received", report.Received),
		zap.Int("moved", report.Count(Moved)),
		zap.Int("send_failed", report.Count(SendFailed)),
		zap.Int("delete_failed", report.Count(DeleteFailed)),
		zap.Duration("elapsed", time.Since(begin)))

	return report
}

func (w *Worker) process(ctx context.Context, logger *zap.Logger, i, count int, m queue.Message) Outcome {
	item := extract.Extract(m.Body)

	logger.Debug("processing message",
		zap.Int("index", i+1),
		zap.Int("count", count),
		zap.String("message_id", m.ID),
		zap.Bool("first_item_found", item.Found),
		zap.Stringer("first_item", item))

	outcome := w.relocator.Move(ctx, w.options.Source, w.options.Destination, m)
	outcome.FirstItem = item.String()

	fields := []zap.Field{
		zap.String("message_id", m.ID),
		zap.String("outcome", outcome.Status.String()),
		zap.String("destination_message_id", outcome.DestinationMessageID),
		zap.Bool("destination_written", outcome.DestinationWritten),
		zap.String("first_item", outcome.FirstItem),
	}

	if outcome.Err != nil {
		fields = append(fields,
			zap.String("error_code", outcome.ErrorCode()),
			zap.Error(outcome.Err))
		logger.Error("message not moved", fields...)
		return outcome
	}

	logger.Info("message moved", fields...)

	return outcome
}
