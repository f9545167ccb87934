package mover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/udhos/queuemover/metrics"
	"github.com/udhos/queuemover/queue"
)

// Status is the result of one relocation.
type Status int

const (
	// Moved means the message was sent to destination and deleted from source.
	Moved Status = iota
	// SendFailed means destination was not written and source is untouched.
	SendFailed
	// DeleteFailed means destination was written but the source message
	// remains and will be redelivered, producing a duplicate on the next move.
	DeleteFailed
)

func (s Status) String() string {
	switch s {
	case Moved:
		return "moved"
	case SendFailed:
		return "send-failed"
	case DeleteFailed:
		return "delete-failed"
	}
	return "unknown"
}

// MarshalText renders the status name in json and yaml reports.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for _, candidate := range []Status{Moved, SendFailed, DeleteFailed} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("mover: unknown status: %q", text)
}

// Outcome is the per-message result of a relocation.
type Outcome struct {
	MessageID            string
	Status               Status
	DestinationMessageID string // set when the send was acknowledged
	DestinationWritten   bool
	FirstItem            string // extracted first item, for audit only
	Err                  error
}

// Moved reports whether the message left source and reached destination.
func (o Outcome) Moved() bool {
	return o.Status == Moved
}

// ErrorCode returns the queue API error code of a failed relocation.
func (o Outcome) ErrorCode() string {
	if o.Err == nil {
		return ""
	}
	return queue.ErrorCode(o.Err)
}

// Recorder receives relocation metrics.
type Recorder interface {
	RecordOutcome(outcome string)
	RecordQueueCall(operation, status string, elapsed time.Duration)
	RecordCycle(received int, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordOutcome(string) {}

func (noopRecorder) RecordQueueCall(string, string, time.Duration) {}

func (noopRecorder) RecordCycle(int, time.Duration) {}

// RelocatorOptions define relocator collaborators. Only Client is required.
type RelocatorOptions struct {
	Client  queue.Client
	Logger  *zap.Logger
	Tracer  trace.Tracer
	Metrics Recorder
}

// Relocator moves one message from source to destination:
// send to destination first, delete from source only after the send
// was acknowledged. It makes at most one attempt of each call.
type Relocator struct {
	client  queue.Client
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics Recorder
}

// ErrMissingClient is returned when no queue client is provided.
var ErrMissingClient = errors.New("mover: missing queue client")

// NewRelocator creates a relocator.
func NewRelocator(options RelocatorOptions) (*Relocator, error) {
	if options.Client == nil {
		return nil, ErrMissingClient
	}
	r := &Relocator{
		client:  options.Client,
		logger:  options.Logger,
		tracer:  options.Tracer,
		metrics: options.Metrics,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.metrics == nil {
		r.metrics = noopRecorder{}
	}
	return r, nil
}

// Move relocates message from source to destination.
func (r *Relocator) Move(ctx context.Context, source, destination string, message queue.Message) Outcome {
	const me = "Relocator.Move"

	ctx, span := startSpan(ctx, r.tracer, me, attribute.String("message_id", message.ID))
	if span != nil {
		defer span.End()
	}

	outcome := Outcome{MessageID: message.ID}

	//
	// 1. send to destination
	//

	begin := time.Now()
	destID, errSend := r.client.Send(ctx, destination, message.Body, message.Attributes)
	r.metrics.RecordQueueCall("send", callStatus(errSend), time.Since(begin))
	if errSend != nil {
		outcome.Status = SendFailed
		outcome.Err = errSend
		spanFail(span, "send failed", errSend)
		r.record(outcome)
		return outcome
	}

	outcome.DestinationMessageID = destID
	outcome.DestinationWritten = true

	//
	// 2. delete from source, only after acknowledged send
	//

	begin = time.Now()
	errDelete := r.client.Delete(ctx, source, message.ReceiptHandle)
	r.metrics.RecordQueueCall("delete", callStatus(errDelete), time.Since(begin))
	if errDelete != nil {
		outcome.Status = DeleteFailed
		outcome.Err = errDelete
		spanFail(span, "delete failed", errDelete)
		r.logger.Warn("possible duplicate: message written to destination but still present in source",
			zap.String("message_id", message.ID),
			zap.String("destination_message_id", destID),
			zap.String("error_code", queue.ErrorCode(errDelete)),
			zap.Error(errDelete))
		r.record(outcome)
		return outcome
	}

	outcome.Status = Moved
	r.record(outcome)
	return outcome
}

func (r *Relocator) record(o Outcome) {
	r.metrics.RecordOutcome(o.Status.String())
}

func callStatus(err error) string {
	if err != nil {
		return metrics.StatusError
	}
	return metrics.StatusOK
}
