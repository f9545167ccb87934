// Package queue defines the queue client used by the mover and its backends.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// Client is the queue boundary: at-least-once receive with visibility
// timeout, send, and receipt-based delete.
type Client interface {
	// Receive long-polls queueID for up to waitSeconds and returns at most
	// maxMessages messages.
	Receive(ctx context.Context, queueID string, maxMessages, waitSeconds int) ([]Message, error)

	// Send writes body and attributes to queueID and returns the new message id.
	Send(ctx context.Context, queueID, body string, attributes map[string]AttributeValue) (string, error)

	// Delete removes a received message. Deleting an already deleted
	// message is a no-op, a stale receipt handle is an error.
	Delete(ctx context.Context, queueID, receiptHandle string) error
}

// Message is one received message envelope.
type Message struct {
	ID            string                    `json:"id"                   yaml:"id"`
	Body          string                    `json:"body"                 yaml:"body"`
	Attributes    map[string]AttributeValue `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	ReceiptHandle string                    `json:"-"                    yaml:"-"`
}

// AttributeValue is a message attribute, forwarded unmodified.
type AttributeValue struct {
	DataType         string   `json:"data_type"                    yaml:"data_type"`
	StringValue      *string  `json:"string_value,omitempty"       yaml:"string_value,omitempty"`
	BinaryValue      []byte   `json:"binary_value,omitempty"       yaml:"binary_value,omitempty"`
	StringListValues []string `json:"string_list_values,omitempty" yaml:"string_list_values,omitempty"`
	BinaryListValues [][]byte `json:"binary_list_values,omitempty" yaml:"binary_list_values,omitempty"`
}

// Limits imposed by SQS on a single receive call.
const (
	MaxMessagesLimit = 10
	WaitSecondsLimit = 20
)

// ClampMaxMessages forces maxMessages into 1..MaxMessagesLimit.
func ClampMaxMessages(maxMessages int) int {
	return min(max(maxMessages, 1), MaxMessagesLimit)
}

// ClampWaitSeconds forces waitSeconds into 0..WaitSecondsLimit.
func ClampWaitSeconds(waitSeconds int) int {
	return min(max(waitSeconds, 0), WaitSecondsLimit)
}

// TransientError is a failed queue call. Recovery is left to redelivery.
type TransientError struct {
	Op    string // receive, send, delete
	Queue string
	Code  string // API error code, when the backend provides one
	Err   error
}

func (e *TransientError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("queue %s %s: %s: %v", e.Op, e.Queue, e.Code, e.Err)
	}
	return fmt.Sprintf("queue %s %s: %v", e.Op, e.Queue, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func newTransientError(op, queueID string, err error) *TransientError {
	return &TransientError{Op: op, Queue: queueID, Code: apiErrorCode(err), Err: err}
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// ErrorCode returns the API error code carried by err, if any.
func ErrorCode(err error) string {
	var te *TransientError
	if errors.As(err, &te) {
		return te.Code
	}
	return apiErrorCode(err)
}

// ErrStaleReceipt is returned by Delete for a receipt handle that is no
// longer valid (visibility expired or message received again).
var ErrStaleReceipt = errors.New("stale receipt handle")

// GetRegion extracts the region from an SQS queue URL:
// https://sqs.us-east-1.amazonaws.com/123456789012/myqueue
func GetRegion(queueURL string) (string, error) {
	fields := strings.SplitN(queueURL, ".", 3)
	if len(fields) < 3 || fields[1] == "" {
		return "", fmt.Errorf("queue region: bad queue url=[%s]", queueURL)
	}
	return fields[1], nil
}
