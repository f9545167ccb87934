package queue

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of *sqs.Client used by SQS.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQS implements Client on top of AWS SQS. Queue ids are queue URLs.
type SQS struct {
	api SQSAPI
}

// NewSQS creates a Client from an sqs api.
func NewSQS(api SQSAPI) *SQS {
	return &SQS{api: api}
}

// NewSQSFromConfig creates a Client from aws config.
func NewSQSFromConfig(cfg aws.Config) *SQS {
	return NewSQS(sqs.NewFromConfig(cfg))
}

// Receive implements Client.
func (q *SQS) Receive(ctx context.Context, queueID string, maxMessages, waitSeconds int) ([]Message, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(queueID),
		MaxNumberOfMessages:   int32(ClampMaxMessages(maxMessages)),
		WaitTimeSeconds:       int32(ClampWaitSeconds(waitSeconds)),
		MessageAttributeNames: []string{"All"},
	}

	resp, errRecv := q.api.ReceiveMessage(ctx, input)
	if errRecv != nil {
		return nil, newTransientError("receive", queueID, errRecv)
	}

	list := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		list = append(list, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			Attributes:    fromSQSAttributes(m.MessageAttributes),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}

	return list, nil
}

// Send implements Client.
func (q *SQS) Send(ctx context.Context, queueID, body string, attributes map[string]AttributeValue) (string, error) {
	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueID),
		MessageBody:       aws.String(body),
		MessageAttributes: toSQSAttributes(attributes),
	}

	resp, errSend := q.api.SendMessage(ctx, input)
	if errSend != nil {
		return "", newTransientError("send", queueID, errSend)
	}

	id := aws.ToString(resp.MessageId)
	if id == "" {
		return "", newTransientError("send", queueID, errors.New("missing message id in send response"))
	}

	return id, nil
}

// Delete implements Client.
func (q *SQS) Delete(ctx context.Context, queueID, receiptHandle string) error {
	input := &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueID),
		ReceiptHandle: aws.String(receiptHandle),
	}

	_, errDelete := q.api.DeleteMessage(ctx, input)
	if errDelete != nil {
		return newTransientError("delete", queueID, errDelete)
	}

	return nil
}

func fromSQSAttributes(attrs map[string]types.MessageAttributeValue) map[string]AttributeValue {
	if len(attrs) == 0 {
		return nil
	}
	result := make(map[string]AttributeValue, len(attrs))
	for k, v := range attrs {
		result[k] = AttributeValue{
			DataType:         aws.ToString(v.DataType),
			StringValue:      v.StringValue,
			BinaryValue:      v.BinaryValue,
			StringListValues: v.StringListValues,
			BinaryListValues: v.BinaryListValues,
		}
	}
	return result
}

func toSQSAttributes(attrs map[string]AttributeValue) map[string]types.MessageAttributeValue {
	if len(attrs) == 0 {
		return nil
	}
	result := make(map[string]types.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		result[k] = types.MessageAttributeValue{
			DataType:         aws.String(v.DataType),
			StringValue:      v.StringValue,
			BinaryValue:      v.BinaryValue,
			StringListValues: v.StringListValues,
			BinaryListValues: v.BinaryListValues,
		}
	}
	return result
}
