package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/udhos/queuemover/env"
)

const (
	testSource      = "https://sqs.us-east-1.amazonaws.com/123456789012/todo"
	testDestination = "https://sqs.us-east-1.amazonaws.com/123456789012/completed"
)

type regionTestCase struct {
	queueURL       string
	expectedRegion string
	expectError    bool
}

var regionTestTable = []regionTestCase{
	{"https://sqs.us-east-1.amazonaws.com/123456789012/myqueue", "us-east-1", false},
	{"https://sqs.sa-east-1.amazonaws.com/123456789012/todo", "sa-east-1", false},
	{"http://localhost:4566/000000000000/todo", "", true},
	{"", "", true},
}

// go test -run TestGetRegion ./queue
func TestGetRegion(t *testing.T) {
	for _, data := range regionTestTable {
		region, err := GetRegion(data.queueURL)
		if gotError := err != nil; gotError != data.expectError {
			t.Errorf("url=%s expectError=%t got error: %v", data.queueURL, data.expectError, err)
			continue
		}
		if region != data.expectedRegion {
			t.Errorf("url=%s expected region=%s got=%s", data.queueURL, data.expectedRegion, region)
		}
	}
}

// go test -run TestClamp ./queue
func TestClamp(t *testing.T) {
	for _, c := range []struct{ in, out int }{{-1, 1}, {0, 1}, {1, 1}, {5, 5}, {10, 10}, {11, 10}} {
		if got := ClampMaxMessages(c.in); got != c.out {
			t.Errorf("ClampMaxMessages(%d): expected %d got %d", c.in, c.out, got)
		}
	}
	for _, c := range []struct{ in, out int }{{-5, 0}, {0, 0}, {2, 2}, {20, 20}, {60, 20}} {
		if got := ClampWaitSeconds(c.in); got != c.out {
			t.Errorf("ClampWaitSeconds(%d): expected %d got %d", c.in, c.out, got)
		}
	}
}

// go test -run TestTransientErrorCode ./queue
func TestTransientErrorCode(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "ReceiptHandleIsInvalid", Message: "bad handle"}
	err := newTransientError("delete", testSource, apiErr)

	if err.Code != "ReceiptHandleIsInvalid" {
		t.Errorf("expected code ReceiptHandleIsInvalid, got %q", err.Code)
	}
	if code := ErrorCode(err); code != "ReceiptHandleIsInvalid" {
		t.Errorf("ErrorCode: expected ReceiptHandleIsInvalid, got %q", code)
	}
	if !errors.Is(err, apiErr) {
		t.Errorf("transient error should unwrap to api error")
	}
	if code := ErrorCode(errors.New("plain")); code != "" {
		t.Errorf("plain error should have no code, got %q", code)
	}
}

// go test -run TestMemQueue ./queue
func TestMemQueue(t *testing.T) {
	ctx := context.TODO()
	q := NewMem(10 * time.Second)

	id, errSend := q.Send(ctx, testSource, `["alpha"]`, nil)
	if errSend != nil || id == "" {
		t.Fatalf("send: id=%q error: %v", id, errSend)
	}
	if l := q.Len(testSource); l != 1 {
		t.Errorf("expecting one message in queue, got: %d", l)
	}
	if visible := q.CountVisible(testSource); visible != 1 {
		t.Errorf("expecting one visible message, got: %d", visible)
	}

	list, errRecv := q.Receive(ctx, testSource, 10, 0)
	if errRecv != nil {
		t.Fatalf("receive: %v", errRecv)
	}
	if len(list) != 1 {
		t.Fatalf("expecting one received message, got: %d", len(list))
	}
	if list[0].ID != id || list[0].ReceiptHandle == "" {
		t.Errorf("unexpected received message: %+v", list[0])
	}
	if visible := q.CountVisible(testSource); visible != 0 {
		t.Errorf("expecting zero visible messages, got: %d", visible)
	}

	again, _ := q.Receive(ctx, testSource, 10, 0)
	if len(again) != 0 {
		t.Errorf("invisible message was received again")
	}

	if err := q.Delete(ctx, testSource, list[0].ReceiptHandle); err != nil {
		t.Errorf("delete: %v", err)
	}
	if l := q.Len(testSource); l != 0 {
		t.Errorf("expecting empty queue, got: %d", l)
	}
	if err := q.Delete(ctx, testSource, list[0].ReceiptHandle); err != nil {
		t.Errorf("second delete with same handle should be a no-op: %v", err)
	}
}

// go test -run TestMemQueueStaleReceipt ./queue
func TestMemQueueStaleReceipt(t *testing.T) {
	ctx := context.TODO()
	q := NewMem(10 * time.Second)

	q.Send(ctx, testSource, "body", nil)

	first, _ := q.Receive(ctx, testSource, 1, 0)
	q.ExpireVisibility(testSource)

	errExpired := q.Delete(ctx, testSource, first[0].ReceiptHandle)
	if !errors.Is(errExpired, ErrStaleReceipt) {
		t.Errorf("expected stale receipt after visibility expired, got: %v", errExpired)
	}

	second, _ := q.Receive(ctx, testSource, 1, 0)
	if len(second) != 1 {
		t.Fatalf("expected redelivery, got %d messages", len(second))
	}

	errOld := q.Delete(ctx, testSource, first[0].ReceiptHandle)
	var te *TransientError
	if !errors.As(errOld, &te) || te.Op != "delete" {
		t.Errorf("expected transient delete error for old receipt, got: %v", errOld)
	}

	if err := q.Delete(ctx, testSource, second[0].ReceiptHandle); err != nil {
		t.Errorf("delete with fresh receipt: %v", err)
	}
}

// go test -run TestMemQueueDeletedPruned ./queue
func TestMemQueueDeletedPruned(t *testing.T) {
	ctx := context.TODO()
	q := NewMem(50 * time.Millisecond)

	for _, body := range []string{"a", "b"} {
		q.Send(ctx, testSource, body, nil)
	}
	list, _ := q.Receive(ctx, testSource, 2, 0)
	if len(list) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(list))
	}

	if err := q.Delete(ctx, testSource, list[0].ReceiptHandle); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := q.Delete(ctx, testSource, list[0].ReceiptHandle); err != nil {
		t.Errorf("repeated delete within visibility window should succeed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	// message b is visible again, so its delete fails, but it still prunes
	q.Delete(ctx, testSource, list[1].ReceiptHandle)

	q.lock.Lock()
	remembered := len(q.deleted)
	q.lock.Unlock()
	if remembered != 0 {
		t.Errorf("expected used receipt handles to be forgotten, got %d", remembered)
	}

	if err := q.Delete(ctx, testSource, list[0].ReceiptHandle); !errors.Is(err, ErrStaleReceipt) {
		t.Errorf("expected stale receipt for forgotten handle, got: %v", err)
	}
}

// go test -run TestMemQueueLongPoll ./queue
func TestMemQueueLongPoll(t *testing.T) {
	q := NewMem(10 * time.Second)

	go func() {
		time.Sleep(100 * time.Millisecond)
		q.Send(context.TODO(), testSource, "late", nil)
	}()

	begin := time.Now()
	list, err := q.Receive(context.TODO(), testSource, 5, 2)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(list) != 1 || list[0].Body != "late" {
		t.Errorf("long poll should return late message, got: %+v", list)
	}
	if elapsed := time.Since(begin); elapsed >= 2*time.Second {
		t.Errorf("long poll waited full timeout: %v", elapsed)
	}
}

// go test -run TestMemQueueAttributesCopied ./queue
func TestMemQueueAttributesCopied(t *testing.T) {
	q := NewMem(time.Second)
	attrs := map[string]AttributeValue{
		"kind": {DataType: "String", StringValue: aws.String("todo")},
	}
	q.Send(context.TODO(), testSource, "body", attrs)
	attrs["kind"] = AttributeValue{DataType: "String", StringValue: aws.String("mutated")}

	got := q.Messages(testSource)[0].Attributes["kind"]
	if aws.ToString(got.StringValue) != "todo" {
		t.Errorf("stored attributes should not alias caller map, got %q", aws.ToString(got.StringValue))
	}
}

// go test -run TestSQS ./queue
func TestSQS(t *testing.T) {
	mock := &mockSqs{
		received: []types.Message{
			{
				MessageId:     aws.String("m1"),
				Body:          aws.String(`{"z":1,"a":2}`),
				ReceiptHandle: aws.String("rh1"),
				MessageAttributes: map[string]types.MessageAttributeValue{
					"trace": {DataType: aws.String("String"), StringValue: aws.String("abc")},
					"blob":  {DataType: aws.String("Binary"), BinaryValue: []byte{1, 2, 3}},
				},
			},
		},
	}
	q := NewSQS(mock)
	ctx := context.TODO()

	list, errRecv := q.Receive(ctx, testSource, 50, 99)
	if errRecv != nil {
		t.Fatalf("receive: %v", errRecv)
	}
	if mock.maxMessages != 10 || mock.waitSeconds != 20 {
		t.Errorf("receive limits not clamped: max=%d wait=%d", mock.maxMessages, mock.waitSeconds)
	}
	if len(list) != 1 || list[0].ID != "m1" || list[0].ReceiptHandle != "rh1" {
		t.Fatalf("unexpected messages: %+v", list)
	}

	id, errSend := q.Send(ctx, testDestination, list[0].Body, list[0].Attributes)
	if errSend != nil {
		t.Fatalf("send: %v", errSend)
	}
	if id != "mockSqs.fake-message-id" {
		t.Errorf("unexpected message id: %s", id)
	}
	if mock.sentQueue != testDestination || mock.sentBody != `{"z":1,"a":2}` {
		t.Errorf("unexpected send: queue=%s body=%s", mock.sentQueue, mock.sentBody)
	}
	if v := mock.sentAttributes["trace"]; aws.ToString(v.DataType) != "String" || aws.ToString(v.StringValue) != "abc" {
		t.Errorf("string attribute not forwarded verbatim: %+v", v)
	}
	if v := mock.sentAttributes["blob"]; aws.ToString(v.DataType) != "Binary" || string(v.BinaryValue) != "\x01\x02\x03" {
		t.Errorf("binary attribute not forwarded verbatim: %+v", v)
	}

	if _, errEmpty := q.Send(ctx, testDestination, "no attributes", nil); errEmpty != nil {
		t.Errorf("send without attributes: %v", errEmpty)
	}
	if mock.sentAttributes != nil {
		t.Errorf("expecting no attributes, got: %v", mock.sentAttributes)
	}

	if err := q.Delete(ctx, testSource, "rh1"); err != nil {
		t.Errorf("delete: %v", err)
	}
	if mock.deletedHandle != "rh1" || mock.deletedQueue != testSource {
		t.Errorf("unexpected delete: queue=%s handle=%s", mock.deletedQueue, mock.deletedHandle)
	}
}

// go test -run TestSQSErrors ./queue
func TestSQSErrors(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "AWS.SimpleQueueService.NonExistentQueue", Message: "no queue"}
	q := NewSQS(&mockSqs{err: apiErr})
	ctx := context.TODO()

	_, errRecv := q.Receive(ctx, testSource, 1, 0)
	_, errSend := q.Send(ctx, testDestination, "x", nil)
	errDelete := q.Delete(ctx, testSource, "rh")

	for op, err := range map[string]error{"receive": errRecv, "send": errSend, "delete": errDelete} {
		var te *TransientError
		if !errors.As(err, &te) {
			t.Errorf("%s: expecting TransientError, got: %v", op, err)
			continue
		}
		if te.Op != op || te.Code != apiErr.Code {
			t.Errorf("%s: unexpected transient error: %+v", op, te)
		}
	}
}

type mockSqs struct {
	err            error
	received       []types.Message
	maxMessages    int32
	waitSeconds    int32
	sentQueue      string
	sentBody       string
	sentAttributes map[string]types.MessageAttributeValue
	deletedQueue   string
	deletedHandle  string
}

func (s *mockSqs) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.maxMessages = params.MaxNumberOfMessages
	s.waitSeconds = params.WaitTimeSeconds
	return &sqs.ReceiveMessageOutput{Messages: s.received}, nil
}

func (s *mockSqs) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sentQueue = *params.QueueUrl
	s.sentBody = *params.MessageBody
	s.sentAttributes = params.MessageAttributes
	messageID := "mockSqs.fake-message-id"
	out := &sqs.SendMessageOutput{MessageId: aws.String(messageID)}
	return out, nil
}

func (s *mockSqs) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.deletedQueue = *params.QueueUrl
	s.deletedHandle = *params.ReceiptHandle
	return &sqs.DeleteMessageOutput{}, nil
}

// go test -run TestRedisQueue ./queue
func TestRedisQueue(t *testing.T) {
	testRedis := env.Bool("TEST_QUEUE_REDIS", false)
	t.Logf("testing queue redis: %t", testRedis)
	if !testRedis {
		t.Skip("set TEST_QUEUE_REDIS=true to test against a live redis")
	}

	r := NewRedis(RedisOptions{
		Addr:              env.String("REDIS_ADDR", "localhost:6379"),
		Key:               "queuemover_test",
		VisibilityTimeout: time.Second,
		PollInterval:      20 * time.Millisecond,
	})
	defer r.Close()

	ctx := context.TODO()
	if err := r.dropQueue(ctx, testSource); err != nil {
		t.Fatalf("dropping queue: %v", err)
	}

	attrs := map[string]AttributeValue{"kind": {DataType: "String", StringValue: aws.String("todo")}}
	id, errSend := r.Send(ctx, testSource, `["alpha","beta"]`, attrs)
	if errSend != nil {
		t.Fatalf("send: %v", errSend)
	}

	list, errRecv := r.Receive(ctx, testSource, 10, 1)
	if errRecv != nil || len(list) != 1 {
		t.Fatalf("receive: %d messages, error: %v", len(list), errRecv)
	}
	if list[0].ID != id || list[0].Body != `["alpha","beta"]` {
		t.Errorf("unexpected message: %+v", list[0])
	}
	if aws.ToString(list[0].Attributes["kind"].StringValue) != "todo" {
		t.Errorf("attributes lost: %+v", list[0].Attributes)
	}

	again, _ := r.Receive(ctx, testSource, 10, 0)
	if len(again) != 0 {
		t.Errorf("invisible message received again")
	}

	time.Sleep(1200 * time.Millisecond) // let visibility expire

	if err := r.Delete(ctx, testSource, list[0].ReceiptHandle); !errors.Is(err, ErrStaleReceipt) {
		t.Errorf("expecting stale receipt, got: %v", err)
	}

	redelivered, _ := r.Receive(ctx, testSource, 10, 0)
	if len(redelivered) != 1 {
		t.Fatalf("expecting redelivery, got %d", len(redelivered))
	}
	if err := r.Delete(ctx, testSource, redelivered[0].ReceiptHandle); err != nil {
		t.Errorf("delete: %v", err)
	}
	if err := r.Delete(ctx, testSource, redelivered[0].ReceiptHandle); err != nil {
		t.Errorf("second delete should be a no-op: %v", err)
	}
}
