package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// Mem is an in-process Client with visibility timeouts and receipt
// handles. Queues are created on first use.
type Mem struct {
	queues            map[string][]*memMessage
	deleted           map[string]time.Time // receipt handle used for delete -> forget after
	lock              sync.Mutex
	visibilityTimeout time.Duration
	pollInterval      time.Duration
}

type memMessage struct {
	message        Message
	receipt        string
	invisibleUntil time.Time
}

func (m *memMessage) visible(now time.Time) bool {
	return m.invisibleUntil.IsZero() || !m.invisibleUntil.After(now)
}

// NewMem creates an in-memory client.
func NewMem(visibilityTimeout time.Duration) *Mem {
	return &Mem{
		queues:            map[string][]*memMessage{},
		deleted:           map[string]time.Time{},
		visibilityTimeout: visibilityTimeout,
		pollInterval:      10 * time.Millisecond,
	}
}

// Receive implements Client.
func (q *Mem) Receive(ctx context.Context, queueID string, maxMessages, waitSeconds int) ([]Message, error) {
	maxMessages = ClampMaxMessages(maxMessages)
	deadline := time.Now().Add(time.Duration(ClampWaitSeconds(waitSeconds)) * time.Second)

	for {
		if list := q.receiveVisible(queueID, maxMessages); len(list) > 0 {
			return list, nil
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, newTransientError("receive", queueID, ctx.Err())
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *Mem) receiveVisible(queueID string, maxMessages int) []Message {
	q.lock.Lock()
	defer q.lock.Unlock()

	now := time.Now()
	var result []Message

	for _, m := range q.queues[queueID] {
		if len(result) >= maxMessages {
			break
		}
		if !m.visible(now) {
			continue
		}
		m.invisibleUntil = now.Add(q.visibilityTimeout)
		m.receipt = ksuid.New().String()
		msg := m.message
		msg.ReceiptHandle = m.receipt
		result = append(result, msg)
	}

	return result
}

// Send implements Client.
func (q *Mem) Send(_ context.Context, queueID, body string, attributes map[string]AttributeValue) (string, error) {
	q.lock.Lock()
	defer q.lock.Unlock()

	id := ksuid.New().String()
	m := &memMessage{
		message: Message{
			ID:         id,
			Body:       body,
			Attributes: copyAttributes(attributes),
		},
	}
	q.queues[queueID] = append(q.queues[queueID], m)

	return id, nil
}

// Delete implements Client.
func (q *Mem) Delete(_ context.Context, queueID, receiptHandle string) error {
	q.lock.Lock()
	defer q.lock.Unlock()

	now := time.Now()

	q.pruneDeleted(now)

	if _, found := q.deleted[receiptHandle]; found {
		return nil
	}

	list := q.queues[queueID]

	for i, m := range list {
		if m.receipt != receiptHandle {
			continue
		}
		if m.visible(now) {
			return newTransientError("delete", queueID,
				fmt.Errorf("%w: visibility timeout expired", ErrStaleReceipt))
		}
		q.queues[queueID] = append(list[:i:i], list[i+1:]...)
		q.deleted[receiptHandle] = now.Add(q.visibilityTimeout)
		return nil
	}

	return newTransientError("delete", queueID, ErrStaleReceipt)
}

// pruneDeleted forgets handles whose visibility window has passed.
// A repeated delete after that fails as stale, like an unknown handle.
func (q *Mem) pruneDeleted(now time.Time) {
	for handle, forgetAt := range q.deleted {
		if !forgetAt.After(now) {
			delete(q.deleted, handle)
		}
	}
}

// Len returns the number of messages in queueID, visible or not.
func (q *Mem) Len(queueID string) int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.queues[queueID])
}

// CountVisible returns the number of messages in queueID available for receive.
func (q *Mem) CountVisible(queueID string) int {
	q.lock.Lock()
	defer q.lock.Unlock()
	now := time.Now()
	var count int
	for _, m := range q.queues[queueID] {
		if m.visible(now) {
			count++
		}
	}
	return count
}

// Messages returns a snapshot of queueID contents without receipt handles.
func (q *Mem) Messages(queueID string) []Message {
	q.lock.Lock()
	defer q.lock.Unlock()
	result := make([]Message, 0, len(q.queues[queueID]))
	for _, m := range q.queues[queueID] {
		result = append(result, m.message)
	}
	return result
}

// ExpireVisibility makes every message of queueID visible again,
// as if the visibility timeout had elapsed.
func (q *Mem) ExpireVisibility(queueID string) {
	q.lock.Lock()
	defer q.lock.Unlock()
	for _, m := range q.queues[queueID] {
		m.invisibleUntil = time.Time{}
	}
}

func copyAttributes(attrs map[string]AttributeValue) map[string]AttributeValue {
	if len(attrs) == 0 {
		return nil
	}
	result := make(map[string]AttributeValue, len(attrs))
	for k, v := range attrs {
		result[k] = v
	}
	return result
}
