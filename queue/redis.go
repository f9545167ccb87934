package queue

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
)

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr                  string
	Password              string
	Key                   string // prefix for all keys
	TLS                   bool
	TLSInsecureSkipVerify bool
	ClientName            string
	VisibilityTimeout     time.Duration
	PollInterval          time.Duration // receive retry interval while long polling
}

// Redis implements Client on top of redis.
//
// Each queue uses three keys:
//
//	<key>:<queue>:visible  sorted set, member=message id, score=visible-at (unix ms)
//	<key>:<queue>:body     hash, message id -> json envelope
//	<key>:<queue>:receipt  hash, message id -> current receipt handle
//
// Receipt handles are "<message id>|<nonce>", renewed on every receive.
type Redis struct {
	options     RedisOptions
	redisClient *redis.Client
}

// NewRedis creates a redis client.
func NewRedis(opt RedisOptions) *Redis {
	redisOptions := &redis.Options{
		Addr:       opt.Addr,
		Password:   opt.Password,
		DB:         0,
		ClientName: opt.ClientName,
	}

	if opt.TLS || opt.TLSInsecureSkipVerify {
		redisOptions.TLSConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: opt.TLSInsecureSkipVerify,
		}
	}

	if opt.VisibilityTimeout <= 0 {
		opt.VisibilityTimeout = 30 * time.Second
	}
	if opt.PollInterval <= 0 {
		opt.PollInterval = 100 * time.Millisecond
	}

	return &Redis{
		options:     opt,
		redisClient: redis.NewClient(redisOptions),
	}
}

// Close releases the redis connection pool.
func (r *Redis) Close() error {
	return r.redisClient.Close()
}

func (r *Redis) keys(queueID string) []string {
	prefix := r.options.Key + ":" + queueID
	return []string{prefix + ":visible", prefix + ":body", prefix + ":receipt"}
}

// dropQueue removes all keys of queueID.
func (r *Redis) dropQueue(ctx context.Context, queueID string) error {
	return r.redisClient.Del(ctx, r.keys(queueID)...).Err()
}

var receiveScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
local out = {}
for _, id in ipairs(ids) do
	local body = redis.call('HGET', KEYS[2], id)
	if body then
		local receipt = id .. '|' .. ARGV[4]
		redis.call('ZADD', KEYS[1], tonumber(ARGV[1]) + tonumber(ARGV[2]), id)
		redis.call('HSET', KEYS[3], id, receipt)
		table.insert(out, receipt)
		table.insert(out, body)
	else
		redis.call('ZREM', KEYS[1], id)
	end
end
return out
`)

// deleteScript returns 1 on delete (or already deleted), 0 on stale receipt.
var deleteScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[3], ARGV[1])
if not current then
	if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 0 then
		return 1
	end
	return 0
end
if current ~= ARGV[2] then
	return 0
end
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if score and tonumber(score) <= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
return 1
`)

// Receive implements Client.
func (r *Redis) Receive(ctx context.Context, queueID string, maxMessages, waitSeconds int) ([]Message, error) {
	maxMessages = ClampMaxMessages(maxMessages)
	deadline := time.Now().Add(time.Duration(ClampWaitSeconds(waitSeconds)) * time.Second)

	for {
		list, err := r.receiveOnce(ctx, queueID, maxMessages)
		if err != nil {
			return nil, newTransientError("receive", queueID, err)
		}
		if len(list) > 0 || !time.Now().Before(deadline) {
			return list, nil
		}
		select {
		case <-ctx.Done():
			return nil, newTransientError("receive", queueID, ctx.Err())
		case <-time.After(r.options.PollInterval):
		}
	}
}

func (r *Redis) receiveOnce(ctx context.Context, queueID string, maxMessages int) ([]Message, error) {
	now := time.Now().UnixMilli()
	visibility := r.options.VisibilityTimeout.Milliseconds()

	result, errScript := receiveScript.Run(ctx, r.redisClient, r.keys(queueID),
		now, visibility, maxMessages, ksuid.New().String()).StringSlice()
	if errScript != nil {
		return nil, errScript
	}

	var list []Message

	for i := 0; i+1 < len(result); i += 2 {
		var m Message
		if errJSON := json.Unmarshal([]byte(result[i+1]), &m); errJSON != nil {
			return list, fmt.Errorf("decode envelope: %w", errJSON)
		}
		m.ReceiptHandle = result[i]
		list = append(list, m)
	}

	return list, nil
}

// Send implements Client.
func (r *Redis) Send(ctx context.Context, queueID, body string, attributes map[string]AttributeValue) (string, error) {
	id := ksuid.New().String()

	envelope, errJSON := json.Marshal(Message{ID: id, Body: body, Attributes: attributes})
	if errJSON != nil {
		return "", newTransientError("send", queueID, errJSON)
	}

	keys := r.keys(queueID)

	_, errTx := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, keys[1], id, envelope)
		pipe.ZAdd(ctx, keys[0], redis.Z{Score: 0, Member: id})
		return nil
	})
	if errTx != nil {
		return "", newTransientError("send", queueID, errTx)
	}

	return id, nil
}

// Delete implements Client.
func (r *Redis) Delete(ctx context.Context, queueID, receiptHandle string) error {
	id, _, found := strings.Cut(receiptHandle, "|")
	if !found || id == "" {
		return newTransientError("delete", queueID, fmt.Errorf("%w: malformed", ErrStaleReceipt))
	}

	deleted, errScript := deleteScript.Run(ctx, r.redisClient, r.keys(queueID),
		id, receiptHandle, time.Now().UnixMilli()).Int()
	if errScript != nil {
		return newTransientError("delete", queueID, errScript)
	}

	if deleted != 1 {
		return newTransientError("delete", queueID, ErrStaleReceipt)
	}

	return nil
}
