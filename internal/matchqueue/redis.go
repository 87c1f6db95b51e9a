package matchqueue

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"pongserver/internal/coordstore"
)

// DefaultQueueKey is the well-known coordination-store key holding the
// matchmaking queue (spec §6: "matchmaking queue under one well-known key").
const DefaultQueueKey = "pong:matchqueue"

// pairPopScript atomically pops the two oldest distinct entries from the
// list and removes every other occurrence of either player (spec §3:
// duplicates tolerated, removed on pop). If fewer than two distinct players
// are queued, the popped entries are pushed back in their original order and
// the script reports no pair. Running this server-side
// is what makes PairPop atomic against concurrent instances (spec §4.4).
var pairPopScript = redis.NewScript(`
local key = KEYS[1]
local popped = {}
local a = nil
local b = nil
while true do
  local v = redis.call('LPOP', key)
  if v == false then
    break
  end
  if a == nil then
    a = v
  elseif v ~= a and b == nil then
    b = v
    break
  else
    table.insert(popped, v)
  end
end
if a == nil then
  return {}
end
if b == nil then
  for i = 1, #popped do
    redis.call('RPUSH', key, popped[i])
  end
  redis.call('LPUSH', key, a)
  return {}
end
redis.call('LREM', key, 0, a)
redis.call('LREM', key, 0, b)
return {a, b}
`)

// RedisQueue is the production MatchQueue implementation, backed by a Redis
// list under DefaultQueueKey and the Lua script above for atomic pair-pop.
type RedisQueue struct {
	client *coordstore.Client
	key    string
}

// NewRedisQueue constructs a RedisQueue against the given coordination
// store client, using the default well-known key unless key is non-empty.
func NewRedisQueue(client *coordstore.Client, key string) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("coordination store client is required")
	}
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key}, nil
}

func (q *RedisQueue) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, q.client.Timeout())
}

// Enqueue appends playerID to the tail of the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, playerID string) error {
	if playerID == "" {
		return nil
	}
	ctx, cancel := q.ctx(ctx)
	defer cancel()
	return q.client.Raw().RPush(ctx, q.key, playerID).Err()
}

// Remove deletes every occurrence of playerID.
func (q *RedisQueue) Remove(ctx context.Context, playerID string) error {
	if playerID == "" {
		return nil
	}
	ctx, cancel := q.ctx(ctx)
	defer cancel()
	return q.client.Raw().LRem(ctx, q.key, 0, playerID).Err()
}

// PairPop atomically pops the two oldest distinct entries via pairPopScript.
func (q *RedisQueue) PairPop(ctx context.Context) (a, b string, ok bool, err error) {
	ctx, cancel := q.ctx(ctx)
	defer cancel()

	result, err := pairPopScript.Run(ctx, q.client.Raw(), []string{q.key}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", "", false, nil
		}
		return "", "", false, err
	}
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return "", "", false, nil
	}
	aStr, _ := values[0].(string)
	bStr, _ := values[1].(string)
	if aStr == "" || bStr == "" {
		return "", "", false, nil
	}
	return aStr, bStr, true, nil
}

// Depth returns the current queue length.
func (q *RedisQueue) Depth(ctx context.Context) (int, error) {
	ctx, cancel := q.ctx(ctx)
	defer cancel()
	n, err := q.client.Raw().LLen(ctx, q.key).Result()
	return int(n), err
}
