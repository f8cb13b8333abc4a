package approvals

import (
	"context"
	"encoding/json"

	"corporatepay-reconciliation/pkg/errors"

	"github.com/redis/go-redis/v9"
)

const (
	redisBackend = "redis"

	// DefaultRedisKey is the hash that holds the inbox
	DefaultRedisKey = "corporatepay:approvals"
)

// RedisStore keeps the inbox in one hash, one field per item id. HSET on a
// field replaces the record for that key in a single command.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore wraps client. The store owns the client and closes it.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// DialRedis connects to addr and checks the connection
func DialRedis(ctx context.Context, opts *redis.Options, key string) (*RedisStore, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.StorageError(errors.CodeStoreUnavailable, redisBackend, "ping", err).
			WithContext("addr", opts.Addr)
	}
	return NewRedisStore(client, key), nil
}

func (r *RedisStore) decode(id, value string) (ApprovalItem, error) {
	var item ApprovalItem
	if err := json.Unmarshal([]byte(value), &item); err != nil {
		return ApprovalItem{}, errors.StorageError(errors.CodeStoreCorrupted, redisBackend, "decode", err).
			WithContext("approval_id", id)
	}
	return item, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (ApprovalItem, bool, error) {
	value, err := r.client.HGet(ctx, r.key, id).Result()
	if err == redis.Nil {
		return ApprovalItem{}, false, nil
	}
	if err != nil {
		return ApprovalItem{}, false, errors.StorageError(errors.CodeStoreUnavailable, redisBackend, "get", err).
			WithContext("approval_id", id)
	}

	item, err := r.decode(id, value)
	if err != nil {
		return ApprovalItem{}, false, err
	}
	return item, true, nil
}

func (r *RedisStore) List(ctx context.Context) ([]ApprovalItem, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, redisBackend, "list", err)
	}

	items := make([]ApprovalItem, 0, len(fields))
	for id, value := range fields {
		item, err := r.decode(id, value)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	sortItems(items)
	return items, nil
}

func (r *RedisStore) Put(ctx context.Context, item ApprovalItem) error {
	body, err := json.Marshal(item)
	if err != nil {
		return errors.StorageError(errors.CodeUnexpectedError, redisBackend, "encode", err)
	}
	if err := r.client.HSet(ctx, r.key, item.ID, string(body)).Err(); err != nil {
		return errors.StorageError(errors.CodeStoreUnavailable, redisBackend, "put", err).
			WithContext("approval_id", item.ID)
	}
	return nil
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := r.client.HLen(ctx, r.key).Result()
	if err != nil {
		return 0, errors.StorageError(errors.CodeStoreUnavailable, redisBackend, "count", err)
	}
	return int(n), nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
