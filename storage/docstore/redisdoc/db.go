// Package redisdoc stores the documents as JSON strings in Redis.
// A document lives at `<collection>/<id>` and the set `<collection>` indexes the ids of its collection.
package redisdoc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/companion/core"
)

// optimistic transactions are retried this many times when a watched key changes
const maxTxRetries = 10

func Open(conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := ping(client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// ping waits for the server to be ready. Waits 100ms longer between each attempt.
func ping(client *redis.Client) error {
	var err error
	maxAttempts := 10
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = client.Ping(ctx).Err()
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}
	return errors.Wrap(err, "redis ping timeout")
}

// getter is the read side shared by *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func docKey(collection, id string) string {
	return collection + "/" + id
}

// getDoc decodes the document at key into v. found is false when the key does not exist.
func getDoc(ctx context.Context, c getter, key string, v interface{}) (found bool, err error) {
	data, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err = json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "decoding %s", key)
	}
	return true, nil
}

// putDoc queues the write of the document and its index entry.
func putDoc(ctx context.Context, pipe redis.Pipeliner, collection, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", docKey(collection, id))
	}
	pipe.Set(ctx, docKey(collection, id), data, 0)
	pipe.SAdd(ctx, collection, id)
	return nil
}

// queryAll reads every document indexed in collection, calling decode for each one.
// Index entries whose document vanished are skipped.
func queryAll(ctx context.Context, client *redis.Client, collection string, decode func([]byte) error) error {
	return queryIndex(ctx, client, collection, collection, decode)
}

// queryIndex reads the documents of collection whose ids are members of the set index.
func queryIndex(ctx context.Context, client *redis.Client, index, collection string, decode func([]byte) error) error {
	ids, err := client.SMembers(ctx, index).Result()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(collection, id)
	}
	vals, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return err
	}
	for i, val := range vals {
		s, ok := val.(string)
		if !ok {
			continue
		}
		if err = decode([]byte(s)); err != nil {
			return errors.Wrapf(err, "decoding %s", keys[i])
		}
	}
	return nil
}

// watch runs fn in an optimistic transaction over keys, retrying when another client changed them.
func watch(ctx context.Context, client *redis.Client, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = client.Watch(ctx, fn, keys...)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return err
}
