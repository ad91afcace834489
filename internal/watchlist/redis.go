package watchlist

import (
	"context"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisStore keeps the watchlist in a Redis set
type RedisStore struct {
	client *redis.Client
	key    string
}

// RedisOptions holds connection settings for NewRedisStore
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis and seeds the set with defaults when empty
func NewRedisStore(ctx context.Context, opts RedisOptions, defaults []string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "redis ping %s", opts.Addr)
	}

	s := &RedisStore{client: client, key: opts.Prefix + "watchlist"}

	n, err := client.SCard(ctx, s.key).Result()
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis scard")
	}
	if n == 0 && len(defaults) > 0 {
		members := make([]interface{}, 0, len(defaults))
		for _, d := range defaults {
			sym, err := Normalize(d)
			if err != nil {
				client.Close()
				return nil, err
			}
			members = append(members, sym)
		}
		if err := client.SAdd(ctx, s.key, members...).Err(); err != nil {
			client.Close()
			return nil, errors.Wrap(err, "seed watchlist")
		}
	}
	return s, nil
}

// List returns the symbols sorted alphabetically
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis smembers")
	}
	sort.Strings(members)
	return members, nil
}

func (s *RedisStore) Add(ctx context.Context, symbol string) error {
	sym, err := Normalize(symbol)
	if err != nil {
		return err
	}
	added, err := s.client.SAdd(ctx, s.key, sym).Result()
	if err != nil {
		return errors.Wrap(err, "redis sadd")
	}
	if added == 0 {
		return errors.Wrap(ErrDuplicate, sym)
	}
	return nil
}

// Remove deletes symbol inside a WATCH transaction so the set never empties
func (s *RedisStore) Remove(ctx context.Context, symbol string) error {
	sym, err := Normalize(symbol)
	if err != nil {
		return err
	}

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		ok, err := tx.SIsMember(ctx, s.key, sym).Result()
		if err != nil {
			return errors.Wrap(err, "redis sismember")
		}
		if !ok {
			return errors.Wrap(ErrNotFound, sym)
		}
		n, err := tx.SCard(ctx, s.key).Result()
		if err != nil {
			return errors.Wrap(err, "redis scard")
		}
		if n <= 1 {
			return ErrLastSymbol
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, s.key, sym)
			return nil
		})
		return errors.Wrap(err, "redis srem")
	}, s.key)
}

// Close releases the connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}
