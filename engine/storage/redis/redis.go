// Package redis implements a workflow engine storage backend using Redis.
// Transitions use optimistic WATCH/MULTI transactions on the instance key
// so multiple engine processes may share one Redis server.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/workflow"

	"github.com/go-redis/redis/v8"
)

// DefaultPrefix is the default key prefix.
const DefaultPrefix = "formflow:"

// RedisStorage implements a storage.AllStorage using Redis.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
}

type config struct {
	addr     string
	password string
	db       int
	prefix   string
	client   redis.UniversalClient
}

// Option allows configuring a RedisStorage.
type Option func(*config)

// WithAddr sets the Redis server address.
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithPassword sets the Redis password.
func WithPassword(password string) Option {
	return func(c *config) {
		c.password = password
	}
}

// WithDB selects the Redis database number.
func WithDB(db int) Option {
	return func(c *config) {
		c.db = db
	}
}

// WithPrefix sets the prefix prepended to all keys.
func WithPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

// WithClient uses an existing client. Address options are then ignored.
func WithClient(client redis.UniversalClient) Option {
	return func(c *config) {
		c.client = client
	}
}

// New creates and returns a new RedisStorage.
func New(ctx context.Context, opts ...Option) (*RedisStorage, error) {
	cfg := &config{addr: "localhost:6379", prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.client == nil {
		cfg.client = redis.NewClient(&redis.Options{
			Addr:     cfg.addr,
			Password: cfg.password,
			DB:       cfg.db,
		})
	}
	if err := cfg.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisStorage{client: cfg.client, prefix: cfg.prefix}, nil
}

func (s *RedisStorage) subKey(id string) string  { return s.prefix + "submission:" + id }
func (s *RedisStorage) instKey(id string) string { return s.prefix + "instance:" + id }
func (s *RedisStorage) histKey(id string) string { return s.prefix + "history:" + id }
func (s *RedisStorage) activeKey() string        { return s.prefix + "active" }

func getJSON(ctx context.Context, c redis.Cmdable, k string, v interface{}) error {
	raw, err := c.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, k)
	} else if err != nil {
		return fmt.Errorf("getting %s: %w", k, err)
	}
	if err = json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", k, err)
	}
	return nil
}

// setActive queues maintenance of the active instance index on pipe.
func (s *RedisStorage) setActive(ctx context.Context, pipe redis.Pipeliner, inst *workflow.Instance) {
	if inst.Active {
		pipe.SAdd(ctx, s.activeKey(), inst.ID)
	} else {
		pipe.SRem(ctx, s.activeKey(), inst.ID)
	}
}

// CreateSubmission implements the storage interface method.
func (s *RedisStorage) CreateSubmission(ctx context.Context, c *storage.Creation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	sub, err := json.Marshal(c.Submission)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	keys := []string{s.subKey(c.Submission.ID)}
	var inst, hist []byte
	if c.Instance != nil {
		keys = append(keys, s.instKey(c.Instance.ID))
		if inst, err = json.Marshal(c.Instance); err != nil {
			return fmt.Errorf("marshal instance: %w", err)
		}
		if hist, err = json.Marshal(c.History); err != nil {
			return fmt.Errorf("marshal history: %w", err)
		}
	}
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, keys...).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: submission %s", storage.ErrAlreadyExists, c.Submission.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.subKey(c.Submission.ID), sub, 0)
			if c.Instance != nil {
				pipe.Set(ctx, s.instKey(c.Instance.ID), inst, 0)
				pipe.RPush(ctx, s.histKey(c.Instance.ID), hist)
				s.setActive(ctx, pipe, c.Instance)
			}
			return nil
		})
		return err
	}, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: submission %s", storage.ErrAlreadyExists, c.Submission.ID)
	}
	return err
}

// RetrieveSubmission implements the storage interface method.
func (s *RedisStorage) RetrieveSubmission(ctx context.Context, id string) (*workflow.Submission, error) {
	sub := new(workflow.Submission)
	if err := getJSON(ctx, s.client, s.subKey(id), sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// RetrieveInstance implements the storage interface method.
func (s *RedisStorage) RetrieveInstance(ctx context.Context, id string) (*workflow.Instance, error) {
	inst := new(workflow.Instance)
	if err := getJSON(ctx, s.client, s.instKey(id), inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// StoreTransition implements the storage interface method.
func (s *RedisStorage) StoreTransition(ctx context.Context, t *storage.Transition) error {
	if err := t.Validate(); err != nil {
		return err
	}
	inst, err := json.Marshal(t.Instance)
	if err != nil {
		return fmt.Errorf("marshal instance: %w", err)
	}
	sub, err := json.Marshal(t.Submission)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	hist, err := json.Marshal(t.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	key := s.instKey(t.Instance.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored := new(workflow.Instance)
		if err := getJSON(ctx, tx, key, stored); err != nil {
			return err
		}
		if stored.Version != t.Instance.Version-1 {
			return fmt.Errorf("%w: instance %s at version %d", storage.ErrConflict, stored.ID, stored.Version)
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, inst, 0)
			pipe.Set(ctx, s.subKey(t.Submission.ID), sub, 0)
			pipe.RPush(ctx, s.histKey(t.Instance.ID), hist)
			s.setActive(ctx, pipe, t.Instance)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: instance %s modified concurrently", storage.ErrConflict, t.Instance.ID)
	}
	return err
}

// RetrieveHistory implements the storage interface method.
func (s *RedisStorage) RetrieveHistory(ctx context.Context, instanceID string) ([]*workflow.HistoryEntry, error) {
	n, err := s.client.Exists(ctx, s.instKey(instanceID)).Result()
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: instance %s", storage.ErrNotFound, instanceID)
	}
	raws, err := s.client.LRange(ctx, s.histKey(instanceID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	history := make([]*workflow.HistoryEntry, 0, len(raws))
	for _, raw := range raws {
		h := new(workflow.HistoryEntry)
		if err = json.Unmarshal([]byte(raw), h); err != nil {
			return history, fmt.Errorf("unmarshal history: %w", err)
		}
		history = append(history, h)
	}
	return history, nil
}

// RetrieveActiveInstances implements the storage interface method.
func (s *RedisStorage) RetrieveActiveInstances(ctx context.Context) ([]*workflow.Instance, error) {
	ids, err := s.client.SMembers(ctx, s.activeKey()).Result()
	if err != nil {
		return nil, err
	}
	insts := make([]*workflow.Instance, 0, len(ids))
	for _, id := range ids {
		inst, err := s.RetrieveInstance(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		} else if err != nil {
			return insts, err
		}
		insts = append(insts, inst)
	}
	return insts, nil
}
