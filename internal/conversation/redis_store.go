package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const maxMergeAttempts = 5

// RedisStore keeps each conversation as a JSON value. Merges use WATCH/MULTI so
// a concurrent write to the same key forces a retry instead of a lost update.
// A non-zero ttl expires conversations that stay quiet for that long.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore creates a RedisStore on top of rdb.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func stateKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

func decodeState(conversationID string, data []byte) (State, error) {
	st := NewState(conversationID)
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("failed to decode conversation %s: %w", conversationID, err)
	}
	return st, nil
}

// Get loads the state for conversationID.
func (s *RedisStore) Get(ctx context.Context, conversationID string) (State, error) {
	data, err := s.rdb.Get(ctx, stateKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewState(conversationID), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	return decodeState(conversationID, data)
}

// Merge applies p inside an optimistic transaction on the conversation key.
func (s *RedisStore) Merge(ctx context.Context, conversationID string, p Patch) (State, error) {
	key := stateKey(conversationID)
	var merged State

	txf := func(tx *redis.Tx) error {
		st := NewState(conversationID)
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if st, err = decodeState(conversationID, data); err != nil {
				return err
			}
		}

		st.Apply(p)
		st.UpdatedAt = s.now()
		encoded, err := json.Marshal(st)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		if err == nil {
			merged = st
		}
		return err
	}

	for i := 0; i < maxMergeAttempts; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return State{}, fmt.Errorf("failed to merge conversation %s: %w", conversationID, err)
		}
		return merged, nil
	}
	return State{}, fmt.Errorf("failed to merge conversation %s: too much contention", conversationID)
}

// Reset overwrites the conversation with a fresh IDLE state.
func (s *RedisStore) Reset(ctx context.Context, conversationID string) error {
	st := NewState(conversationID)
	st.UpdatedAt = s.now()
	encoded, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, stateKey(conversationID), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to reset conversation %s: %w", conversationID, err)
	}
	return nil
}

// Clear deletes the conversation key.
func (s *RedisStore) Clear(ctx context.Context, conversationID string) error {
	if err := s.rdb.Del(ctx, stateKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("failed to clear conversation %s: %w", conversationID, err)
	}
	return nil
}
