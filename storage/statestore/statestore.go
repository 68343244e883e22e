// Package statestore implements the ephemeral state cache on Redis.
// Keys are namespaced (task:status:<id>, task:dialogue:<id>,
// task:spec:<id>) and every write carries the configured TTL.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360studio/agentbus/storage"
	"github.com/c360studio/agentbus/task"
)

const (
	statusPrefix   = "task:status:"
	dialoguePrefix = "task:dialogue:"
	specPrefix     = "task:spec:"
	lockPrefix     = "task:lock:dialogue:"

	lockTTL       = 30 * time.Second
	lockRetryWait = 100 * time.Millisecond

	// maxPointerHops bounds FinalTaskID pointer chains on reads.
	maxPointerHops = 2
)

// Store is a Redis-backed storage.StateStore.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Store. TTL must be positive.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, ttl: ttl, logger: logger.With("component", "statestore")}
}

// SetStatus writes the status entry for id.
func (s *Store) SetStatus(ctx context.Context, id string, status task.Status, errMsg string) error {
	entry := storage.StatusEntry{
		Status:    status,
		Error:     errMsg,
		UpdatedAt: time.Now().UTC(),
	}
	return s.writeStatus(ctx, s.client, id, entry)
}

func (s *Store) writeStatus(ctx context.Context, c redis.Cmdable, id string, entry storage.StatusEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal status entry: %w", err)
	}
	if err := c.Set(ctx, statusPrefix+id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("write status %s: %w", id, err)
	}
	return nil
}

// GetStatus reads the entry for id, following the FinalTaskID pointer
// left behind by LinkTask.
func (s *Store) GetStatus(ctx context.Context, id string) (*storage.StatusEntry, error) {
	key := id
	for hop := 0; hop <= maxPointerHops; hop++ {
		data, err := s.client.Get(ctx, statusPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrStateNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("read status %s: %w", key, err)
		}

		var entry storage.StatusEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("decode status %s: %w", key, err)
		}
		if entry.FinalTaskID == "" || entry.FinalTaskID == key {
			return &entry, nil
		}
		key = entry.FinalTaskID
	}
	return nil, fmt.Errorf("status pointer chain too deep for %s", id)
}

// LinkTask atomically writes the dialogue-id entry (carrying the
// pointer) and the final-id entry in a single transaction.
func (s *Store) LinkTask(ctx context.Context, dialogueID, finalTaskID string, status task.Status) error {
	now := time.Now().UTC()

	dialogueEntry, err := json.Marshal(storage.StatusEntry{
		Status:      status,
		FinalTaskID: finalTaskID,
		UpdatedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("marshal dialogue entry: %w", err)
	}
	finalEntry, err := json.Marshal(storage.StatusEntry{
		Status:    status,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("marshal task entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, statusPrefix+dialogueID, dialogueEntry, s.ttl)
	pipe.Set(ctx, statusPrefix+finalTaskID, finalEntry, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("link %s -> %s: %w", dialogueID, finalTaskID, err)
	}
	return nil
}

// statusForStage maps a dialogue stage onto a cached task status.
func statusForStage(stage string) task.Status {
	switch stage {
	case "COMPLETED":
		return task.StatusClarified
	case "FAILED":
		return task.StatusClarificationFailed
	case "CANCELLED":
		return task.StatusCancelled
	default:
		return task.StatusPendingClarification
	}
}

// SaveDialogue writes the serialised dialogue state and the derived
// status entry together.
func (s *Store) SaveDialogue(ctx context.Context, dialogueID string, state []byte, stage string) error {
	entry, err := json.Marshal(storage.StatusEntry{
		Status:    statusForStage(stage),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal status entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, dialoguePrefix+dialogueID, state, s.ttl)
	pipe.Set(ctx, statusPrefix+dialogueID, entry, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save dialogue %s: %w", dialogueID, err)
	}
	return nil
}

// GetDialogue returns the serialised dialogue state.
func (s *Store) GetDialogue(ctx context.Context, dialogueID string) ([]byte, error) {
	data, err := s.client.Get(ctx, dialoguePrefix+dialogueID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read dialogue %s: %w", dialogueID, err)
	}
	return data, nil
}

// SaveSpec keeps a cache copy of the formatted specification.
func (s *Store) SaveSpec(ctx context.Context, id string, spec *task.Specification) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	if err := s.client.Set(ctx, specPrefix+id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("write spec %s: %w", id, err)
	}
	return nil
}

// GetSpec returns the cached specification.
func (s *Store) GetSpec(ctx context.Context, id string) (*task.Specification, error) {
	data, err := s.client.Get(ctx, specPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read spec %s: %w", id, err)
	}
	var spec task.Specification
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("decode spec %s: %w", id, err)
	}
	return &spec, nil
}

// LockDialogue acquires a per-dialogue lock via SET NX, polling until
// the lock frees or ctx expires. The lock self-expires so a crashed
// holder cannot wedge a dialogue.
func (s *Store) LockDialogue(ctx context.Context, dialogueID string) (func(), error) {
	key := lockPrefix + dialogueID
	for {
		ok, err := s.client.SetNX(ctx, key, "1", lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", dialogueID, err)
		}
		if ok {
			release := func() {
				if err := s.client.Del(context.Background(), key).Err(); err != nil {
					s.logger.Warn("failed to release dialogue lock",
						"dialogue_id", dialogueID, "error", err)
				}
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, storage.ErrLockHeld
		case <-time.After(lockRetryWait):
		}
	}
}
