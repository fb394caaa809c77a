package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dyluth/moot/internal/retry"
)

// ErrConflict indicates a conditional write observed a concurrent
// modification (the record's token changed between read and commit).
// UpdateSegment retries these internally; Fork and Initialize surface them
// only after the retry bound is exhausted.
var ErrConflict = errors.New("blackboard: concurrent modification")

// Store provides instance-scoped Redis operations for the blackboard.
// All keys and channels are automatically namespaced with the instance name.
// The store is safe for concurrent use from multiple goroutines; every write
// follows the compare-and-swap discipline, so no successful write is ever
// based on stale data.
type Store struct {
	rdb          *redis.Client
	instanceName string
	retryOpts    retry.Options

	// beforeCommit, when non-nil, runs between UpdateSegment's re-read and
	// its conditional commit. Test hook for staging conflicts inside that
	// window; always nil in production.
	beforeCommit func()
}

// NewStore creates a new blackboard store for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: Moot instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewStore(redisOpts *redis.Options, instanceName string) (*Store, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Store{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		retryOpts:    retry.DefaultOptions(),
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the store should not be used.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// ReadLatest retrieves the highest-version case record for a session.
// Returns (nil, redis.Nil) if the session has no records.
// Use IsNotFound() to check for not-found errors.
func (s *Store) ReadLatest(ctx context.Context, sessionID string) (*CaseRecord, error) {
	indexKey := VersionIndexKey(s.instanceName, sessionID)

	results, err := s.rdb.ZRevRangeWithScores(ctx, indexKey, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read version index: %w", err)
	}

	if len(results) == 0 {
		return nil, redis.Nil
	}

	version := VersionFromScore(results[0].Score)
	return s.ReadVersion(ctx, sessionID, version)
}

// ReadVersion retrieves a specific version of a session's case record.
// Returns (nil, redis.Nil) if that version doesn't exist.
func (s *Store) ReadVersion(ctx context.Context, sessionID string, version int) (*CaseRecord, error) {
	key := RecordKey(s.instanceName, sessionID, version)

	hashData, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read case record: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	record, err := HashToRecord(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize case record: %w", err)
	}

	return record, nil
}

// Initialize idempotently creates version 1 of a session's case record with
// all stages pending, or returns the existing latest record. Safe to call on
// every turn; concurrent initializers converge on a single version 1.
func (s *Store) Initialize(ctx context.Context, sessionID string) (*CaseRecord, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}

	existing, err := s.ReadLatest(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	record := &CaseRecord{
		SessionID:     sessionID,
		Version:       1,
		ParentVersion: 0,
		Segments:      Segments{},
		Status:        AllPending(),
		Token:         uuid.New().String(),
		CreatedAtMs:   time.Now().UnixMilli(),
	}

	err = s.writeNewVersion(ctx, record)
	if errors.Is(err, ErrConflict) {
		// Another writer created version 1 first; use theirs.
		return s.ReadLatest(ctx, sessionID)
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

// UpdateSegment replaces one segment of the latest record and merges an
// optional status patch, conditional on the record being unchanged since it
// was re-read immediately before the write. On conflict it retries with
// backoff up to a fixed bound, re-reading each time; after exhaustion it
// returns (false, nil) and the caller decides fatality.
func (s *Store) UpdateSegment(ctx context.Context, sessionID string, name SegmentName, value string, patch *StatusPatch) (bool, error) {
	if err := name.Validate(); err != nil {
		return false, err
	}

	op := func() error {
		// Re-read the latest record immediately before writing; the write
		// below is conditional on its token still being current.
		record, err := s.ReadLatest(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to read latest record: %w", err)
		}

		updated := *record
		if err := updated.Segments.Set(name, value); err != nil {
			return err
		}
		if patch != nil {
			updated.Status = updated.Status.Merge(*patch)
		}
		updated.Token = uuid.New().String()

		if s.beforeCommit != nil {
			s.beforeCommit()
		}

		return s.commitIfUnchanged(ctx, &updated, record.Token)
	}

	err := retry.Do(ctx, op, func(err error) bool {
		return errors.Is(err, ErrConflict)
	}, s.retryOpts)

	if errors.Is(err, ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// Fork creates version N+1 of a session's record, copying all segments
// forward, resetting every stage status to pending, and recording the parent
// version. The previous version stays retrievable and unchanged.
func (s *Store) Fork(ctx context.Context, sessionID string) (*CaseRecord, error) {
	var forked *CaseRecord

	op := func() error {
		latest, err := s.ReadLatest(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to read latest record: %w", err)
		}

		forked = &CaseRecord{
			SessionID:     sessionID,
			Version:       latest.Version + 1,
			ParentVersion: latest.Version,
			Segments:      latest.Segments,
			Status:        AllPending(),
			Token:         uuid.New().String(),
			CreatedAtMs:   time.Now().UnixMilli(),
		}

		return s.writeNewVersion(ctx, forked)
	}

	err := retry.Do(ctx, op, func(err error) bool {
		return errors.Is(err, ErrConflict)
	}, s.retryOpts)
	if err != nil {
		return nil, err
	}

	return forked, nil
}

// commitIfUnchanged writes a record hash conditional on the stored token
// still equalling expectedToken. WATCH covers the window between the token
// check and EXEC; any interleaved write aborts the transaction.
func (s *Store) commitIfUnchanged(ctx context.Context, record *CaseRecord, expectedToken string) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid case record: %w", err)
	}

	hash, err := RecordToHash(record)
	if err != nil {
		return fmt.Errorf("failed to serialize case record: %w", err)
	}

	key := RecordKey(s.instanceName, record.SessionID, record.Version)

	txErr := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "token").Result()
		if err != nil {
			return fmt.Errorf("failed to read concurrency token: %w", err)
		}
		if current != expectedToken {
			return ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, hash)
			return nil
		})
		return err
	}, key)

	if errors.Is(txErr, redis.TxFailedErr) {
		return ErrConflict
	}
	return txErr
}

// writeNewVersion creates a record at a version that must not exist yet and
// registers it in the session's version index. A concurrent writer claiming
// the same version surfaces as ErrConflict.
func (s *Store) writeNewVersion(ctx context.Context, record *CaseRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid case record: %w", err)
	}

	hash, err := RecordToHash(record)
	if err != nil {
		return fmt.Errorf("failed to serialize case record: %w", err)
	}

	key := RecordKey(s.instanceName, record.SessionID, record.Version)
	indexKey := VersionIndexKey(s.instanceName, record.SessionID)

	txErr := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check record existence: %w", err)
		}
		if exists > 0 {
			return ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, hash)
			pipe.ZAdd(ctx, indexKey, redis.Z{
				Score:  VersionScore(record.Version),
				Member: key,
			})
			return nil
		})
		return err
	}, key)

	if errors.Is(txErr, redis.TxFailedErr) {
		return ErrConflict
	}
	return txErr
}

// PublishProgress publishes a workflow lifecycle event to the instance's
// progress channel. Delivery is at-most-once; failures are surfaced but
// observers must never gate control flow on them.
func (s *Store) PublishProgress(ctx context.Context, ev ProgressEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}

	channel := ProgressEventsChannel(s.instanceName)
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish progress event: %w", err)
	}

	return nil
}

// ProgressSubscription is an active Pub/Sub subscription to progress events.
// Caller must call Close() when done to clean up resources.
type ProgressSubscription struct {
	events <-chan *ProgressEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of progress events.
// The channel is closed when the subscription is closed or the context is
// cancelled.
func (p *ProgressSubscription) Events() <-chan *ProgressEvent {
	return p.events
}

// Errors returns the channel of subscription errors. Errors are non-fatal;
// the subscription continues and the offending message is skipped.
func (p *ProgressSubscription) Errors() <-chan error {
	return p.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times.
func (p *ProgressSubscription) Close() error {
	p.once.Do(p.cancel)
	return nil
}

// SubscribeProgress subscribes to workflow progress events for this instance.
// Caller must call subscription.Close() when done; context cancellation also
// stops the subscription. Events are delivered on a buffered channel (size
// 10); slow subscribers may miss events (Redis Pub/Sub is at-most-once).
func (s *Store) SubscribeProgress(ctx context.Context) (*ProgressSubscription, error) {
	channel := ProgressEventsChannel(s.instanceName)
	pubsub := s.rdb.Subscribe(ctx, channel)

	eventsChan := make(chan *ProgressEvent, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal progress event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &ProgressSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error
// (redis.Nil). Use this to check ReadLatest/ReadVersion results.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
