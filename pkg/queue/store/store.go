package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"sendqueue/internal/metrics"
	"sendqueue/pkg/queue/types"

	"github.com/sirupsen/logrus"
)

// ErrDuplicateLocalID is returned when an item with the same local id is
// already queued.
var ErrDuplicateLocalID = fmt.Errorf("duplicate local id")

// ErrNotFound is returned by Update for an unknown local id.
var ErrNotFound = fmt.Errorf("queued message not found")

// QueueStore keeps the full queue in memory and writes the complete snapshot
// through to the KV backing on every mutation. It is the single source of
// truth for scheduling decisions.
//
// When the backing fails, mutations still apply in memory and a warning is
// raised; the store keeps trying to persist on subsequent mutations. This is
// degraded mode, not a fatal condition.
type QueueStore struct {
	mu       sync.Mutex
	kv       KV
	enc      *encryptor
	logger   *logrus.Logger
	items    []*types.QueuedMessage
	degraded bool
}

// New loads the persisted queue from kv and returns the store. A backing that
// fails to load leaves the store empty and degraded; a snapshot that fails to
// decode is a hard error, since silently discarding queued messages is worse
// than refusing to start.
func New(ctx context.Context, kv KV, logger *logrus.Logger) (*QueueStore, error) {
	if logger == nil {
		logger = logrus.New()
	}

	enc, err := newEncryptor()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot encryption: %w", err)
	}

	s := &QueueStore{kv: kv, enc: enc, logger: logger}

	data, err := kv.Load(ctx)
	if err != nil {
		s.degraded = true
		logger.WithError(err).Warn("Queue store backing unavailable, starting with empty in-memory queue")
		metrics.SetGauge("queue_store_degraded", 1, nil, "Queue store operating without durable backing")
		return s, nil
	}

	if len(data) > 0 {
		plaintext, err := enc.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt queue snapshot: %w", err)
		}
		if err := json.Unmarshal(plaintext, &s.items); err != nil {
			return nil, fmt.Errorf("failed to decode queue snapshot: %w", err)
		}
		sort.SliceStable(s.items, func(i, j int) bool {
			return s.items[i].EnqueuedAt.Before(s.items[j].EnqueuedAt)
		})
		// An attempt interrupted by a crash must not stay in-flight forever.
		for _, item := range s.items {
			if item.Status == types.ItemStatusInFlight {
				item.Status = types.ItemStatusPending
			}
		}
	}

	s.updateDepthGauge()
	return s, nil
}

func (s *QueueStore) Append(ctx context.Context, msg *types.QueuedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.LocalID == msg.LocalID {
			return fmt.Errorf("%w: %s", ErrDuplicateLocalID, msg.LocalID)
		}
	}

	copied := *msg
	s.items = append(s.items, &copied)
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].EnqueuedAt.Before(s.items[j].EnqueuedAt)
	})

	s.persist(ctx)
	s.updateDepthGauge()
	return nil
}

func (s *QueueStore) Remove(ctx context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.items {
		if item.LocalID == localID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			s.persist(ctx)
			s.updateDepthGauge()
			return nil
		}
	}
	return nil
}

func (s *QueueStore) Update(ctx context.Context, localID string, mutate func(*types.QueuedMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.LocalID == localID {
			mutate(item)
			s.persist(ctx)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, localID)
}

func (s *QueueStore) ListAll(ctx context.Context) ([]types.QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.QueuedMessage, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *QueueStore) ListForConversation(ctx context.Context, conversationID string) ([]types.QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.QueuedMessage
	for _, item := range s.items {
		if item.ConversationID == conversationID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *QueueStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.persist(ctx)
	s.updateDepthGauge()
	return nil
}

// Degraded reports whether the last write to the backing failed.
func (s *QueueStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// persist writes the full snapshot through to the backing. Callers hold s.mu.
func (s *QueueStore) persist(ctx context.Context) {
	data, err := json.Marshal(s.items)
	if err != nil {
		s.degraded = true
		s.logger.WithError(err).Error("Failed to encode queue snapshot")
		return
	}

	encrypted, err := s.enc.Encrypt(data)
	if err != nil {
		s.degraded = true
		s.logger.WithError(err).Error("Failed to encrypt queue snapshot")
		return
	}

	if err := s.kv.Save(ctx, encrypted); err != nil {
		if !s.degraded {
			s.logger.WithError(err).Warn("Queue store backing unavailable, holding queue in memory")
		}
		s.degraded = true
		metrics.SetGauge("queue_store_degraded", 1, nil, "Queue store operating without durable backing")
		return
	}

	if s.degraded {
		s.logger.Info("Queue store backing recovered")
	}
	s.degraded = false
	metrics.SetGauge("queue_store_degraded", 0, nil, "Queue store operating without durable backing")
}

func (s *QueueStore) updateDepthGauge() {
	metrics.SetGauge("queue_depth", float64(len(s.items)), nil, "Messages waiting for delivery")
}
