package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StagingTTL is how long a generated affidavit waits for confirmation.
const StagingTTL = time.Hour

// EmailPreview is the confirmation mail shown before submit.
type EmailPreview struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	HTML           string `json:"html"`
	AttachmentName string `json:"attachmentName"`
}

// Verification is a generated affidavit waiting for the parent's signature.
type Verification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	FormData  json.RawMessage `json:"formData"`
	PDF       []byte          `json:"pdf"`
	Email     EmailPreview    `json:"email"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (s *RedisStore) stagingKey(id string) string {
	return s.stagingPrefix + id
}

// StageVerification stores v until ttl elapses. A zero ttl uses StagingTTL.
func (s *RedisStore) StageVerification(ctx context.Context, v Verification, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = StagingTTL
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	if err := s.client.Set(ctx, s.stagingKey(v.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("stage verification: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadVerification(ctx context.Context, id string) (Verification, error) {
	raw, err := s.client.Get(ctx, s.stagingKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Verification{}, ErrNotFound
	}
	if err != nil {
		return Verification{}, fmt.Errorf("load verification: %w", err)
	}
	var v Verification
	if err := json.Unmarshal(raw, &v); err != nil {
		return Verification{}, fmt.Errorf("unmarshal verification: %w", err)
	}
	return v, nil
}

func (s *RedisStore) DeleteVerification(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.stagingKey(id)).Err(); err != nil {
		return fmt.Errorf("delete verification: %w", err)
	}
	return nil
}

// MemoryStaging keeps staged verifications in process. Used when no Redis
// is configured; staged payloads do not survive a restart.
type MemoryStaging struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value     Verification
	expiresAt time.Time
}

func NewMemoryStaging() *MemoryStaging {
	return &MemoryStaging{items: map[string]memoryItem{}, now: time.Now}
}

func (m *MemoryStaging) StageVerification(_ context.Context, v Verification, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = StagingTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	m.items[v.ID] = memoryItem{value: v, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStaging) LoadVerification(_ context.Context, id string) (Verification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || !m.now().Before(item.expiresAt) {
		delete(m.items, id)
		return Verification{}, ErrNotFound
	}
	return item.value, nil
}

func (m *MemoryStaging) DeleteVerification(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *MemoryStaging) sweep() {
	now := m.now()
	for id, item := range m.items {
		if !now.Before(item.expiresAt) {
			delete(m.items, id)
		}
	}
}
