package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HiddenMessageStore guarda, por usuario, los ids de mensajes ocultados con
// "borrar para mí". El mensaje sigue existiendo para el resto del equipo.
type HiddenMessageStore interface {
	Hide(ctx context.Context, userID, messageID string) error
	HiddenFor(ctx context.Context, userID string) (map[string]struct{}, error)
}

type memoryHiddenStore struct {
	mu    sync.Mutex
	items map[string]map[string]struct{}
}

func NewMemoryHiddenStore() HiddenMessageStore {
	return &memoryHiddenStore{
		items: make(map[string]map[string]struct{}),
	}
}

func (s *memoryHiddenStore) Hide(_ context.Context, userID, messageID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(messageID) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.items[userID]
	if !ok {
		set = make(map[string]struct{})
		s.items[userID] = set
	}
	set[messageID] = struct{}{}
	return nil
}

func (s *memoryHiddenStore) HiddenFor(_ context.Context, userID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]struct{}, len(s.items[userID]))
	for id := range s.items[userID] {
		result[id] = struct{}{}
	}
	return result, nil
}

type redisHiddenStore struct {
	client *redis.Client
	prefix string
}

func NewRedisHiddenStore(client *redis.Client) HiddenMessageStore {
	if client == nil {
		return nil
	}
	return &redisHiddenStore{
		client: client,
		prefix: "chat:hidden:",
	}
}

func (s *redisHiddenStore) Hide(ctx context.Context, userID, messageID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(messageID) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.SAdd(ctx, s.prefix+userID, messageID).Err()
}

func (s *redisHiddenStore) HiddenFor(ctx context.Context, userID string) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	ids, err := s.client.SMembers(ctx, s.prefix+userID).Result()
	if err != nil {
		return nil, err
	}
	result := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		result[id] = struct{}{}
	}
	return result, nil
}
