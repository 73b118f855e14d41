package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/models"
)

var ErrFlowNotFound = errors.New("flow not found")

// FlowStore persists authentication flows and their terminal results.
type FlowStore interface {
	SaveFlow(ctx context.Context, flow *models.PendingFlow, ttl time.Duration) error
	GetFlow(ctx context.Context, flowID string) (*models.PendingFlow, error)
	ClaimTerminal(ctx context.Context, flowID string) (bool, error)
	StoreTerminalResult(ctx context.Context, flowID string, result models.ValidationResult) error
	GetTerminalResult(ctx context.Context, flowID string) (*models.ValidationResult, error)
	CheckRateLimit(ctx context.Context, playerID, action string, limit int, window time.Duration) (bool, error)
	AcquireSubmitLock(ctx context.Context, owner string) (bool, error)
	ReleaseSubmitLock(ctx context.Context, owner string) error
}

type RedisService struct {
	client *redis.Client
}

func NewRedisService(ctx context.Context, cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisService{client: client}, nil
}

// NewRedisServiceWithClient wraps an existing client.
func NewRedisServiceWithClient(client *redis.Client) *RedisService {
	return &RedisService{client: client}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) SaveFlow(ctx context.Context, flow *models.PendingFlow, ttl time.Duration) error {
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}

	key := fmt.Sprintf(KeyFlow, flow.ID)
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}
	return nil
}

func (s *RedisService) GetFlow(ctx context.Context, flowID string) (*models.PendingFlow, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(KeyFlow, flowID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}

	var flow models.PendingFlow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
	}
	return &flow, nil
}

// ClaimTerminal takes the single terminal slot of a flow. Only the first
// caller gets true.
func (s *RedisService) ClaimTerminal(ctx context.Context, flowID string) (bool, error) {
	key := fmt.Sprintf(KeyFlowTerminal, flowID)
	ok, err := s.client.SetNX(ctx, key, terminalClaimed, TTLTerminal).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim flow: %w", err)
	}
	return ok, nil
}

// StoreTerminalResult records the result of a claimed flow and drops the
// pending flow record.
func (s *RedisService) StoreTerminalResult(ctx context.Context, flowID string, result models.ValidationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(KeyFlowTerminal, flowID), data, TTLTerminal)
	pipe.Del(ctx, fmt.Sprintf(KeyFlow, flowID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

// GetTerminalResult returns the stored result, or nil when the flow has not
// been resolved or is still being resolved.
func (s *RedisService) GetTerminalResult(ctx context.Context, flowID string) (*models.ValidationResult, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(KeyFlowTerminal, flowID)).Bytes()
	if errors.Is(err, redis.Nil) || string(data) == terminalClaimed {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	var result models.ValidationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

func (s *RedisService) CheckRateLimit(ctx context.Context, playerID, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, playerID, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if count == 1 {
		s.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

func (s *RedisService) ClearRateLimit(ctx context.Context, playerID, action string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyRateLimit, playerID, action)).Err()
}

// AcquireSubmitLock guards against a second validate or redeem call while
// one is in flight.
func (s *RedisService) AcquireSubmitLock(ctx context.Context, owner string) (bool, error) {
	ok, err := s.client.SetNX(ctx, fmt.Sprintf(KeySubmitLock, owner), time.Now().Unix(), TTLSubmitLock).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire submit lock: %w", err)
	}
	return ok, nil
}

func (s *RedisService) ReleaseSubmitLock(ctx context.Context, owner string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeySubmitLock, owner)).Err()
}
