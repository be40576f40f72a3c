// Package memory is the Redis-backed user-context store: preferences,
// newsletter history, and engagement metrics. All operations are best-effort
// from the pipeline's point of view but always surface their errors so
// callers can log them.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/srthkdev/newsletter-ai-sub000/config"
)

const (
	prefsKeyFmt      = "user_prefs:%s"
	contextKeyFmt    = "user_context:%s:%s"
	newsletterKeyFmt = "newsletter:%s:%s"
	historyKeyFmt    = "newsletter_list:%s"
	engagementKeyFmt = "engagement:%s"

	historyLimit = 50
)

// Store wraps a Redis client with the user-context schema.
type Store struct {
	rdb *redis.Client
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Addr(), err)
	}
	return &Store{rdb: rdb}, nil
}

// NewWithClient wraps an existing client; used by tests with miniredis.
func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// StoreUserPreferences replaces the stored preferences for a user.
func (s *Store) StoreUserPreferences(ctx context.Context, userID string, prefs map[string]interface{}) error {
	b, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	if err := s.rdb.Set(ctx, fmt.Sprintf(prefsKeyFmt, userID), b, 0).Err(); err != nil {
		return fmt.Errorf("store preferences: %w", err)
	}
	return nil
}

// GetUserPreferences returns the stored preferences, or nil when none exist.
func (s *Store) GetUserPreferences(ctx context.Context, userID string) (map[string]interface{}, error) {
	raw, err := s.rdb.Get(ctx, fmt.Sprintf(prefsKeyFmt, userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	var prefs map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return prefs, nil
}

// StoreUserContext stores an arbitrary context blob under a typed key.
func (s *Store) StoreUserContext(ctx context.Context, userID, contextType string, data map[string]interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	key := fmt.Sprintf(contextKeyFmt, userID, contextType)
	if err := s.rdb.Set(ctx, key, b, 30*24*time.Hour).Err(); err != nil {
		return fmt.Errorf("store context: %w", err)
	}
	return nil
}

// GetUserContext fetches a context blob, or nil when absent.
func (s *Store) GetUserContext(ctx context.Context, userID, contextType string) (map[string]interface{}, error) {
	raw, err := s.rdb.Get(ctx, fmt.Sprintf(contextKeyFmt, userID, contextType)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	return data, nil
}

// StoreNewsletter appends a generated newsletter to the user's history.
// The data map must carry an "id" field.
func (s *Store) StoreNewsletter(ctx context.Context, userID string, data map[string]interface{}) error {
	id, _ := data["id"].(string)
	if id == "" {
		return fmt.Errorf("newsletter data missing id")
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal newsletter: %w", err)
	}
	key := fmt.Sprintf(newsletterKeyFmt, userID, id)
	listKey := fmt.Sprintf(historyKeyFmt, userID)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, b, 90*24*time.Hour)
	pipe.LPush(ctx, listKey, id)
	pipe.LTrim(ctx, listKey, 0, historyLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store newsletter: %w", err)
	}
	return nil
}

// GetNewsletterHistory returns the most recent newsletters, newest first.
func (s *Store) GetNewsletterHistory(ctx context.Context, userID string, limit int) ([]map[string]interface{}, error) {
	if limit <= 0 || limit > historyLimit {
		limit = 10
	}
	ids, err := s.rdb.LRange(ctx, fmt.Sprintf(historyKeyFmt, userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	var out []map[string]interface{}
	for _, id := range ids {
		raw, err := s.rdb.Get(ctx, fmt.Sprintf(newsletterKeyFmt, userID, id)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get newsletter %s: %w", id, err)
		}
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			continue
		}
		out = append(out, data)
	}
	return out, nil
}

// UpdateEngagementMetrics increments the per-action counter and records the
// last event for a user.
func (s *Store) UpdateEngagementMetrics(ctx context.Context, userID, newsletterID, action string, metadata map[string]interface{}) error {
	key := fmt.Sprintf(engagementKeyFmt, userID)
	metrics, err := s.GetEngagementMetrics(ctx, userID)
	if err != nil {
		return err
	}
	if metrics == nil {
		metrics = map[string]interface{}{}
	}
	counts, _ := metrics["actions"].(map[string]interface{})
	if counts == nil {
		counts = map[string]interface{}{}
	}
	switch v := counts[action].(type) {
	case float64:
		counts[action] = v + 1
	default:
		counts[action] = float64(1)
	}
	metrics["actions"] = counts
	metrics["last_action"] = action
	metrics["last_newsletter_id"] = newsletterID
	metrics["last_event_at"] = time.Now().UTC().Format(time.RFC3339)
	if metadata != nil {
		metrics["last_metadata"] = metadata
	}
	b, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal engagement: %w", err)
	}
	if err := s.rdb.Set(ctx, key, b, 0).Err(); err != nil {
		return fmt.Errorf("store engagement: %w", err)
	}
	return nil
}

// GetEngagementMetrics returns the engagement record, or nil when absent.
func (s *Store) GetEngagementMetrics(ctx context.Context, userID string) (map[string]interface{}, error) {
	raw, err := s.rdb.Get(ctx, fmt.Sprintf(engagementKeyFmt, userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get engagement: %w", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode engagement: %w", err)
	}
	return data, nil
}

// ClearUserData removes every stored key for a user.
func (s *Store) ClearUserData(ctx context.Context, userID string) error {
	patterns := []string{
		fmt.Sprintf(prefsKeyFmt, userID),
		fmt.Sprintf(historyKeyFmt, userID),
		fmt.Sprintf(engagementKeyFmt, userID),
	}
	if err := s.rdb.Del(ctx, patterns...).Err(); err != nil {
		return fmt.Errorf("clear user data: %w", err)
	}
	for _, pattern := range []string{
		fmt.Sprintf(contextKeyFmt, userID, "*"),
		fmt.Sprintf(newsletterKeyFmt, userID, "*"),
	} {
		keys, err := s.rdb.Keys(ctx, pattern).Result()
		if err != nil {
			return fmt.Errorf("scan user keys: %w", err)
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("clear user data: %w", err)
			}
		}
	}
	return nil
}

// Client exposes the underlying Redis client for shared infrastructure such
// as the scheduler's dispatch lock.
func (s *Store) Client() *redis.Client { return s.rdb }
