package rulestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const redisRulesPrefix = "antigcast/rules/"

// RuleStore backed by redis: one string key for the enabled flag, and one set per term list.
type RedisRuleStore struct {
	Client *redis.Client
}

var _ RuleStore = (*RedisRuleStore)(nil)

func NewRedisRuleStore(rdb *redis.Client) *RedisRuleStore {
	return &RedisRuleStore{Client: rdb}
}

func redisEnabledKey(chatID int64) string {
	return fmt.Sprintf("%s%d/enabled", redisRulesPrefix, chatID)
}

func redisTermsKey(chatID int64, kind ListKind) string {
	return fmt.Sprintf("%s%d/%s", redisRulesPrefix, chatID, kind)
}

func (s *RedisRuleStore) FetchRuleSet(ctx context.Context, chatID int64) (*RuleSet, error) {
	// fetch all three keys in a single redis round-trip
	multi := s.Client.Pipeline()
	enabledCmd := multi.Get(ctx, redisEnabledKey(chatID))
	denyCmd := multi.SMembers(ctx, redisTermsKey(chatID, DenyList))
	allowCmd := multi.SMembers(ctx, redisTermsKey(chatID, AllowList))
	_, err := multi.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("fetching ruleset from redis: %w", err)
	}

	rs := RuleSet{}
	raw, err := enabledCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if err == nil {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: enabled flag for chat %d: %q", ErrMalformedRecord, chatID, raw)
		}
		rs.Enabled = enabled
	}
	deny, err := denyCmd.Result()
	if err != nil {
		return nil, err
	}
	allow, err := allowCmd.Result()
	if err != nil {
		return nil, err
	}
	rs.Denylist = NormalizeTerms(deny)
	rs.Allowlist = NormalizeTerms(allow)
	return &rs, nil
}

func (s *RedisRuleStore) WriteEnabled(ctx context.Context, chatID int64, enabled bool) error {
	return s.Client.Set(ctx, redisEnabledKey(chatID), strconv.FormatBool(enabled), 0).Err()
}

func (s *RedisRuleStore) AddTerm(ctx context.Context, chatID int64, kind ListKind, term string) error {
	term, err := NormalizeTerm(term)
	if err != nil {
		return err
	}
	return s.Client.SAdd(ctx, redisTermsKey(chatID, kind), term).Err()
}

func (s *RedisRuleStore) RemoveTerm(ctx context.Context, chatID int64, kind ListKind, term string) error {
	term, err := NormalizeTerm(term)
	if err != nil {
		return err
	}
	return s.Client.SRem(ctx, redisTermsKey(chatID, kind), term).Err()
}
