package price

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/flasharb/types"
)

// HashClient is the subset of *redis.Client the store uses.
type HashClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Close() error
}

// RedisStore keeps the last DEX-derived price of every token in a Redis hash
// at "<prefix>:<chain>:<address>" with fields "price" and "ts", and serves
// them back as an Oracle when no DEX can quote.
type RedisStore struct {
	client HashClient
	prefix string
	maxAge time.Duration
	now    func() time.Time
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Oracle = (*RedisStore)(nil)
)

// NewRedisStore creates a store. Prices older than maxAge are not served;
// zero disables the age check.
func NewRedisStore(client HashClient, prefix string, maxAge time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, maxAge: maxAge, now: time.Now}
}

// DialRedisStore connects to addr and checks the connection.
func DialRedisStore(ctx context.Context, addr, prefix string, maxAge time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedisStore(client, prefix, maxAge), nil
}

func (s *RedisStore) key(token types.Token) string {
	return fmt.Sprintf("%s:%d:%s", s.prefix, token.ChainID, strings.ToLower(token.Address.Hex()))
}

func (s *RedisStore) Save(ctx context.Context, token types.Token, p *types.Price) error {
	fields := map[string]interface{}{
		"price": p.Value.String(),
		"ts":    strconv.FormatInt(p.UpdatedAt.UnixNano(), 10),
	}
	if err := s.client.HSet(ctx, s.key(token), fields).Err(); err != nil {
		return fmt.Errorf("%w: redis: set price %s: %v", types.ErrProvider, token.Symbol, err)
	}
	return nil
}

// Price returns the stored price of token.
func (s *RedisStore) Price(ctx context.Context, token types.Token) (decimal.Decimal, error) {
	vals, err := s.client.HGetAll(ctx, s.key(token)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return decimal.Zero, fmt.Errorf("%w: redis: get price %s: %v", types.ErrProvider, token.Symbol, err)
	}

	raw, ok := vals["price"]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no stored price for %s", types.ErrProvider, token.Symbol)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("redis: parse price %s: %w", token.Symbol, err)
	}

	if s.maxAge > 0 {
		ts, err := strconv.ParseInt(vals["ts"], 10, 64)
		if err != nil {
			return decimal.Zero, fmt.Errorf("redis: parse ts %s: %w", token.Symbol, err)
		}
		if age := s.now().Sub(time.Unix(0, ts)); age > s.maxAge {
			return decimal.Zero, fmt.Errorf("%w: stored price for %s is %s old", types.ErrProvider, token.Symbol, age.Round(time.Second))
		}
	}
	return value, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
