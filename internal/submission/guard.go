package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultLockTTL    = 2 * time.Minute
	defaultReceiptTTL = 24 * time.Hour
)

// unlockScript deletes the lock only if we still own it.
var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Guard deduplicates dispatches that share an attempt nonce.
type Guard interface {
	// Begin returns the stored receipt for nonce if one exists. Otherwise it takes the
	// in-flight lock and returns a release func, or ErrDuplicateInFlight.
	Begin(ctx context.Context, nonce string) (*Receipt, func(), error)
	// Complete stores the receipt so replays of nonce return it without a network call.
	Complete(ctx context.Context, nonce string, receipt Receipt) error
}

// RedisGuard implements Guard with SETNX locks and TTL'd receipts.
type RedisGuard struct {
	redis      *redis.Client
	lockTTL    time.Duration
	receiptTTL time.Duration
	logger     zerolog.Logger
}

var _ Guard = (*RedisGuard)(nil)

// GuardOptions tunes key lifetimes.
type GuardOptions struct {
	LockTTL    time.Duration
	ReceiptTTL time.Duration
}

func NewRedisGuard(client *redis.Client, opts GuardOptions, logger zerolog.Logger) *RedisGuard {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.ReceiptTTL <= 0 {
		opts.ReceiptTTL = defaultReceiptTTL
	}
	return &RedisGuard{
		redis:      client,
		lockTTL:    opts.LockTTL,
		receiptTTL: opts.ReceiptTTL,
		logger:     logger.With().Str("component", "submission_guard").Logger(),
	}
}

func lockKey(nonce string) string    { return fmt.Sprintf("submission:lock:%s", nonce) }
func receiptKey(nonce string) string { return fmt.Sprintf("submission:receipt:%s", nonce) }

func (g *RedisGuard) Begin(ctx context.Context, nonce string) (*Receipt, func(), error) {
	prior, err := g.receipt(ctx, nonce)
	if err != nil {
		return nil, nil, err
	}
	if prior != nil {
		return prior, func() {}, nil
	}

	owner := uuid.NewString()
	key := lockKey(nonce)
	acquired, err := g.redis.SetNX(ctx, key, owner, g.lockTTL).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("acquire submission lock: %w", err)
	}
	if !acquired {
		return nil, nil, ErrDuplicateInFlight
	}

	release := func() {
		// the caller's context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, g.redis, []string{key}, owner).Err(); err != nil {
			g.logger.Warn().Err(err).Str("nonce", nonce).Msg("release submission lock failed")
		}
	}
	return nil, release, nil
}

func (g *RedisGuard) Complete(ctx context.Context, nonce string, receipt Receipt) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	if err := g.redis.Set(ctx, receiptKey(nonce), data, g.receiptTTL).Err(); err != nil {
		return fmt.Errorf("store receipt: %w", err)
	}
	return nil
}

func (g *RedisGuard) receipt(ctx context.Context, nonce string) (*Receipt, error) {
	data, err := g.redis.Get(ctx, receiptKey(nonce)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	var receipt Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("unmarshal receipt: %w", err)
	}
	return &receipt, nil
}
