package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SubmitLocker prevents two graders from working on one attempt at once.
type SubmitLocker interface {
	Acquire(ctx context.Context, attemptID uint, ttl time.Duration) (func(), error)
}

// NewSubmitLocker returns a Redis backed locker, or a process-local one when
// redisClient is nil.
func NewSubmitLocker(redisClient *redis.Client, prefix string, logger zerolog.Logger) SubmitLocker {
	local := &localSubmitLocker{held: make(map[uint]struct{})}
	if redisClient == nil {
		return local
	}
	if prefix == "" {
		prefix = "jobify:assessment"
	}
	return &redisSubmitLocker{
		client:   redisClient,
		prefix:   prefix,
		fallback: local,
		logger:   logger.With().Str("component", "submit_lock").Logger(),
	}
}

type redisSubmitLocker struct {
	client   *redis.Client
	prefix   string
	fallback *localSubmitLocker
	logger   zerolog.Logger
}

func (l *redisSubmitLocker) Acquire(ctx context.Context, attemptID uint, ttl time.Duration) (func(), error) {
	key := fmt.Sprintf("%s:submit-lock:%d", l.prefix, attemptID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		l.logger.Warn().Err(err).Uint("attempt_id", attemptID).Msg("redis lock unavailable, using local lock")
		return l.fallback.Acquire(ctx, attemptID, ttl)
	}
	if !ok {
		return nil, ErrSubmitInProgress
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("failed to release submit lock")
		}
	}, nil
}

type localSubmitLocker struct {
	mu   sync.Mutex
	held map[uint]struct{}
}

func (l *localSubmitLocker) Acquire(_ context.Context, attemptID uint, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[attemptID]; busy {
		return nil, ErrSubmitInProgress
	}
	l.held[attemptID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, attemptID)
			l.mu.Unlock()
		})
	}, nil
}
