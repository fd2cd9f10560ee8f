package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func TestRedisSubmitLock(t *testing.T) {
	server, client := newMiniRedis(t)
	locker := NewSubmitLocker(client, "test", zerolog.Nop())
	ctx := context.Background()

	release, err := locker.Acquire(ctx, 9, time.Minute)
	require.NoError(t, err)
	require.True(t, server.Exists("test:submit-lock:9"))

	_, err = locker.Acquire(ctx, 9, time.Minute)
	require.ErrorIs(t, err, ErrSubmitInProgress)

	other, err := locker.Acquire(ctx, 10, time.Minute)
	require.NoError(t, err)
	other()

	release()
	require.False(t, server.Exists("test:submit-lock:9"))

	again, err := locker.Acquire(ctx, 9, time.Minute)
	require.NoError(t, err)
	again()
}

func TestRedisSubmitLockExpires(t *testing.T) {
	server, client := newMiniRedis(t)
	locker := NewSubmitLocker(client, "test", zerolog.Nop())
	ctx := context.Background()

	_, err := locker.Acquire(ctx, 1, time.Second)
	require.NoError(t, err)

	server.FastForward(2 * time.Second)

	release, err := locker.Acquire(ctx, 1, time.Second)
	require.NoError(t, err)
	release()
}

func TestRedisSubmitLockFallsBackWhenRedisDown(t *testing.T) {
	server, client := newMiniRedis(t)
	locker := NewSubmitLocker(client, "test", zerolog.Nop())
	server.Close()

	release, err := locker.Acquire(context.Background(), 3, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), 3, time.Minute)
	require.ErrorIs(t, err, ErrSubmitInProgress)
	release()
}

func TestEventPublisherRedis(t *testing.T) {
	_, client := newMiniRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "jobify:assessment:submitted")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewEventPublisher(client, nil, "jobify:assessment", zerolog.Nop())
	score := 87.5
	publisher.Publish(ctx, AssessmentEvent{Kind: EventKindSubmitted, AttemptID: 4, ApplicationID: 2, UserID: 7, Score: &score})

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var event AssessmentEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	require.Equal(t, EventKindSubmitted, event.Kind)
	require.Equal(t, uint(4), event.AttemptID)
	require.NotEmpty(t, event.ID)
	require.NotNil(t, event.Score)
	require.Equal(t, 87.5, *event.Score)
}

func TestEventPublisherSwallowsFailures(t *testing.T) {
	server, client := newMiniRedis(t)
	server.Close()

	publisher := NewEventPublisher(client, nil, "", zerolog.Nop())
	require.NotPanics(t, func() {
		publisher.Publish(context.Background(), AssessmentEvent{Kind: EventKindFlagged})
	})
}
