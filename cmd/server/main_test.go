package main

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fakturin/backend/internal/config"
	"fakturin/backend/internal/store"
	"fakturin/backend/internal/store/memory"
	"fakturin/backend/internal/store/redisseq"
)

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	_, err = newLogger("loud", "text")
	assert.Error(t, err)

	_, err = newLogger("info", "xml")
	assert.Error(t, err)
}

func TestSelectCountersDefaultsToRepository(t *testing.T) {
	repo := memory.New()
	counters, err := selectCounters(context.Background(), config.Config{CounterBackend: config.CounterRepository}, repo, nil)
	require.NoError(t, err)
	assert.Same(t, repo, counters)
}

func TestSelectCountersRedisRequiresClient(t *testing.T) {
	_, err := selectCounters(context.Background(), config.Config{CounterBackend: config.CounterRedis}, memory.New(), nil)
	assert.Error(t, err)
}

func TestSelectCountersRedisUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := selectCounters(ctx, config.Config{CounterBackend: config.CounterRedis}, memory.New(), client)
	assert.ErrorIs(t, err, store.ErrStorageUnavailable)
}

func TestSelectCountersUnknownBackend(t *testing.T) {
	_, err := selectCounters(context.Background(), config.Config{CounterBackend: "etcd"}, memory.New(), nil)
	assert.Error(t, err)
}

func TestAppCommands(t *testing.T) {
	app := newApp()
	names := make([]string, 0, len(app.Commands))
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	assert.ElementsMatch(t, []string{"serve", "migrate"}, names)
	assert.NotNil(t, app.Action)
}

var _ store.CounterStore = (*redisseq.Store)(nil)
