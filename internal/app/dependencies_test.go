package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autobidder/internal/config"
)

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr()+"/0", false, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestConnectRedisRejectsBadURL(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "not-a-url", false, zerolog.Nop())
	require.Error(t, err)
}

func TestConnectRedisFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := ConnectRedis(context.Background(), "redis://"+addr, false, zerolog.Nop())
	require.Error(t, err)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, Options{})
	require.Error(t, err)
}

func TestNewFailsOnBadDatabaseURL(t *testing.T) {
	cfg := &config.Config{
		DatabaseURL: "::not a url::",
		RedisURL:    "redis://127.0.0.1:1",
		LogFormat:   "json",
		LogLevel:    "error",
	}

	_, err := New(context.Background(), cfg, Options{Component: "test"})
	require.Error(t, err)
}
