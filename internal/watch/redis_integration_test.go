//go:build integration

package watch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variantlab/decider/internal/testsupport"
)

func TestRedisLoader_Integration(t *testing.T) {
	ctx := context.Background()

	rc, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Terminate(context.Background()) })

	client, err := NewRedisClient(ctx, rc.Addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	loader := NewRedisLoader(client, "decider:config")

	t.Run("Should fail while the key is absent", func(t *testing.T) {
		_, err := loader.Load(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not present")
	})

	t.Run("Should load the blob once published", func(t *testing.T) {
		require.NoError(t, rc.Client.Set(ctx, "decider:config", []byte(`{"v":1}`), 0).Err())

		blob, err := loader.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"v":1}`), blob)
	})

	t.Run("Should drive a watcher end to end", func(t *testing.T) {
		require.NoError(t, rc.Client.Set(ctx, "decider:config", []byte(`{"v":2}`), 0).Err())

		parser := &countingParser{}
		w := New(loader, parser.parse, Config{
			Interval:         time.Second,
			FirstLoadTimeout: 5 * time.Second,
		}, watchLogger())

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() { _ = w.Run(runCtx) }()

		require.NoError(t, w.WaitReady(runCtx))
		_, err := w.Engine()
		assert.NoError(t, err)
	})
}

func TestNewRedisClient_FailsFast(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "")
	assert.Error(t, err)
}
