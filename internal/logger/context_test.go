package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext(t *testing.T) {
	t.Parallel()

	t.Run("Should return the injected logger instance when present", func(t *testing.T) {
		expectedLogger := slog.New(slog.NewJSONHandler(io.Discard, nil))
		ctx := WithContext(context.Background(), expectedLogger)

		got := FromContext(ctx)

		// Pointer equality proves we got exactly the object we put in.
		assert.Same(t, expectedLogger, got)
	})

	t.Run("Should return the global default logger when context is empty", func(t *testing.T) {
		currentDefault := slog.Default()

		got := FromContext(context.Background())

		assert.Same(t, currentDefault, got, "Should fall back to slog.Default() to avoid nil panic")
	})
}
