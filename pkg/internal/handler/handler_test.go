package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Amount int `json:"amount"`
}

type result struct {
	Reference string `json:"reference"`
}

func TestNewHandler(t *testing.T) {
	t.Run("ctx and error", func(t *testing.T) {
		h, err := NewHandler(func(ctx context.Context, p payload) error { return nil })
		require.NoError(t, err)
		assert.True(t, h.HasContext)
		assert.False(t, h.HasResult)
		assert.NotNil(t, h.PayloadType)
	})

	t.Run("ctx and result", func(t *testing.T) {
		h, err := NewHandler(func(ctx context.Context, p payload) (result, error) {
			return result{}, nil
		})
		require.NoError(t, err)
		assert.True(t, h.HasContext)
		assert.True(t, h.HasResult)
	})

	t.Run("payload only", func(t *testing.T) {
		h, err := NewHandler(func(p payload) error { return nil })
		require.NoError(t, err)
		assert.False(t, h.HasContext)
	})

	t.Run("nil handler", func(t *testing.T) {
		_, err := NewHandler(nil)
		assert.Error(t, err)
	})

	t.Run("typed nil function", func(t *testing.T) {
		var fn func(ctx context.Context, p payload) error
		_, err := NewHandler(fn)
		assert.Error(t, err)
	})

	t.Run("not a function", func(t *testing.T) {
		_, err := NewHandler("charge")
		assert.Error(t, err)
	})

	t.Run("wrong return type", func(t *testing.T) {
		_, err := NewHandler(func(ctx context.Context, p payload) int { return 0 })
		assert.Error(t, err)
	})

	t.Run("too many arguments", func(t *testing.T) {
		_, err := NewHandler(func(ctx context.Context, a, b payload) error { return nil })
		assert.Error(t, err)
	})

	t.Run("no return", func(t *testing.T) {
		_, err := NewHandler(func(ctx context.Context, p payload) {})
		assert.Error(t, err)
	})
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("passes payload", func(t *testing.T) {
		var got payload
		h, err := NewHandler(func(ctx context.Context, p payload) error {
			got = p
			return nil
		})
		require.NoError(t, err)

		out, err := h.Execute(ctx, []byte(`{"amount":1500}`))
		require.NoError(t, err)
		assert.Nil(t, out)
		assert.Equal(t, 1500, got.Amount)
	})

	t.Run("returns handler error", func(t *testing.T) {
		want := errors.New("declined")
		h, err := NewHandler(func(ctx context.Context, p payload) error { return want })
		require.NoError(t, err)

		_, err = h.Execute(ctx, []byte(`{}`))
		assert.Equal(t, want, err)
	})

	t.Run("marshals result", func(t *testing.T) {
		h, err := NewHandler(func(ctx context.Context, p payload) (result, error) {
			return result{Reference: "ch_1"}, nil
		})
		require.NoError(t, err)

		out, err := h.Execute(ctx, []byte(`{}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"reference":"ch_1"}`, string(out))
	})

	t.Run("result discarded on error", func(t *testing.T) {
		h, err := NewHandler(func(ctx context.Context, p payload) (result, error) {
			return result{Reference: "ch_1"}, errors.New("declined")
		})
		require.NoError(t, err)

		out, err := h.Execute(ctx, []byte(`{}`))
		require.Error(t, err)
		assert.Nil(t, out)
	})

	t.Run("malformed payload", func(t *testing.T) {
		h, err := NewHandler(func(ctx context.Context, p payload) error { return nil })
		require.NoError(t, err)

		_, err = h.Execute(ctx, []byte(`not json`))
		assert.Error(t, err)
	})

	t.Run("context is forwarded", func(t *testing.T) {
		type key struct{}
		h, err := NewHandler(func(ctx context.Context, p payload) error {
			if ctx.Value(key{}) != "v" {
				return errors.New("missing value")
			}
			return nil
		})
		require.NoError(t, err)

		_, err = h.Execute(context.WithValue(ctx, key{}, "v"), []byte(`{}`))
		assert.NoError(t, err)
	})
}

func TestHandlerTimeoutField(t *testing.T) {
	h, err := NewHandler(func(ctx context.Context, p payload) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, h.Timeout)

	h.Timeout = 5 * time.Second
	assert.Equal(t, 5*time.Second, h.Timeout)
}
