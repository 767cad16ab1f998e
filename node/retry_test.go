package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	ctx := context.Background()
	fail := errors.New("fail")

	t.Run("succeeds eventually", func(t *testing.T) {
		calls := 0
		err := retry(ctx, newBackOff(time.Millisecond, time.Second), func() error {
			calls++
			if calls < 3 {
				return fail
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent stops", func(t *testing.T) {
		calls := 0
		err := retry(ctx, newBackOff(time.Millisecond, time.Second), func() error {
			calls++
			return permanent(fail)
		})
		assert.Equal(t, fail, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		err := retry(ctx, newBackOff(time.Millisecond, 20*time.Millisecond), func() error {
			return fail
		})
		assert.Equal(t, fail, err)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		err := retry(ctx, newBackOff(time.Hour, time.Hour), func() error {
			return fail
		})
		assert.Equal(t, context.Canceled, err)
	})
}
