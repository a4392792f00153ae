package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunIsolatesErrors(t *testing.T) {
	outcomes := Run(context.Background(), 4, 10, func(_ context.Context, i int) error {
		if i%3 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	assert.Len(t, outcomes, 10)
	for _, o := range outcomes {
		if o.Index%3 == 0 {
			assert.Error(t, o.Err)
		} else {
			assert.NoError(t, o.Err)
		}
	}
}

func TestRunRespectsLimit(t *testing.T) {
	var current, max int64
	Run(context.Background(), 3, 30, func(_ context.Context, _ int) error {
		n := atomic.AddInt64(&current, 1)
		for {
			old := atomic.LoadInt64(&max)
			if n <= old || atomic.CompareAndSwapInt64(&max, old, n) {
				break
			}
		}
		atomic.AddInt64(&current, -1)
		return nil
	})
	assert.LessOrEqual(t, atomic.LoadInt64(&max), int64(3))
}

func TestRunZeroTasks(t *testing.T) {
	outcomes := Run(context.Background(), 4, 0, func(context.Context, int) error {
		t.Fatal("should not be called")
		return nil
	})
	assert.Empty(t, outcomes)
}

func TestRunFailFastReturnsFirstError(t *testing.T) {
	var ran int32
	err := RunFailFast(context.Background(), 1, 5, func(_ context.Context, i int) error {
		atomic.AddInt32(&ran, 1)
		if i == 0 {
			return errors.New("boom")
		}
		return nil
	})
	assert.Error(t, err)
}
