package jobqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsJobAndReturnsResult(t *testing.T) {
	q := New()
	defer q.Close()

	v, err := q.Submit(context.Background(), "alice", func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSameBucketSerializesInOrder(t *testing.T) {
	q := New()
	defer q.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_, err := q.Submit(context.Background(), "bob", func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil, nil
			})
			assert.NoError(t, err)
		}()
		// stagger submission so ordering is meaningful.
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestDistinctBucketsRunConcurrently(t *testing.T) {
	q := New()
	defer q.Close()

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	blockedA := make(chan struct{})
	go func() {
		defer wg.Done()
		_, _ = q.Submit(context.Background(), "a", func(ctx context.Context) (interface{}, error) {
			close(blockedA)
			<-start
			return nil, nil
		})
	}()

	go func() {
		defer wg.Done()
		<-blockedA
		_, err := q.Submit(context.Background(), "b", func(ctx context.Context) (interface{}, error) {
			return "unblocked", nil
		})
		assert.NoError(t, err)
		close(start)
	}()

	wg.Wait()
}

func TestSubmitRespectsContextCancellation(t *testing.T) {
	q := New()
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Submit(ctx, "cancelled", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
