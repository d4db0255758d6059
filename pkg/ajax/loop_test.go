package ajax_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/keboola/go-ajax/pkg/ajax"
)

func TestLoop_RunPending(t *testing.T) {
	t.Parallel()
	l := NewLoop()

	var order []int
	l.Post(func() { order = append(order, 1) })
	l.Post(func() {
		order = append(order, 2)
		l.Post(func() { order = append(order, 3) })
	})
	assert.Equal(t, 2, l.Pending())
	assert.Empty(t, order)

	assert.Equal(t, 3, l.RunPending())
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, l.RunPending())
}

func TestLoop_RunUntil(t *testing.T) {
	t.Parallel()
	l := NewLoop()
	done := make(chan struct{})

	// Tasks are posted from other goroutines
	var wg sync.WaitGroup
	var lock sync.Mutex
	count := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Post(func() {
				lock.Lock()
				defer lock.Unlock()
				count++
				if count == 10 {
					close(done)
				}
			})
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, l.RunUntil(ctx, done))
	wg.Wait()
	assert.Equal(t, 10, count)
}

func TestLoop_Run_Canceled(t *testing.T) {
	t.Parallel()
	l := NewLoop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Run(ctx), context.DeadlineExceeded)
}
