package mailbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutCoalesces(t *testing.T) {
	m := New[string]()
	assert.True(t, m.Put("sweep"))
	assert.False(t, m.Put("sweep"))
	assert.True(t, m.Put("snapshot"))
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Pending("sweep"))

	k, ok := m.TryTake()
	require.True(t, ok)
	assert.Equal(t, "sweep", k)
	assert.False(t, m.Pending("sweep"))

	// taken keys may be queued again
	assert.True(t, m.Put("sweep"))

	k, _ = m.TryTake()
	assert.Equal(t, "snapshot", k)
	k, _ = m.TryTake()
	assert.Equal(t, "sweep", k)

	_, ok = m.TryTake()
	assert.False(t, ok)
}

func TestTakeWaitsForPut(t *testing.T) {
	m := New[int]()
	got := make(chan int, 1)
	go func() {
		k, ok := m.Take(context.Background())
		if ok {
			got <- k
		}
	}()

	time.Sleep(10 * time.Millisecond)
	m.Put(7)

	select {
	case k := <-got:
		assert.Equal(t, 7, k)
	case <-time.After(time.Second):
		t.Fatal("Take did not return")
	}
}

func TestTakeHonoursContext(t *testing.T) {
	m := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok := m.Take(ctx)
	assert.False(t, ok)
}

func TestConcurrentTakersDrainEverything(t *testing.T) {
	m := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := map[int]int{}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				k, ok := m.Take(ctx)
				if !ok {
					return
				}
				mu.Lock()
				seen[k]++
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < 100; i++ {
		m.Put(i)
	}
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 100
	}, time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
	for k, n := range seen {
		assert.Equal(t, 1, n, "key %d taken twice", k)
	}
}
