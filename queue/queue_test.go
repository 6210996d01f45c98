// Copyright 2025 The apcdiag authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padwerk/apcdiag/queue"
)

func TestFIFO(t *testing.T) {
	q := queue.New[int](4)
	for i := 1; i <= 4; i++ {
		q.Put(i)
	}
	assert.Equal(t, 4, q.Len())
	for i := 1; i <= 4; i++ {
		v, ok := q.TryGet()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.TryGet()
	assert.False(t, ok, "TryGet on empty queue")
	assert.EqualValues(t, 0, q.Dropped())
}

func TestDropOldest(t *testing.T) {
	q := queue.New[int](3)
	for i := 1; i <= 5; i++ {
		q.Put(i)
	}
	assert.Equal(t, 3, q.Len())
	assert.EqualValues(t, 2, q.Dropped())

	var got []int
	for {
		v, ok := q.TryGet()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5}, got, "the oldest entries must be shed")

	st := q.Stats()
	assert.Equal(t, queue.Stats{Enqueued: 5, Dequeued: 3, Dropped: 2, MaxDepth: 3}, st)
}

func TestGetBlocks(t *testing.T) {
	q := queue.New[string](8)

	done := make(chan string, 1)
	go func() {
		v, err := q.Get(context.Background())
		if err != nil {
			t.Errorf("Get: unexpected error: %v", err)
		}
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	q.Put("hello")
	select {
	case v := <-done:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("Get did not observe the Put")
	}
}

func TestGetContext(t *testing.T) {
	q := queue.New[int](8)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	q := queue.New[int](8)
	q.Put(1)
	q.Put(2)
	q.Close()
	q.Close() // idempotent
	q.Put(3)  // discarded

	v, err := q.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = q.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = q.Get(context.Background())
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestConcurrent(t *testing.T) {
	q := queue.New[int](128)

	const producers, perProducer = 4, 100
	var wg sync.WaitGroup
	for i := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range perProducer {
				q.Put(i*perProducer + j)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var consumed int
	var cwg sync.WaitGroup
	var μ sync.Mutex
	for range 2 {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				if _, err := q.Get(ctx); err != nil {
					return
				}
				μ.Lock()
				consumed++
				μ.Unlock()
			}
		}()
	}

	wg.Wait()
	// Wait for the consumers to drain the queue, then release them.
	deadline := time.Now().Add(time.Second)
	for q.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	q.Close()
	cwg.Wait()

	μ.Lock()
	defer μ.Unlock()
	assert.EqualValues(t, producers*perProducer, consumed+int(q.Dropped()))
}
