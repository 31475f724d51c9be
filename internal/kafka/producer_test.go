package kafka

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pyoush/e-commerce-hooks-store/internal/catalog"
)

func TestPublishAfterCloseIsDropped(t *testing.T) {
	p := NewProducer([]string{"broker:9092"}, catalog.TopicProductsFeed, 8)
	p.Publish([]byte("alice"), []byte(`{}`))
	p.Close()
	p.Close() // idempotent

	// a mutation still in flight during shutdown must not panic
	p.Publish([]byte("alice"), []byte(`{}`))

	m, ok := <-p.inbox
	assert.True(t, ok)
	assert.Equal(t, []byte("alice"), m.Key)
	_, ok = <-p.inbox
	assert.False(t, ok, "late publish must not reach the closed inbox")
}

func TestPublishConcurrentWithClose(t *testing.T) {
	p := NewProducer([]string{"broker:9092"}, catalog.TopicProductsFeed, 64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.Publish([]byte("k"), []byte(`{}`))
			}
		}()
	}
	p.Close()
	wg.Wait()
}

func TestPublishFullInboxDropsInsteadOfBlocking(t *testing.T) {
	p := NewProducer([]string{"broker:9092"}, catalog.TopicProductsFeed, 1)
	p.Publish([]byte("a"), []byte(`{}`))
	p.Publish([]byte("b"), []byte(`{}`)) // inbox full, must return

	assert.Len(t, p.inbox, 1)
	m := <-p.inbox
	assert.Equal(t, []byte("a"), m.Key)
}
