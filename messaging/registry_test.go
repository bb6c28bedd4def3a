package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingChannel tracks how often it has been closed. The topology methods
// are never reached from registry tests.
type countingChannel struct {
	closed   atomic.Int32
	closeErr error
}

func (c *countingChannel) DeclareExchange(name, kind string, durable, autoDelete bool) error {
	return nil
}

func (c *countingChannel) DeclareQueue(name string, durable, exclusive, autoDelete bool, args map[string]interface{}) error {
	return nil
}

func (c *countingChannel) BindQueue(queue, exchange, routingKey string) error { return nil }

func (c *countingChannel) Qos(prefetchSize, prefetchCount int, global bool) error { return nil }

func (c *countingChannel) Consume(ctx context.Context, queue string, onDelivery func(Delivery) error) error {
	return nil
}

func (c *countingChannel) Close() error {
	c.closed.Add(1)
	return c.closeErr
}

func testConventions() Conventions {
	return Conventions{Exchange: "events", Queue: "svc/orderplaced", RoutingKey: "orderplaced"}
}

func TestRegisterOrReuseInsertsOnce(t *testing.T) {
	registry := NewSubscriptionRegistry(nil)
	conventions := testConventions()
	key := conventions.ChannelKey()

	ch := &countingChannel{}
	opens := 0

	entry, isNew, err := registry.RegisterOrReuse(key, conventions, func() (Channel, error) {
		opens++
		return ch, nil
	})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, conventions, entry.Conventions)
	assert.Equal(t, 1, registry.Len())

	// second registration reuses the entry without opening anything
	again, isNew, err := registry.RegisterOrReuse(key, conventions, func() (Channel, error) {
		opens++
		return &countingChannel{}, nil
	})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Same(t, entry, again)
	assert.Equal(t, 1, opens)
	assert.Equal(t, int32(0), ch.closed.Load())
}

func TestRegisterOrReuseOpenFailure(t *testing.T) {
	registry := NewSubscriptionRegistry(nil)
	conventions := testConventions()

	entry, isNew, err := registry.RegisterOrReuse(conventions.ChannelKey(), conventions, func() (Channel, error) {
		return nil, errors.New("connection closed")
	})
	require.Error(t, err)
	assert.Nil(t, entry)
	assert.False(t, isNew)
	assert.Equal(t, 0, registry.Len())
}

func TestRegisterOrReuseConcurrentLoserClosesOwnChannel(t *testing.T) {
	registry := NewSubscriptionRegistry(nil)
	conventions := testConventions()
	key := conventions.ChannelKey()

	const racers = 50

	var (
		mu       sync.Mutex
		channels []*countingChannel
		winners  atomic.Int32
	)

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, isNew, err := registry.RegisterOrReuse(key, conventions, func() (Channel, error) {
				ch := &countingChannel{}
				mu.Lock()
				channels = append(channels, ch)
				mu.Unlock()
				return ch, nil
			})
			assert.NoError(t, err)
			if isNew {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	// exactly one goroutine owns the entry
	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, 1, registry.Len())

	// every speculatively opened channel except the winner's is closed
	open := 0
	for _, ch := range channels {
		if ch.closed.Load() == 0 {
			open++
		}
	}
	assert.Equal(t, 1, open)
}

func TestDiscardRemovesAndCloses(t *testing.T) {
	registry := NewSubscriptionRegistry(nil)
	conventions := testConventions()
	ch := &countingChannel{}

	entry, isNew, err := registry.RegisterOrReuse(conventions.ChannelKey(), conventions, func() (Channel, error) {
		return ch, nil
	})
	require.NoError(t, err)
	require.True(t, isNew)

	registry.Discard(entry)
	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, int32(1), ch.closed.Load())

	// the key is free again after a discard
	_, isNew, err = registry.RegisterOrReuse(conventions.ChannelKey(), conventions, func() (Channel, error) {
		return &countingChannel{}, nil
	})
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestCloseAllReturnsFirstError(t *testing.T) {
	registry := NewSubscriptionRegistry(nil)

	good := &countingChannel{}
	bad := &countingChannel{closeErr: errors.New("channel already closed")}

	for i, ch := range []*countingChannel{good, bad} {
		conventions := Conventions{Exchange: "events", Queue: "svc/q", RoutingKey: string(rune('a' + i))}
		_, _, err := registry.RegisterOrReuse(conventions.ChannelKey(), conventions, func() (Channel, error) {
			return ch, nil
		})
		require.NoError(t, err)
	}

	err := registry.CloseAll()
	require.Error(t, err)
	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, int32(1), good.closed.Load())
	assert.Equal(t, int32(1), bad.closed.Load())
}
