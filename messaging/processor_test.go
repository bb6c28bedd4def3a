package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarthak1985/Convey/contracts"
)

// fakeDelivery records the disposition applied to it. Shared with
// subscriber_test.go.
type fakeDelivery struct {
	mu      sync.Mutex
	id      string
	corrID  string
	headers map[string]interface{}
	body    []byte
	acks    int
	nacks   int
	rejects int
	requeue bool
	ackErr  error
	nackErr error
}

func newFakeDelivery(id, corrID string, body []byte) *fakeDelivery {
	return &fakeDelivery{id: id, corrID: corrID, body: body}
}

func (d *fakeDelivery) MessageID() string     { return d.id }
func (d *fakeDelivery) CorrelationID() string { return d.corrID }
func (d *fakeDelivery) Timestamp() time.Time  { return time.Unix(1700000000, 0) }
func (d *fakeDelivery) Body() []byte          { return d.body }

func (d *fakeDelivery) Headers() map[string]interface{} {
	return d.headers
}

func (d *fakeDelivery) Ack() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acks++
	return d.ackErr
}

func (d *fakeDelivery) Nack(requeue bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nacks++
	d.requeue = requeue
	return d.nackErr
}

func (d *fakeDelivery) Reject(requeue bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejects++
	d.requeue = requeue
	return nil
}

func (d *fakeDelivery) counts() (acks, nacks, rejects int, requeue bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acks, d.nacks, d.rejects, d.requeue
}

// capturingPublisher records published rejected events.
type capturingPublisher struct {
	mu       sync.Mutex
	events   []contracts.Message
	corrIDs  []string
	contexts []contracts.CorrelationContext
	err      error
}

func (p *capturingPublisher) Publish(ctx context.Context, event contracts.Message, correlationID string, cc contracts.CorrelationContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	p.corrIDs = append(p.corrIDs, correlationID)
	p.contexts = append(p.contexts, cc)
	return nil
}

func testEnvelope() contracts.MessageEnvelope {
	return contracts.MessageEnvelope{
		MessageID:     "msg-1",
		CorrelationID: "corr-1",
		Timestamp:     1700000000,
	}
}

func TestProcessSuccessAcksAfterOneAttempt(t *testing.T) {
	d := newFakeDelivery("msg-1", "corr-1", nil)
	p := NewMessageProcessor(NewRetryPolicy(3, 10*time.Millisecond))

	var invocations int32
	disposition, err := p.Process(context.Background(), d, testEnvelope(), contracts.CorrelationContext{}, func(ctx context.Context) error {
		atomic.AddInt32(&invocations, 1)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, DispositionAcked, disposition)
	assert.Equal(t, int32(1), atomic.LoadInt32(&invocations))

	acks, nacks, rejects, _ := d.counts()
	assert.Equal(t, 1, acks)
	assert.Equal(t, 0, nacks)
	assert.Equal(t, 0, rejects)
}

func TestProcessRetriesThenSucceeds(t *testing.T) {
	d := newFakeDelivery("msg-1", "corr-1", nil)
	p := NewMessageProcessor(NewRetryPolicy(3, 5*time.Millisecond))

	var invocations int32
	disposition, err := p.Process(context.Background(), d, testEnvelope(), contracts.CorrelationContext{}, func(ctx context.Context) error {
		if atomic.AddInt32(&invocations, 1) == 1 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, DispositionAcked, disposition)
	assert.Equal(t, int32(2), atomic.LoadInt32(&invocations))

	acks, nacks, _, _ := d.counts()
	assert.Equal(t, 1, acks)
	assert.Equal(t, 0, nacks)
}

func TestProcessExhaustsRetriesAndNacks(t *testing.T) {
	d := newFakeDelivery("msg-1", "corr-1", nil)
	interval := 5 * time.Millisecond
	retries := 2
	p := NewMessageProcessor(NewRetryPolicy(retries, interval))

	var invocations int32
	start := time.Now()
	disposition, err := p.Process(context.Background(), d, testEnvelope(), contracts.CorrelationContext{}, func(ctx context.Context) error {
		atomic.AddInt32(&invocations, 1)
		return errors.New("always fails")
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, DispositionNacked, disposition)

	// retries = N means N+1 invocations, spaced by at least the interval
	assert.Equal(t, int32(retries+1), atomic.LoadInt32(&invocations))
	assert.GreaterOrEqual(t, elapsed, time.Duration(retries)*interval)

	acks, nacks, _, requeue := d.counts()
	assert.Equal(t, 0, acks)
	assert.Equal(t, 1, nacks)
	assert.False(t, requeue)
}

func TestProcessZeroRetriesAttemptsExactlyOnce(t *testing.T) {
	d := newFakeDelivery("msg-1", "corr-1", nil)
	p := NewMessageProcessor(RetryPolicy{MaxAttempts: 0, Interval: 5 * time.Millisecond})

	var invocations int32
	disposition, err := p.Process(context.Background(), d, testEnvelope(), contracts.CorrelationContext{}, func(ctx context.Context) error {
		atomic.AddInt32(&invocations, 1)
		return errors.New("boom")
	})

	require.NoError(t, err)
	assert.Equal(t, DispositionNacked, disposition)
	assert.Equal(t, int32(1), atomic.LoadInt32(&invocations))
}

func TestProcessNackRequeueFlag(t *testing.T) {
	d := newFakeDelivery("msg-1", "corr-1", nil)
	p := NewMessageProcessor(
		RetryPolicy{MaxAttempts: 0, Interval: time.Millisecond},
		WithRequeueFailedMessages(true),
	)

	_, err := p.Process(context.Background(), d, testEnvelope(), contracts.CorrelationContext{}, func(ctx context.Context) error {
		return errors.New("boom")
	})

	require.NoError(t, err)
	_, nacks, _, requeue := d.counts()
	assert.Equal(t, 1, nacks)
	assert.True(t, requeue)
}

func TestProcessMappedEventShortCircuitsRetries(t *testing.T) {
	d := newFakeDelivery("msg-1", "corr-1", nil)
	publisher := &capturingPublisher{}

	mapper := ExceptionMapperFunc(func(err error, envelope contracts.MessageEnvelope) contracts.Message {
		return contracts.NewRejectedEvent(err.Error(), "HANDLER_FAILED")
	})

	p := NewMessageProcessor(
		NewRetryPolicy(5, time.Millisecond),
		WithExceptionMapper(mapper),
		WithRejectedPublisher(publisher),
	)

	cc := contracts.NewCorrelationContext(map[string]string{"traceId": "t-1"})

	var invocations int32
	disposition, err := p.Process(context.Background(), d, testEnvelope(), cc, func(ctx context.Context) error {
		atomic.AddInt32(&invocations, 1)
		return errors.New("unrecoverable")
	})

	require.NoError(t, err)
	assert.Equal(t, DispositionRejected, disposition)

	// the mapped event takes priority over the remaining retry budget
	assert.Equal(t, int32(1), atomic.LoadInt32(&invocations))

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "corr-1", publisher.corrIDs[0])
	assert.Equal(t, "corr-1", publisher.events[0].GetCorrelationID())

	got, ok := publisher.contexts[0].Get("traceId")
	require.True(t, ok)
	assert.Equal(t, "t-1", got)

	acks, nacks, _, _ := d.counts()
	assert.Equal(t, 1, acks)
	assert.Equal(t, 0, nacks)
}

func TestProcessPublishFailureFallsBackToNack(t *testing.T) {
	d := newFakeDelivery("msg-1", "corr-1", nil)
	publisher := &capturingPublisher{err: errors.New("broker gone")}

	mapper := ExceptionMapperFunc(func(err error, envelope contracts.MessageEnvelope) contracts.Message {
		return contracts.NewRejectedEvent(err.Error(), "")
	})

	p := NewMessageProcessor(
		NewRetryPolicy(3, time.Millisecond),
		WithExceptionMapper(mapper),
		WithRejectedPublisher(publisher),
	)

	disposition, err := p.Process(context.Background(), d, testEnvelope(), contracts.CorrelationContext{}, func(ctx context.Context) error {
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, DispositionNacked, disposition)

	acks, nacks, _, _ := d.counts()
	assert.Equal(t, 0, acks)
	assert.Equal(t, 1, nacks)
}

func TestProcessTimeoutNacksWithoutConsumingRetries(t *testing.T) {
	d := newFakeDelivery("msg-1", "corr-1", nil)
	p := NewMessageProcessor(
		NewRetryPolicy(5, time.Millisecond),
		WithProcessingTimeout(20*time.Millisecond),
		WithRequeueFailedMessages(true),
	)

	release := make(chan struct{})
	defer close(release)

	var invocations int32
	start := time.Now()
	disposition, err := p.Process(context.Background(), d, testEnvelope(), contracts.CorrelationContext{}, func(ctx context.Context) error {
		atomic.AddInt32(&invocations, 1)
		<-release
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, DispositionNacked, disposition)

	// the timeout path leaves the state machine immediately
	assert.Equal(t, int32(1), atomic.LoadInt32(&invocations))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	_, nacks, _, requeue := d.counts()
	assert.Equal(t, 1, nacks)
	assert.True(t, requeue)
}

func TestProcessDefaultMapperNeverMaps(t *testing.T) {
	mapper := NopExceptionMapper{}
	assert.Nil(t, mapper.Map(errors.New("anything"), testEnvelope()))
}

func TestProcessContextCancelledDuringRetryWait(t *testing.T) {
	d := newFakeDelivery("msg-1", "corr-1", nil)
	p := NewMessageProcessor(NewRetryPolicy(3, time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	disposition, err := p.Process(ctx, d, testEnvelope(), contracts.CorrelationContext{}, func(ctx context.Context) error {
		return errors.New("boom")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, DispositionNacked, disposition)

	_, nacks, _, _ := d.counts()
	assert.Equal(t, 1, nacks)
}

func TestDispositionString(t *testing.T) {
	assert.Equal(t, "acked", DispositionAcked.String())
	assert.Equal(t, "nacked", DispositionNacked.String())
	assert.Equal(t, "rejected-event-published", DispositionRejected.String())
}
