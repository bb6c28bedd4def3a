package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sarthak1985/Convey/messaging"
)

// StateObserver receives connection diagnostic events.
type StateObserver interface {
	OnClosed(err error)
	OnBlocked(reason string)
	OnUnblocked()
}

// ConnectionManager owns one broker connection and fans its diagnostic
// events out to registered observers. It implements messaging.Transport.
type ConnectionManager struct {
	url    string
	conn   *amqp.Connection
	mu     sync.RWMutex
	logger *slog.Logger

	observers map[uint64]StateObserver
	obsMu     sync.RWMutex
	nextID    uint64

	done      chan struct{}
	closeOnce sync.Once
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		if logger != nil {
			cm.logger = logger
		}
	}
}

// NewConnectionManager creates a manager for the given URL. No connection
// is made until Connect is called.
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:       url,
		logger:    slog.Default(),
		observers: make(map[uint64]StateObserver),
		done:      make(chan struct{}),
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

// Connect establishes the connection and starts watching diagnostic events.
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.conn != nil && !cm.conn.IsClosed() {
		return nil
	}

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	connChan := make(chan *amqp.Connection, 1)
	errChan := make(chan error, 1)

	go func() {
		conn, err := amqp.Dial(cm.url)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- conn
	}()

	select {
	case conn := <-connChan:
		cm.conn = conn

		closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
		blockedCh := conn.NotifyBlocked(make(chan amqp.Blocking, 1))
		go cm.watch(closeCh, blockedCh)

		cm.logger.Info("connected to RabbitMQ", "url", sanitizeURL(cm.url))
		return nil

	case err := <-errChan:
		return &ConnectionError{Op: "connect", URL: sanitizeURL(cm.url), Err: err}

	case <-connCtx.Done():
		return &ConnectionError{Op: "connect", URL: sanitizeURL(cm.url), Err: connCtx.Err()}
	}
}

// watch dispatches connection diagnostics to observers until the connection
// closes or the manager shuts down.
func (cm *ConnectionManager) watch(closeCh <-chan *amqp.Error, blockedCh <-chan amqp.Blocking) {
	for {
		select {
		case amqpErr, ok := <-closeCh:
			if !ok {
				return
			}
			var err error
			if amqpErr != nil {
				err = amqpErr
				cm.logger.Error("connection closed", "error", amqpErr)
			}
			cm.notify(func(o StateObserver) { o.OnClosed(err) })
			return

		case blocking, ok := <-blockedCh:
			if !ok {
				return
			}
			if blocking.Active {
				cm.notify(func(o StateObserver) { o.OnBlocked(blocking.Reason) })
			} else {
				cm.notify(func(o StateObserver) { o.OnUnblocked() })
			}

		case <-cm.done:
			return
		}
	}
}

// AddObserver registers a diagnostic observer and returns its detach
// function. Detaching is idempotent; callers must detach before the
// connection is released.
func (cm *ConnectionManager) AddObserver(o StateObserver) (detach func()) {
	cm.obsMu.Lock()
	id := cm.nextID
	cm.nextID++
	cm.observers[id] = o
	cm.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			cm.obsMu.Lock()
			delete(cm.observers, id)
			cm.obsMu.Unlock()
		})
	}
}

func (cm *ConnectionManager) notify(fn func(StateObserver)) {
	cm.obsMu.RLock()
	defer cm.obsMu.RUnlock()

	for _, o := range cm.observers {
		fn(o)
	}
}

// ObserverCount returns the number of attached observers.
func (cm *ConnectionManager) ObserverCount() int {
	cm.obsMu.RLock()
	defer cm.obsMu.RUnlock()
	return len(cm.observers)
}

// IsConnected reports whether the connection is open.
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn != nil && !cm.conn.IsClosed()
}

// OpenChannel implements messaging.Transport
func (cm *ConnectionManager) OpenChannel() (messaging.Channel, error) {
	ch, err := cm.rawChannel()
	if err != nil {
		return nil, err
	}
	return &amqpChannel{ch: ch, logger: cm.logger}, nil
}

// rawChannel opens an amqp channel for internal use.
func (cm *ConnectionManager) rawChannel() (*amqp.Channel, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.conn == nil {
		return nil, ErrNotConnected
	}
	if cm.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}
	return cm.conn.Channel()
}

// Close implements messaging.Transport
func (cm *ConnectionManager) Close() error {
	var err error
	cm.closeOnce.Do(func() {
		close(cm.done)

		cm.mu.Lock()
		defer cm.mu.Unlock()

		if cm.conn != nil && !cm.conn.IsClosed() {
			err = cm.conn.Close()
		}
		cm.conn = nil
	})
	return err
}
