package messaging

import (
	"log/slog"
	"sync"
)

// ChannelEntry owns one broker channel and the conventions it serves. Its
// lifetime is tied to the registry entry; it is released on subscriber
// disposal.
type ChannelEntry struct {
	Conventions Conventions
	Channel     Channel
	key         string
}

// Close releases the owned channel.
func (e *ChannelEntry) Close() error {
	return e.Channel.Close()
}

// SubscriptionRegistry is the process-wide map preventing duplicate
// consumers for the same (exchange, queue, routingKey) triple. Insertion is
// attempt-once: a losing concurrent insert closes the channel it opened and
// returns the winner.
type SubscriptionRegistry struct {
	entries sync.Map
	logger  *slog.Logger
}

// NewSubscriptionRegistry creates an empty registry.
func NewSubscriptionRegistry(logger *slog.Logger) *SubscriptionRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRegistry{logger: logger}
}

// RegisterOrReuse returns the entry for key, opening a channel through open
// only when no entry exists yet. isNew reports whether the caller owns a
// freshly inserted entry and must attach its consumer; for a reused entry no
// side effect has happened.
func (r *SubscriptionRegistry) RegisterOrReuse(key string, conventions Conventions, open func() (Channel, error)) (entry *ChannelEntry, isNew bool, err error) {
	if existing, ok := r.entries.Load(key); ok {
		return existing.(*ChannelEntry), false, nil
	}

	ch, err := open()
	if err != nil {
		return nil, false, err
	}

	candidate := &ChannelEntry{Conventions: conventions, Channel: ch, key: key}
	if actual, loaded := r.entries.LoadOrStore(key, candidate); loaded {
		// Lost the race: release the channel we speculatively opened.
		if cerr := ch.Close(); cerr != nil {
			r.logger.Warn("failed to close losing channel",
				"channelKey", key,
				"error", cerr,
			)
		}
		return actual.(*ChannelEntry), false, nil
	}

	return candidate, true, nil
}

// Discard removes the entry and releases its channel. Used when consumer
// attachment or topology setup fails after a successful insert.
func (r *SubscriptionRegistry) Discard(entry *ChannelEntry) {
	r.entries.Delete(entry.key)
	if err := entry.Close(); err != nil {
		r.logger.Warn("failed to close discarded channel",
			"channelKey", entry.key,
			"error", err,
		)
	}
}

// Len returns the number of registered entries.
func (r *SubscriptionRegistry) Len() int {
	n := 0
	r.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// CloseAll releases every registered channel. The first close error is
// returned after all channels have been attempted.
func (r *SubscriptionRegistry) CloseAll() error {
	var firstErr error
	r.entries.Range(func(key, value interface{}) bool {
		r.entries.Delete(key)
		if err := value.(*ChannelEntry).Close(); err != nil {
			r.logger.Warn("failed to close channel",
				"channelKey", key,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
		return true
	})
	return firstErr
}
