package messaging

import (
	"fmt"
	"reflect"
	"strings"
)

// Conventions is the immutable triple identifying a subscription. Two
// subscriptions with the same triple share one channel and one consumer.
type Conventions struct {
	Exchange   string
	Queue      string
	RoutingKey string
}

// ChannelKey returns the registry key for the triple.
func (c Conventions) ChannelKey() string {
	return c.Exchange + "|" + c.Queue + "|" + c.RoutingKey
}

// ConventionsResolver derives the topology triple from a message value.
type ConventionsResolver interface {
	Resolve(msg interface{}) Conventions
}

// DefaultConventionsResolver derives names from the message's Go type: the
// routing key is the lowercased type name, the queue is scoped to the
// consuming service, and the exchange is fixed per resolver.
type DefaultConventionsResolver struct {
	ServiceName string
	Exchange    string
}

// NewConventionsResolver creates a resolver for the given service and exchange.
func NewConventionsResolver(serviceName, exchange string) DefaultConventionsResolver {
	return DefaultConventionsResolver{ServiceName: serviceName, Exchange: exchange}
}

// Resolve implements ConventionsResolver
func (r DefaultConventionsResolver) Resolve(msg interface{}) Conventions {
	t := reflect.TypeOf(msg)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	name := "message"
	if t != nil && t.Name() != "" {
		name = strings.ToLower(t.Name())
	}

	return Conventions{
		Exchange:   r.Exchange,
		Queue:      fmt.Sprintf("%s/%s", r.ServiceName, name),
		RoutingKey: name,
	}
}
