package enums

import "fmt"

// EventSource names the producer that delivered a notification into the feed.
type EventSource string

const (
	EventSourceSnapshot EventSource = "snapshot"
	EventSourcePush     EventSource = "push"
	EventSourceFallback EventSource = "fallback"
	EventSourceLocal    EventSource = "local"
)

// MutationKind is the kind of a locally issued change awaiting confirmation.
type MutationKind string

const (
	MutationRead   MutationKind = "read"
	MutationDelete MutationKind = "delete"
)

// PushTransport selects how the push channel is carried.
type PushTransport string

const (
	PushTransportSSE    PushTransport = "sse"
	PushTransportRedis  PushTransport = "redis"
	PushTransportPubSub PushTransport = "pubsub"
)

var validPushTransports = []PushTransport{
	PushTransportSSE,
	PushTransportRedis,
	PushTransportPubSub,
}

// IsValid reports whether the value matches a supported transport.
func (p PushTransport) IsValid() bool {
	for _, candidate := range validPushTransports {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePushTransport converts raw input into PushTransport.
func ParsePushTransport(value string) (PushTransport, error) {
	for _, candidate := range validPushTransports {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid push transport %q", value)
}
