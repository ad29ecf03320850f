package sse

import "time"

// Default configuration values.
const (
	DefaultEventBufferSize   = 1000
	DefaultClientBufferSize  = 100
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultMaxClients        = 100
)

// Config holds broker configuration.
type Config struct {
	// EventBufferSize is the size of the main event channel.
	EventBufferSize int
	// ClientBufferSize is the default buffer size per client.
	ClientBufferSize int
	// HeartbeatInterval is how often to send heartbeat comments.
	HeartbeatInterval time.Duration
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxClients is the maximum number of concurrent clients (0 = unlimited).
	MaxClients int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EventBufferSize:   DefaultEventBufferSize,
		ClientBufferSize:  DefaultClientBufferSize,
		HeartbeatInterval: DefaultHeartbeatInterval,
		ShutdownTimeout:   DefaultShutdownTimeout,
		MaxClients:        DefaultMaxClients,
	}
}

// BrokerOption configures a broker.
type BrokerOption func(*broker)

// WithMaxClients sets the maximum number of concurrent clients.
func WithMaxClients(maxClients int) BrokerOption {
	return func(b *broker) {
		b.maxClients = maxClients
	}
}

// WithConfig applies a full Config to the broker.
func WithConfig(cfg Config) BrokerOption {
	return func(b *broker) {
		if cfg.EventBufferSize > 0 {
			b.eventBufferSize = cfg.EventBufferSize
		}
		if cfg.ClientBufferSize > 0 {
			b.clientBufferSize = cfg.ClientBufferSize
		}
		if cfg.HeartbeatInterval > 0 {
			b.heartbeatInterval = cfg.HeartbeatInterval
		}
		if cfg.ShutdownTimeout > 0 {
			b.shutdownTimeout = cfg.ShutdownTimeout
		}
		b.maxClients = cfg.MaxClients
	}
}

// ClientOption configures a client subscription.
type ClientOption func(*ClientOptions)

// WithFilter adds an event filter for the client. Multiple filters must all pass.
func WithFilter(filter EventFilter) ClientOption {
	return func(opts *ClientOptions) {
		prev := opts.Filter
		if prev == nil {
			opts.Filter = filter
			return
		}
		opts.Filter = func(event Event) bool { return prev(event) && filter(event) }
	}
}

// WithBufferSize sets the client's event buffer size.
func WithBufferSize(size int) ClientOption {
	return func(opts *ClientOptions) {
		if size > 0 {
			opts.BufferSize = size
		}
	}
}

// WithContextFilter passes broadcast events and events addressed to contextID.
func WithContextFilter(contextID string) ClientOption {
	byTopic := WithFilter(func(event Event) bool {
		return event.Topic == "" || event.Topic == contextID
	})
	return func(opts *ClientOptions) {
		opts.ContextID = contextID
		byTopic(opts)
	}
}

// WithTypeFilter passes only the listed event types.
func WithTypeFilter(types ...string) ClientOption {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return WithFilter(func(event Event) bool {
		_, ok := allowed[event.Type]
		return ok
	})
}
