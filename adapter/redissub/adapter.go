package redissub

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xwait"
)

const SourceName = "redis-pubsub"

// Event is a single message received from a Redis Pub/Sub channel.
type Event struct {
	Channel    string
	Payload    []byte
	ReceivedAt time.Time
}

// Source is the Redis Pub/Sub push source (Adapter pattern over go-redis).
type Source struct {
	cfg    Config
	client *redis.Client
	clock  xclock.Clock
	logger *xlog.Logger

	ownsClient bool
	closeOnce  sync.Once
}

// Option configures a Source.
type Option func(*Source)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(s *Source) { s.clock = c }
}

// WithClient reuses an existing Redis client instead of dialing one from
// Config. The caller keeps ownership of its lifecycle.
func WithClient(client *redis.Client) Option {
	return func(s *Source) {
		s.client = client
		s.ownsClient = false
	}
}

// NewSource dials Redis per cfg (unless WithClient is given) and verifies
// connectivity with a bounded ping.
func NewSource(cfg Config, opts ...Option) (*Source, error) {
	s := &Source{
		cfg:        cfg,
		clock:      xclock.Default(),
		logger:     xlog.Default(),
		ownsClient: true,
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}

	if s.client == nil {
		ropts := &redis.Options{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
		if cfg.TLS {
			ropts.TLSConfig = &tls.Config{
				MinVersion:    tls.VersionTLS12,
				ServerName:    cfg.TLSServerName,
				Renegotiation: tls.RenegotiateNever,
			}
		}
		s.client = redis.NewClient(ropts)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		if s.ownsClient {
			_ = s.client.Close()
		}
		return nil, err
	}
	return s, nil
}

// Client exposes the underlying Redis client, e.g. for seeding test data
// next to a subscription.
func (s *Source) Client() *redis.Client {
	return s.client
}

// Subscribe attaches obs to channels and drives it from a background
// goroutine. Delivery ends with OnComplete when the subscription is closed
// or ctx ends, and with OnError when the optional health probe finds the
// connection dead. The returned Unsubscribe is idempotent.
func (s *Source) Subscribe(ctx context.Context, obs xwait.Observer[Event], channels ...string) (xwait.Unsubscribe, error) {
	ps := s.client.Subscribe(ctx, channels...)

	// Confirm the SUBSCRIBE before handing out the stream.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	var (
		terminal sync.Once
		stopOnce sync.Once
	)
	stopped := make(chan struct{})
	stop := func() {
		stopOnce.Do(func() {
			close(stopped)
			_ = ps.Close()
		})
	}

	complete := func() { terminal.Do(obs.OnComplete) }
	fail := func(err error) { terminal.Do(func() { obs.OnError(err) }) }

	msgCh := ps.Channel()

	go func() {
		for {
			select {
			case <-ctx.Done():
				stop()
				complete()
				return
			case <-stopped:
				complete()
				return
			case msg, ok := <-msgCh:
				if !ok {
					complete()
					return
				}
				obs.OnNext(Event{
					Channel:    msg.Channel,
					Payload:    []byte(msg.Payload),
					ReceivedAt: s.clock.Now(),
				})
			}
		}
	}()

	if s.cfg.PingInterval > 0 {
		go s.probe(ctx, stopped, stop, fail)
	}

	return xwait.Unsubscribe(stop), nil
}

// probe pings the server periodically and converts a dead connection into a
// terminal observer error. Pub/Sub reconnects silently otherwise.
func (s *Source) probe(ctx context.Context, stopped <-chan struct{}, stop func(), fail func(error)) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopped:
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, s.cfg.PingInterval)
			err := s.client.Ping(pctx).Err()
			cancel()
			if err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Str("addr", s.cfg.Addr).Msg("redissub: health probe failed")
				fail(err)
				stop()
				return
			}
		}
	}
}

// Close releases the Redis client when the Source owns it.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.ownsClient {
			err = s.client.Close()
		}
	})
	return err
}
