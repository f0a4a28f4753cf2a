package source

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyspacePattern = "__keyspace@*__:" + keyPrefix + "*"
	// keyspaceEvents enables generic and string command notifications, which
	// covers SET/DEL on booking keys.
	keyspaceEvents     = "Kg$"
	defaultEventBuffer = 256
)

// Event is one observed change to a booking record.
type Event struct {
	ID string
	Op string
}

// Watcher subscribes to keyspace change notifications for booking keys.
// Each Subscribe call produces one non-restartable stream: when the
// subscription is lost the channel closes and the supervisor opens a new one.
type Watcher struct {
	client *goredis.Client
	logger *zap.Logger
	buffer int
}

func NewWatcher(client *goredis.Client, logger *zap.Logger) (*Watcher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Watcher{client: client, logger: logger, buffer: defaultEventBuffer}, nil
}

// Subscribe opens the change subscription and returns its event channel. The
// returned channel closes when the subscription fails or ctx is canceled.
func (w *Watcher) Subscribe(ctx context.Context) (<-chan Event, error) {
	// Managed deployments often forbid CONFIG; the operator then enables
	// notify-keyspace-events out of band, so a failure here is not fatal.
	if err := w.client.ConfigSet(ctx, "notify-keyspace-events", keyspaceEvents).Err(); err != nil {
		w.logger.Warn("could not enable keyspace notifications, assuming server config", zap.Error(err))
	}

	pubsub := w.client.PSubscribe(ctx, keyspacePattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to open watch subscription: %w", err)
	}

	events := make(chan Event, w.buffer)

	go func() {
		defer close(events)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					w.logger.Warn("watch subscription closed")
					return
				}

				event, ok := eventFromMessage(msg)
				if !ok {
					continue
				}

				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

// Ping reports watch-side connectivity to the source.
func (w *Watcher) Ping(ctx context.Context) error {
	if err := w.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("source ping failed: %w", err)
	}
	return nil
}

func eventFromMessage(msg *goredis.Message) (Event, bool) {
	if msg == nil {
		return Event{}, false
	}

	id := idFromKeyspaceChannel(msg.Channel)
	if id == "" {
		return Event{}, false
	}

	op := strings.ToLower(strings.TrimSpace(msg.Payload))
	// Deletions are either our own post-relay cleanup or an upstream purge;
	// neither produces a record to forward.
	if op == "" || op == "del" || op == "expired" || op == "unlink" {
		return Event{}, false
	}

	return Event{ID: id, Op: op}, true
}

func idFromKeyspaceChannel(channel string) string {
	idx := strings.Index(channel, "__:")
	if idx < 0 {
		return ""
	}
	return IDFromKey(channel[idx+len("__:"):])
}
