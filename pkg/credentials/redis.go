package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Redis stores the credential under a key and announces writes on key+":changes",
// so every process sharing the key sees logins and logouts.
type Redis struct {
	client redis.UniversalClient
	key    string
	logger *slog.Logger
}

func NewRedis(client redis.UniversalClient, key string, logger *slog.Logger) *Redis {
	if key == "" {
		key = "flowbot:credential"
	}

	return &Redis{
		client: client,
		key:    key,
		logger: logger.With("module", "credentials", "store", "redis"),
	}
}

func (r *Redis) channel() string {
	return r.key + ":changes"
}

func (r *Redis) Get(ctx context.Context) (string, bool, error) {
	credential, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("failed to read credential: %w", err)
	}

	return credential, credential != "", nil
}

func (r *Redis) Set(ctx context.Context, credential string) error {
	if credential == "" {
		return ErrEmptyCredential
	}

	if err := r.client.Set(ctx, r.key, credential, 0).Err(); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	return r.client.Publish(ctx, r.channel(), "set").Err()
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to remove credential: %w", err)
	}

	return r.client.Publish(ctx, r.channel(), "clear").Err()
}

func (r *Redis) Watch(ctx context.Context) (<-chan Change, error) {
	pubsub := r.client.Subscribe(ctx, r.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()

		return nil, fmt.Errorf("failed to subscribe to credential changes: %w", err)
	}

	last, _, _ := r.Get(ctx)
	ch := make(chan Change, watchBuffer)

	go func() {
		defer close(ch)
		defer pubsub.Close()

		messages := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}

				current, _, err := r.Get(ctx)
				if err != nil {
					r.logger.WarnContext(ctx, "Failed to read credential after change", "error", err)

					continue
				}

				if current == last {
					continue
				}

				last = current
				push(ch, Change{Credential: current, Present: current != ""})
			}
		}
	}()

	return ch, nil
}
