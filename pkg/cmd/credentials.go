package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/flowbot/pkg/credentials"
	"github.com/redis/go-redis/v9"
)

// CredentialOptions selects and configures the credential store.
type CredentialOptions struct {
	Store    string // file, redis or env
	File     string
	RedisURL string
	RedisKey string
	Env      string // credential value for the env store
}

// NewCredentialStore builds the configured store. The returned close func releases
// any client the store owns.
func NewCredentialStore(opts CredentialOptions, logger *slog.Logger) (credentials.Store, func() error, error) {
	nop := func() error { return nil }

	switch opts.Store {
	case "", "file":
		if opts.File == "" {
			return nil, nil, fmt.Errorf("file credential store needs a path: %w", ErrMissingOption)
		}

		return credentials.NewFile(opts.File, logger), nop, nil
	case "redis":
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
		}

		client := redis.NewClient(redisOpts)

		return credentials.NewRedis(client, opts.RedisKey, logger), client.Close, nil
	case "env":
		return credentials.NewMemory(opts.Env), nop, nil
	default:
		return nil, nil, fmt.Errorf("credential store %q: %w", opts.Store, ErrUnsupportedProvider)
	}
}
