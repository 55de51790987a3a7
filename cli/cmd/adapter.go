package cmd

import (
	"fmt"

	"github.com/justapithecus/chunkwire/adapter"
	redisadapter "github.com/justapithecus/chunkwire/adapter/redis"
	"github.com/justapithecus/chunkwire/adapter/webhook"
)

// buildAdapter returns nil when no adapter is configured.
func buildAdapter(opts decodeOptions) (adapter.Adapter, error) {
	switch opts.adapterType {
	case "":
		if opts.adapterURL != "" {
			return nil, fmt.Errorf("--adapter-url requires --adapter")
		}
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     opts.adapterURL,
			Headers: opts.adapterHeaders,
			Timeout: opts.adapterTimeout,
			Retries: opts.adapterRetries,
		})
	case "redis":
		return redisadapter.New(redisadapter.Config{
			URL:     opts.adapterURL,
			Channel: opts.adapterChannel,
			Timeout: opts.adapterTimeout,
			Retries: opts.adapterRetries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter %q (want webhook or redis)", opts.adapterType)
	}
}
