package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chunkwire/adapter"
	"github.com/justapithecus/chunkwire/adapter/webhook"
	"github.com/justapithecus/chunkwire/cli/config"
	"github.com/justapithecus/chunkwire/decoder"
	"github.com/justapithecus/chunkwire/iox"
	chunklode "github.com/justapithecus/chunkwire/lode"
	"github.com/justapithecus/chunkwire/log"
	"github.com/justapithecus/chunkwire/metrics"
	"github.com/justapithecus/chunkwire/policy"
	"github.com/justapithecus/chunkwire/stream"
	"github.com/justapithecus/chunkwire/types"
)

// metricsWriteTimeout bounds the final metrics record write, which runs
// even after the session context was cancelled.
const metricsWriteTimeout = 10 * time.Second

// DecodeCommand returns the decode command.
func DecodeCommand() *cli.Command {
	flags := append(sessionFlags(), storageFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:  "out-dir",
			Usage: "Write each message to its own file in this directory",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Reassembly timeout per message",
			Value: decoder.DefaultTimeout,
		},
		&cli.Int64Flag{
			Name:  "max-message-size",
			Usage: "Maximum reassembled message size in bytes (0 = unlimited)",
		},
		&cli.Int64Flag{
			Name:  "storage-object-threshold",
			Usage: "Store payloads larger than this as sidecar objects (0 = inline)",
		},
		&cli.StringFlag{
			Name:  "policy",
			Usage: "Ingestion policy: strict, streaming, buffered or noop",
			Value: string(policy.NameStrict),
		},
		&cli.IntFlag{
			Name:  "flush-count",
			Usage: "Streaming policy: flush after N messages",
		},
		&cli.Int64Flag{
			Name:  "flush-bytes",
			Usage: "Streaming policy: flush after N buffered bytes",
		},
		&cli.DurationFlag{
			Name:  "flush-interval",
			Usage: "Streaming policy: flush every interval",
		},
		&cli.IntFlag{
			Name:  "buffer-messages",
			Usage: "Buffered policy: maximum buffered messages",
			Value: policy.DefaultBufferedConfig().MaxBufferMessages,
		},
		&cli.Int64Flag{
			Name:  "buffer-bytes",
			Usage: "Buffered policy: maximum buffered payload bytes",
			Value: policy.DefaultBufferedConfig().MaxBufferBytes,
		},
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Notification adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Adapter endpoint URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Adapter publish timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Adapter retry attempts",
			Value: webhook.DefaultRetries,
		},
	)

	return &cli.Command{
		Name:  "decode",
		Usage: "Reassemble a framed packet stream",
		Description: `Reads packet frames, reassembles messages and hands them to the
ingestion policy. Messages go to a Lode dataset when --storage-path is set,
to files when --out-dir is set, and to stdout otherwise.

Exit codes:
  0  every message completed
  1  usage, configuration or stream error
  2  protocol failure (timeout, incomplete, malformed)
  3  sink or storage failure

Example:
  chunkwire decode --in data.cw --storage-path ./data --source sensor-a`,
		Flags:  flags,
		Action: decodeAction,
	}
}

// decodeOptions is the merged flag and file configuration.
type decodeOptions struct {
	timeout        time.Duration
	maxMessageSize int64

	outDir          string
	dataset         string
	backend         string
	storagePath     string
	region          string
	endpoint        string
	s3PathStyle     bool
	objectThreshold int64

	policy        string
	flushCount    int
	flushBytes    int64
	flushInterval time.Duration
	bufferMsgs    int
	bufferBytes   int64

	adapterType    string
	adapterURL     string
	adapterChannel string
	adapterHeaders map[string]string
	adapterTimeout time.Duration
	adapterRetries int
}

func resolveDecodeOptions(c *cli.Context, cfg *config.Config) decodeOptions {
	retries := c.Int("adapter-retries")
	if !c.IsSet("adapter-retries") && cfg.Adapter.Retries != nil {
		retries = *cfg.Adapter.Retries
	}
	return decodeOptions{
		timeout:         durationOpt(c, "timeout", cfg.Decoder.Timeout.Duration),
		maxMessageSize:  int64Opt(c, "max-message-size", cfg.Decoder.MaxMessageSize),
		outDir:          c.String("out-dir"),
		dataset:         stringOpt(c, "storage-dataset", cfg.Storage.Dataset),
		backend:         stringOpt(c, "storage-backend", cfg.Storage.Backend),
		storagePath:     stringOpt(c, "storage-path", cfg.Storage.Path),
		region:          stringOpt(c, "storage-region", cfg.Storage.Region),
		endpoint:        stringOpt(c, "storage-endpoint", cfg.Storage.Endpoint),
		s3PathStyle:     boolOpt(c, "storage-s3-path-style", cfg.Storage.S3PathStyle),
		objectThreshold: int64Opt(c, "storage-object-threshold", cfg.Storage.ObjectThreshold),
		policy:          stringOpt(c, "policy", cfg.Policy.Name),
		flushCount:      intOpt(c, "flush-count", cfg.Policy.FlushCount),
		flushBytes:      int64Opt(c, "flush-bytes", cfg.Policy.FlushBytes),
		flushInterval:   durationOpt(c, "flush-interval", cfg.Policy.FlushInterval.Duration),
		bufferMsgs:      intOpt(c, "buffer-messages", cfg.Policy.BufferMessages),
		bufferBytes:     int64Opt(c, "buffer-bytes", cfg.Policy.BufferBytes),
		adapterType:     stringOpt(c, "adapter", cfg.Adapter.Type),
		adapterURL:      stringOpt(c, "adapter-url", cfg.Adapter.URL),
		adapterChannel:  stringOpt(c, "adapter-channel", cfg.Adapter.Channel),
		adapterHeaders:  cfg.Adapter.Headers,
		adapterTimeout:  durationOpt(c, "adapter-timeout", cfg.Adapter.Timeout.Duration),
		adapterRetries:  retries,
	}
}

// sinkBackend names where messages go, for metrics dimensions.
func (o decodeOptions) sinkBackend() string {
	switch {
	case o.storagePath != "":
		return o.backend
	case o.outDir != "":
		return "dir"
	default:
		return "stdout"
	}
}

func decodeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	opts := resolveDecodeOptions(c, cfg)

	meta, err := sessionMeta(c, types.RoleDecoder, stringOpt(c, "source", cfg.Source))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	logger, err := newLogger(c, cfg, meta)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	startTime := time.Now()
	collector := metrics.NewCollector(opts.policy, opts.sinkBackend(), meta.SessionID)

	sink, client, err := buildSink(ctx, opts, meta, startTime, c)
	if err != nil {
		code := exitUsage
		var storageErr *chunklode.StorageError
		if errors.As(err, &storageErr) {
			code = exitSink
		}
		return cli.Exit(err.Error(), code)
	}

	pol, err := buildPolicy(opts, chunklode.NewInstrumentedSink(sink, collector), logger)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	pub, err := buildAdapter(opts)
	if err != nil {
		_ = pol.Close()
		return cli.Exit(err.Error(), exitUsage)
	}
	if pub != nil {
		defer iox.DiscardClose(pub)
	}

	in, closeIn, err := openInput(c)
	if err != nil {
		_ = pol.Close()
		return cli.Exit(err.Error(), exitUsage)
	}
	defer iox.DiscardErr(closeIn)
	counted := iox.NewCountingReader(in)

	var (
		dec     *decoder.Decoder
		sinkMu  sync.Mutex
		sinkErr error
	)
	dec, err = decoder.New(decoder.Config{
		Timeout:        opts.timeout,
		MaxMessageSize: opts.maxMessageSize,
		Logger:         logger,
		Collector:      collector,
		Listener: decoder.ListenerFuncs{
			Data: func(msg *types.Message) {
				if err := pol.Ingest(ctx, msg); err != nil {
					sinkMu.Lock()
					if sinkErr == nil {
						sinkErr = err
					}
					sinkMu.Unlock()
					dec.Destroy(err)
				}
			},
			Error: func(err error) {
				logger.Error("decoder failed", map[string]any{"error": err.Error()})
			},
		},
	})
	if err != nil {
		_ = pol.Close()
		return cli.Exit(err.Error(), exitUsage)
	}

	logger.Info("decode started", map[string]any{
		"policy":  opts.policy,
		"backend": opts.sinkBackend(),
		"timeout": opts.timeout.String(),
	})

	recvErr := stream.Receive(ctx, counted, dec, stream.ReceiveConfig{
		Logger:    logger,
		Collector: collector,
	})

	flushErr := pol.Flush(context.WithoutCancel(ctx))

	if client != nil {
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsWriteTimeout)
		if err := client.WriteMetrics(mctx, collector.Snapshot(), time.Now()); err != nil {
			logger.Error("failed to write metrics", map[string]any{"error": err.Error()})
			flushErr = errors.Join(flushErr, err)
		}
		cancel()
	}
	closeErr := pol.Close()

	sinkMu.Lock()
	failedSink := errors.Join(sinkErr, flushErr, closeErr)
	sinkMu.Unlock()

	outcome, code, runErr := classifyOutcome(recvErr, failedSink)
	snap := collector.Snapshot()

	fields := map[string]any{
		"outcome":            string(outcome),
		"messages_completed": snap.MessagesCompleted,
		"messages_failed":    snap.MessagesFailed,
		"bytes_reassembled":  snap.BytesReassembled,
		"redundant_chunks":   snap.RedundantChunks,
		"frame_bytes_read":   counted.Count(),
		"duration_ms":        time.Since(startTime).Milliseconds(),
	}
	if runErr != nil {
		fields["error"] = runErr.Error()
	}

	if pub != nil {
		event := buildEvent(meta, opts, outcome, runErr, snap, startTime)
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout(opts))
		if err := pub.Publish(pctx, event); err != nil {
			logger.Warn("failed to publish session event", map[string]any{
				"adapter": opts.adapterType,
				"error":   err.Error(),
			})
		}
		cancel()
	}

	if code != exitSuccess {
		logger.Error("decode failed", fields)
		return cli.Exit("", code)
	}
	logger.Info("decode completed", fields)
	return nil
}

// classifyOutcome maps the receive result and any sink failure to a session
// outcome and exit code. A sink failure wins because it is what destroyed
// the decoder.
func classifyOutcome(recvErr, sinkErr error) (types.SessionOutcome, int, error) {
	switch {
	case sinkErr != nil:
		return types.OutcomeSinkError, exitSink, sinkErr
	case recvErr == nil:
		return types.OutcomeSuccess, exitSuccess, nil
	case stream.IsProtocolError(recvErr):
		return types.OutcomeProtocolError, exitProtocol, recvErr
	case stream.IsCanceledError(recvErr):
		return types.OutcomeCanceled, exitUsage, recvErr
	default:
		return types.OutcomeStreamError, exitUsage, recvErr
	}
}

// buildSink selects the message destination: Lode dataset, directory or
// stdout. The Lode client is returned as well so the caller can write the
// session metrics record.
func buildSink(ctx context.Context, opts decodeOptions, meta *types.SessionMeta, startTime time.Time, c *cli.Context) (policy.Sink, *chunklode.LodeClient, error) {
	if opts.storagePath == "" {
		if opts.outDir != "" {
			sink, err := policy.NewDirSink(opts.outDir)
			return sink, nil, err
		}
		return policy.NewWriterSink(c.App.Writer), nil, nil
	}

	if meta.Source == "" {
		return nil, nil, fmt.Errorf("--source is required with --storage-path")
	}
	if opts.outDir != "" {
		return nil, nil, fmt.Errorf("--out-dir and --storage-path are mutually exclusive")
	}

	lcfg := chunklode.Config{
		Dataset:         opts.dataset,
		Source:          meta.Source,
		Day:             chunklode.DeriveDay(startTime),
		SessionID:       meta.SessionID,
		ObjectThreshold: opts.objectThreshold,
	}
	if lcfg.Dataset == "" {
		lcfg.Dataset = chunklode.DefaultDataset
	}

	var (
		client *chunklode.LodeClient
		err    error
	)
	switch opts.backend {
	case "", "fs":
		client, err = chunklode.NewLodeClient(lcfg, opts.storagePath)
	case "s3":
		bucket, prefix := chunklode.ParseS3Path(opts.storagePath)
		client, err = chunklode.NewLodeS3Client(ctx, lcfg, chunklode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       opts.region,
			Endpoint:     opts.endpoint,
			UsePathStyle: opts.s3PathStyle,
		})
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q (want fs or s3)", opts.backend)
	}
	if err != nil {
		return nil, nil, err
	}
	return chunklode.NewSink(client), client, nil
}

func buildPolicy(opts decodeOptions, sink policy.Sink, logger *log.Logger) (policy.Policy, error) {
	switch policy.Name(opts.policy) {
	case policy.NameStrict, "":
		return policy.NewStrictPolicy(sink), nil
	case policy.NameStreaming:
		return policy.NewStreamingPolicy(sink, policy.StreamingConfig{
			FlushCount:    opts.flushCount,
			FlushBytes:    opts.flushBytes,
			FlushInterval: opts.flushInterval,
			Logger:        logger,
		})
	case policy.NameBuffered:
		return policy.NewBufferedPolicy(sink, policy.BufferedConfig{
			MaxBufferMessages: opts.bufferMsgs,
			MaxBufferBytes:    opts.bufferBytes,
			Logger:            logger,
		})
	case policy.NameNoop:
		return policy.NewNoopPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown policy %q (want strict, streaming, buffered or noop)", opts.policy)
	}
}

func publishTimeout(opts decodeOptions) time.Duration {
	// Covers the adapter's own per-attempt timeout across retries.
	if opts.adapterTimeout > 0 {
		return opts.adapterTimeout * time.Duration(opts.adapterRetries+2)
	}
	return 30 * time.Second
}

func buildEvent(meta *types.SessionMeta, opts decodeOptions, outcome types.SessionOutcome, runErr error, snap metrics.Snapshot, startTime time.Time) *adapter.SessionCompletedEvent {
	event := &adapter.SessionCompletedEvent{
		ContractVersion:   adapter.ContractVersion,
		EventType:         adapter.EventTypeSessionCompleted,
		SessionID:         meta.SessionID,
		Source:            meta.Source,
		Day:               chunklode.DeriveDay(startTime),
		Outcome:           string(outcome),
		StoragePath:       opts.storagePath,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		MessagesCompleted: snap.MessagesCompleted,
		MessagesFailed:    snap.MessagesFailed,
		BytesReassembled:  snap.BytesReassembled,
		RedundantChunks:   snap.RedundantChunks,
		DurationMs:        time.Since(startTime).Milliseconds(),
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}
	return event
}
