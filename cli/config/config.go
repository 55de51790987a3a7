package config

import (
	"fmt"
	"slices"
	"time"
)

// Config represents a chunkwire.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Source  string        `yaml:"source"`
	Log     LogConfig     `yaml:"log"`
	Encoder EncoderConfig `yaml:"encoder"`
	Decoder DecoderConfig `yaml:"decoder"`
	Storage StorageConfig `yaml:"storage"`
	Policy  PolicyConfig  `yaml:"policy"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
}

// EncoderConfig holds encode defaults.
type EncoderConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size"`
	ReadSize     int `yaml:"read_size"`
}

// DecoderConfig holds decode defaults.
type DecoderConfig struct {
	Timeout        Duration `yaml:"timeout"`
	MaxMessageSize int64    `yaml:"max_message_size"`
}

// StorageConfig holds storage defaults from the config file.
type StorageConfig struct {
	Dataset         string `yaml:"dataset"`
	Backend         string `yaml:"backend"`
	Path            string `yaml:"path"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	S3PathStyle     bool   `yaml:"s3_path_style"`
	ObjectThreshold int64  `yaml:"object_threshold"`
}

// PolicyConfig holds policy defaults from the config file.
type PolicyConfig struct {
	Name           string   `yaml:"name"`
	FlushCount     int      `yaml:"flush_count"`
	FlushBytes     int64    `yaml:"flush_bytes"`
	FlushInterval  Duration `yaml:"flush_interval"`
	BufferMessages int      `yaml:"buffer_messages"`
	BufferBytes    int64    `yaml:"buffer_bytes"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Known enum values.
var (
	StorageBackends = []string{"fs", "s3"}
	PolicyNames     = []string{"strict", "streaming", "buffered", "noop"}
	AdapterTypes    = []string{"webhook", "redis"}
	LogLevels       = []string{"debug", "info", "warn", "error"}
)

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enum fields and numeric ranges. Empty values are valid
// and leave the command defaults in place.
func (c *Config) Validate() error {
	checks := []struct {
		field string
		value string
		known []string
	}{
		{"log.level", c.Log.Level, LogLevels},
		{"storage.backend", c.Storage.Backend, StorageBackends},
		{"policy.name", c.Policy.Name, PolicyNames},
		{"adapter.type", c.Adapter.Type, AdapterTypes},
	}
	for _, ch := range checks {
		if ch.value != "" && !slices.Contains(ch.known, ch.value) {
			return fmt.Errorf("%s: unknown value %q (want one of %v)", ch.field, ch.value, ch.known)
		}
	}

	switch {
	case c.Encoder.MaxChunkSize < 0:
		return fmt.Errorf("encoder.max_chunk_size must be >= 0, got %d", c.Encoder.MaxChunkSize)
	case c.Decoder.Timeout.Duration < 0:
		return fmt.Errorf("decoder.timeout must be >= 0, got %v", c.Decoder.Timeout.Duration)
	case c.Decoder.MaxMessageSize < 0:
		return fmt.Errorf("decoder.max_message_size must be >= 0, got %d", c.Decoder.MaxMessageSize)
	case c.Policy.BufferMessages < 0:
		return fmt.Errorf("policy.buffer_messages must be >= 0, got %d", c.Policy.BufferMessages)
	case c.Policy.BufferBytes < 0:
		return fmt.Errorf("policy.buffer_bytes must be >= 0, got %d", c.Policy.BufferBytes)
	case c.Adapter.Type != "" && c.Adapter.URL == "":
		return fmt.Errorf("adapter.url is required when adapter.type is %q", c.Adapter.Type)
	case c.Adapter.Retries != nil && *c.Adapter.Retries < 0:
		return fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries)
	}
	return nil
}
