// Package config loads and validates the sidecar's YAML configuration,
// following the teacher's SetDefaults/Validate convention (see
// peerlink.Config) rather than a validation-tag library.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rmacdonaldsmith/nats-sidecar/internal/codec"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/schema"
)

// AttributeConfig is one entry of the configured attribute list, as it
// appears in YAML.
type AttributeConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Config is the full configuration surface from spec.md §6.
type Config struct {
	NATSAddress string `yaml:"nats_address"`
	NATSPort    int    `yaml:"nats_port"`

	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
	TLSCA   string `yaml:"tls_ca"`

	InputSubject    string `yaml:"input_subject"`
	InputQueueGroup string `yaml:"input_queue_group"`
	OutputPrefix    string `yaml:"output_prefix"`

	Format string `yaml:"format"`

	SubscribeSubject   string `yaml:"subscribe_subject"`
	UnsubscribeSubject string `yaml:"unsubscribe_subject"`

	LeaseBucket               string `yaml:"lease_bucket"`
	LeaseTTLSeconds           int    `yaml:"lease_ttl_seconds"`
	LeaseCheckIntervalSeconds int    `yaml:"lease_check_interval_seconds"`

	Attributes []AttributeConfig `yaml:"attributes"`

	StatsIntervalSeconds int    `yaml:"stats_interval_seconds"`
	LogLevel             string `yaml:"log_level"`
	WorkerThreads        int    `yaml:"worker_threads"`
}

// Load reads and parses the YAML configuration file at path, applies
// defaults, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// SetDefaults fills in each field that has a documented default (spec.md
// §6) when the loaded value is the zero value for its type. NATSAddress,
// NATSPort, Format, the TLS paths, and InputQueueGroup have no default
// and are left as loaded.
func (c *Config) SetDefaults() {
	if c.OutputPrefix == "" {
		c.OutputPrefix = c.InputSubject
	}
	if c.SubscribeSubject == "" {
		c.SubscribeSubject = "sidecar.subscribe"
	}
	if c.UnsubscribeSubject == "" {
		c.UnsubscribeSubject = "sidecar.unsubscribe"
	}
	if c.LeaseBucket == "" {
		c.LeaseBucket = "sidecar-leases"
	}
	if c.LeaseTTLSeconds <= 0 {
		c.LeaseTTLSeconds = 3600
	}
	if c.LeaseCheckIntervalSeconds <= 0 {
		c.LeaseCheckIntervalSeconds = 60
	}
	if c.StatsIntervalSeconds <= 0 {
		c.StatsIntervalSeconds = 10
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.WorkerThreads <= 0 {
		c.WorkerThreads = 0 // resolved to hardware concurrency at startup
	}
}

// Validate checks the configuration for the constraints spec.md §6
// states explicitly: input_subject and at least one attribute are
// required, and the format must be one of the closed set.
func (c *Config) Validate() error {
	if c.InputSubject == "" {
		return errors.New("input_subject is required")
	}
	if len(c.Attributes) == 0 {
		return errors.New("attributes must be non-empty")
	}
	if _, ok := codec.ParseFormat(c.Format); !ok {
		return fmt.Errorf("format %q is not one of msgpack, cbor, flexbuffers, zera", c.Format)
	}
	return nil
}

// Schema builds the typed attribute schema from the configured
// attribute list, validating each entry's declared kind.
func (c *Config) Schema() (*schema.Schema, error) {
	attrs := make([]schema.AttributeDef, 0, len(c.Attributes))
	for _, a := range c.Attributes {
		kind, err := schema.ParseKind(a.Type)
		if err != nil {
			return nil, fmt.Errorf("config: attribute %q: %w", a.Name, err)
		}
		attrs = append(attrs, schema.AttributeDef{Name: a.Name, Kind: kind})
	}
	return schema.New(attrs)
}
