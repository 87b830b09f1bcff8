// Package config loads the graphserve configuration from defaults, an
// optional YAML file, GRAPHSERVE_* environment variables and command line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GRAPHSERVE_"

// ServerConfig holds HTTP listener and request handling settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Pretty          bool          `yaml:"pretty"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MetadataHeaders []string      `yaml:"metadata_headers"`
	GraphiQL        bool          `yaml:"graphiql"`
}

// GraphQLConfig holds execution settings.
type GraphQLConfig struct {
	Introspection    bool `yaml:"introspection"`
	MaxBatchSize     int  `yaml:"max_batch_size"`
	BatchConcurrency int  `yaml:"batch_concurrency"`
	QueryCacheSize   int  `yaml:"query_cache_size"`
	// Workers sizes the resolver pool; 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// WSConfig holds graphql-transport-ws settings.
type WSConfig struct {
	InitTimeout time.Duration `yaml:"init_timeout"`
	KeepAlive   time.Duration `yaml:"keepalive"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type OtelConfig struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

// DemoConfig configures the demo resolvers.
type DemoConfig struct {
	// Database is the SQLite DSN of the BasicObject store.
	Database string `yaml:"database"`
}

// Config is the top-level configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	GraphQL GraphQLConfig `yaml:"graphql"`
	WS      WSConfig      `yaml:"ws"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Otel    OtelConfig    `yaml:"otel"`
	Demo    DemoConfig    `yaml:"demo"`
}

// Default returns a new Config populated with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			Timeout:      10 * time.Second,
			MaxBodyBytes: 1 << 20,
			GraphiQL:     true,
		},
		GraphQL: GraphQLConfig{
			Introspection:    true,
			MaxBatchSize:     50,
			BatchConcurrency: 8,
			QueryCacheSize:   1000,
		},
		WS: WSConfig{
			InitTimeout: 10 * time.Second,
			KeepAlive:   15 * time.Second,
		},
		Log:     LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true},
		Otel:    OtelConfig{Service: "graphserve"},
		Demo:    DemoConfig{Database: ":memory:"},
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with GRAPHSERVE_* variables found through lookup.
// The variable for flag "server.max-body-bytes" is
// GRAPHSERVE_SERVER_MAX_BODY_BYTES. Lists are comma separated.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var result *multierror.Error
	for _, b := range cfg.bindings() {
		name := EnvName(b.name)
		if v, ok := lookup(name); ok {
			if err := b.value.Set(v); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	return result.ErrorOrNil()
}

// EnvName returns the environment variable overriding the flag name.
func EnvName(flagName string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return EnvPrefix + strings.ToUpper(r.Replace(flagName))
}

// Parse builds the configuration for a command: defaults, then the YAML
// file named by -config, then the environment, then the remaining flags.
// All settings are registered on fs as dotted flags (-server.addr, ...).
func Parse(fs *flag.FlagSet, args []string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	var configPath string
	fs.StringVar(&configPath, "config", "", "YAML configuration file")

	var seen []*recordedFlag
	for _, b := range cfg.bindings() {
		rec := &recordedFlag{binding: b, seen: &seen}
		fs.Var(rec, b.name, b.usage)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configPath != "" {
		if err := LoadFile(cfg, configPath); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	for _, rec := range seen {
		if err := rec.binding.value.Set(strings.Join(rec.raw, ",")); err != nil {
			return nil, fmt.Errorf("-%s: %w", rec.binding.name, err)
		}
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	fail := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}
	if c.Server.Addr == "" {
		fail("server.addr must not be empty")
	}
	if c.Server.Timeout < 0 {
		fail("server.timeout must not be negative")
	}
	if c.Server.MaxBodyBytes < 0 {
		fail("server.max-body-bytes must not be negative")
	}
	for name, n := range map[string]int{
		"graphql.max-batch-size":    c.GraphQL.MaxBatchSize,
		"graphql.batch-concurrency": c.GraphQL.BatchConcurrency,
		"graphql.query-cache-size":  c.GraphQL.QueryCacheSize,
		"graphql.workers":           c.GraphQL.Workers,
	} {
		if n < 0 {
			fail("%s must not be negative", name)
		}
	}
	if c.WS.InitTimeout < 0 || c.WS.KeepAlive < 0 {
		fail("ws durations must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		fail("log.level: %v", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		fail("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Otel.Endpoint != "" && c.Otel.Service == "" {
		fail("otel.service is required when otel.endpoint is set")
	}
	if result != nil {
		sortErrors(result)
	}
	return result.ErrorOrNil()
}

func sortErrors(m *multierror.Error) {
	errs := m.Errors
	for i := 1; i < len(errs); i++ {
		for j := i; j > 0 && errs[j].Error() < errs[j-1].Error(); j-- {
			errs[j], errs[j-1] = errs[j-1], errs[j]
		}
	}
}

// ------------------ bindings ------------------

type binding struct {
	name  string
	usage string
	value flag.Value
}

func (c *Config) bindings() []binding {
	return []binding{
		{"server.addr", "HTTP listen address", (*stringValue)(&c.Server.Addr)},
		{"server.pretty", "Pretty-print JSON responses", (*boolValue)(&c.Server.Pretty)},
		{"server.timeout", "Per-request timeout, e.g. 10s", (*durationValue)(&c.Server.Timeout)},
		{"server.max-body-bytes", "Maximum request body size; 0 is unlimited", (*int64Value)(&c.Server.MaxBodyBytes)},
		{"server.cors-origin", "Allowed CORS origin. Repeatable", (*listValue)(&c.Server.CORSOrigins)},
		{"server.metadata-header", "Forward HTTP header to gRPC metadata. Repeatable", (*listValue)(&c.Server.MetadataHeaders)},
		{"server.graphiql", "Serve GraphiQL to browsers", (*boolValue)(&c.Server.GraphiQL)},
		{"graphql.introspection", "Enable GraphQL introspection", (*boolValue)(&c.GraphQL.Introspection)},
		{"graphql.max-batch-size", "Maximum operations per batch; 0 is unlimited", (*intValue)(&c.GraphQL.MaxBatchSize)},
		{"graphql.batch-concurrency", "Concurrent operations per query batch; 0 is unbounded", (*intValue)(&c.GraphQL.BatchConcurrency)},
		{"graphql.query-cache-size", "Validated documents to cache; 0 disables", (*intValue)(&c.GraphQL.QueryCacheSize)},
		{"graphql.workers", "Resolver worker pool size; 0 is GOMAXPROCS", (*intValue)(&c.GraphQL.Workers)},
		{"ws.init-timeout", "Wait for connection_init, e.g. 10s", (*durationValue)(&c.WS.InitTimeout)},
		{"ws.keepalive", "Server ping interval; 0 disables", (*durationValue)(&c.WS.KeepAlive)},
		{"log.level", "Log level (debug, info, warn, error)", (*stringValue)(&c.Log.Level)},
		{"log.format", "Log format (json, console)", (*stringValue)(&c.Log.Format)},
		{"metrics.enabled", "Serve Prometheus metrics on /metrics", (*boolValue)(&c.Metrics.Enabled)},
		{"otel.endpoint", "OTLP collector endpoint", (*stringValue)(&c.Otel.Endpoint)},
		{"otel.service", "OpenTelemetry service name", (*stringValue)(&c.Otel.Service)},
		{"demo.database", "SQLite DSN for the demo store", (*stringValue)(&c.Demo.Database)},
	}
}

// recordedFlag defers flag values until the file and environment have been
// applied, so flags win regardless of parse order.
type recordedFlag struct {
	binding binding
	raw     []string
	seen    *[]*recordedFlag
}

func (r *recordedFlag) String() string { return "" }

func (r *recordedFlag) Set(v string) error {
	if len(r.raw) == 0 {
		*r.seen = append(*r.seen, r)
	}
	if _, isList := r.binding.value.(*listValue); !isList {
		r.raw = r.raw[:0]
	}
	r.raw = append(r.raw, v)
	return nil
}

func (r *recordedFlag) IsBoolFlag() bool {
	_, ok := r.binding.value.(*boolValue)
	return ok
}

type stringValue string

func (s *stringValue) String() string     { return string(*s) }
func (s *stringValue) Set(v string) error { *s = stringValue(v); return nil }

type boolValue bool

func (b *boolValue) String() string { return strconv.FormatBool(bool(*b)) }
func (b *boolValue) Set(v string) error {
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return errors.New("invalid boolean")
	}
	*b = boolValue(parsed)
	return nil
}

type intValue int

func (i *intValue) String() string { return strconv.Itoa(int(*i)) }
func (i *intValue) Set(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.New("invalid integer")
	}
	*i = intValue(n)
	return nil
}

type int64Value int64

func (i *int64Value) String() string { return strconv.FormatInt(int64(*i), 10) }
func (i *int64Value) Set(v string) error {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return errors.New("invalid integer")
	}
	*i = int64Value(n)
	return nil
}

type durationValue time.Duration

func (d *durationValue) String() string { return time.Duration(*d).String() }
func (d *durationValue) Set(v string) error {
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return errors.New("invalid duration")
	}
	*d = durationValue(parsed)
	return nil
}

// listValue replaces the list with the comma separated items of v.
type listValue []string

func (l *listValue) String() string { return strings.Join(*l, ",") }
func (l *listValue) Set(v string) error {
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*l = items
	return nil
}
